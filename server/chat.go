package server

import (
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	// chatMaxTextLen 單則訊息長度上限（rune），超過直接截斷
	chatMaxTextLen = 200
	// chatHardCap / chatRetain 緩衝超過 hard cap 時一次壓回 retain 筆，
	// 攤提淘汰成本而不是每次插入都搬動
	chatHardCap = 1000
	chatRetain  = 800
	// chatInitialBacklog 新連線補送的訊息數上限
	chatInitialBacklog = 100
	// chatCatchUpCap 斷線重連追進度的回應上限
	chatCatchUpCap = 200
)

// ErrEmptyMessage 去除空白後內容為空
var ErrEmptyMessage = errors.New("empty_message")

// ChatMessage 單則聊天訊息，建立後不再變動
type ChatMessage struct {
	ID   int     `json:"id"`
	From int     `json:"from"`
	Text string  `json:"text"`
	TS   float64 `json:"ts"`
}

// ChatLog 有上限的聊天訊息緩衝，id 從 1 起單調遞增
type ChatLog struct {
	mu       sync.Mutex
	messages []ChatMessage
	nextID   int
}

// NewChatLog 建立空的聊天緩衝
func NewChatLog() *ChatLog {
	return &ChatLog{nextID: 1}
}

// Add 驗證並附加一則訊息：去空白、空訊息回傳 ErrEmptyMessage、
// 超長靜默截斷到 200 rune
func (c *ChatLog) Add(from int, text string) (ChatMessage, error) {
	t := strings.TrimSpace(text)
	if runes := []rune(t); len(runes) > chatMaxTextLen {
		t = string(runes[:chatMaxTextLen])
	}
	if t == "" {
		return ChatMessage{}, ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	msg := ChatMessage{
		ID:   c.nextID,
		From: from,
		Text: t,
		TS:   unixSeconds(time.Now()),
	}
	c.nextID++
	c.messages = append(c.messages, msg)
	if len(c.messages) > chatHardCap {
		keep := c.messages[len(c.messages)-chatRetain:]
		c.messages = append(make([]ChatMessage, 0, chatHardCap), keep...)
	}
	return msg, nil
}

// ListSince 游標式讀取：sinceID <= 0 回傳最近 100 則（初次同步），
// 否則回傳 id > sinceID 的訊息，上限取最近 200 則
func (c *ChatLog) ListSince(sinceID int) []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sinceID <= 0 {
		start := len(c.messages) - chatInitialBacklog
		if start < 0 {
			start = 0
		}
		return append([]ChatMessage(nil), c.messages[start:]...)
	}
	// 訊息按 id 遞增排列，找第一筆 id > sinceID 即可
	start := len(c.messages)
	for i, m := range c.messages {
		if m.ID > sinceID {
			start = i
			break
		}
	}
	out := c.messages[start:]
	if len(out) > chatCatchUpCap {
		out = out[len(out)-chatCatchUpCap:]
	}
	return append([]ChatMessage(nil), out...)
}

// Len 目前保留的訊息數
func (c *ChatLog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// unixSeconds 線路上的時間戳採浮點秒
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
