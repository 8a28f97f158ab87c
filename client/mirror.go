package client

import "sync"

// RemotePlayer 其他玩家的唯讀狀態，欄位名沿用客戶端慣例
// （direction / is_moving），渲染層直接取用
type RemotePlayer struct {
	ID        int     `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Map       string  `json:"map"`
	Direction string  `json:"direction"`
	IsMoving  bool    `json:"is_moving"`
}

// ChatMessage 伺服器廣播的聊天訊息
type ChatMessage struct {
	ID   int     `json:"id"`
	From int     `json:"from"`
	Text string  `json:"text"`
	TS   float64 `json:"ts"`
}

// chatBufferSize 本地聊天緩衝上限，超過丟最舊
const chatBufferSize = 200

// Mirror 伺服器狀態的本地唯讀鏡像
// 玩家清單每次快照整批汰換；聊天訊息附加進有上限的緩衝
// 對伺服器沒有任何回寫管道
type Mirror struct {
	mu         sync.RWMutex
	players    []RemotePlayer
	chat       []ChatMessage
	lastChatID int
}

// ReplacePlayers 以最新快照整批取代玩家清單
func (m *Mirror) ReplacePlayers(players []RemotePlayer) {
	m.mu.Lock()
	m.players = players
	m.mu.Unlock()
}

// AppendChat 附加廣播來的訊息並追蹤最高 id 水位
func (m *Mirror) AppendChat(msgs []ChatMessage) {
	m.mu.Lock()
	for _, msg := range msgs {
		m.chat = append(m.chat, msg)
		if msg.ID > m.lastChatID {
			m.lastChatID = msg.ID
		}
	}
	if over := len(m.chat) - chatBufferSize; over > 0 {
		m.chat = append([]ChatMessage(nil), m.chat[over:]...)
	}
	m.mu.Unlock()
}

// Players 目前已知的其他玩家（副本）
func (m *Mirror) Players() []RemotePlayer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RemotePlayer(nil), m.players...)
}

// RecentChat 最近的 limit 則訊息（副本，按 id 遞增）
func (m *Mirror) RecentChat(limit int) []ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := 0
	if limit > 0 && len(m.chat) > limit {
		start = len(m.chat) - limit
	}
	return append([]ChatMessage(nil), m.chat[start:]...)
}

// LastChatID 目前看過的最高訊息 id
func (m *Mirror) LastChatID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastChatID
}
