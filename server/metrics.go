package server

import (
	"sync/atomic"
	"time"
)

// Metrics 伺服器運行期指標（監控與除錯用），全部用原子計數
type Metrics struct {
	started time.Time

	TickCount       int64 // 廣播 tick 次數
	TotalTickNs     int64 // tick 累計耗時（奈秒）
	Broadcasts      int64 // 廣播輪數（含聊天）
	MessagesIn      int64 // 入站訊息數
	BytesOut        int64 // 成功排入發送佇列的位元組數
	FramesDropped   int64 // 因佇列滿或連線已關而丟棄的出站幀
	ChatAccepted    int64 // 通過驗證的聊天訊息
	ChatRejected    int64 // 空訊息被拒
	ChatRateLimited int64 // 被防洪限流擋下的聊天訊息
	Evictions       int64 // 閒置淘汰的 session 數
	PlayersPeak     int64 // 同時連線峰值
}

func NewMetrics() *Metrics {
	return &Metrics{started: time.Now()}
}

func (m *Metrics) IncMessagesIn()      { atomic.AddInt64(&m.MessagesIn, 1) }
func (m *Metrics) IncBroadcasts()      { atomic.AddInt64(&m.Broadcasts, 1) }
func (m *Metrics) IncFramesDropped()   { atomic.AddInt64(&m.FramesDropped, 1) }
func (m *Metrics) IncChatAccepted()    { atomic.AddInt64(&m.ChatAccepted, 1) }
func (m *Metrics) IncChatRejected()    { atomic.AddInt64(&m.ChatRejected, 1) }
func (m *Metrics) IncChatRateLimited() { atomic.AddInt64(&m.ChatRateLimited, 1) }
func (m *Metrics) IncEvictions()       { atomic.AddInt64(&m.Evictions, 1) }
func (m *Metrics) AddBytesOut(n int64) { atomic.AddInt64(&m.BytesOut, n) }

func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// SetPlayersPeak 以目前連線數更新峰值
func (m *Metrics) SetPlayersPeak(cur int64) {
	for {
		peak := atomic.LoadInt64(&m.PlayersPeak)
		if cur <= peak || atomic.CompareAndSwapInt64(&m.PlayersPeak, peak, cur) {
			return
		}
	}
}

// Uptime 行程啟動至今
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.started)
}

// Snapshot 回傳只讀副本，供 HTTP 輸出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":        tick,
		"avg_tick_ms":       avgMs,
		"broadcasts":        atomic.LoadInt64(&m.Broadcasts),
		"messages_in":       atomic.LoadInt64(&m.MessagesIn),
		"bytes_out":         atomic.LoadInt64(&m.BytesOut),
		"frames_dropped":    atomic.LoadInt64(&m.FramesDropped),
		"chat_accepted":     atomic.LoadInt64(&m.ChatAccepted),
		"chat_rejected":     atomic.LoadInt64(&m.ChatRejected),
		"chat_rate_limited": atomic.LoadInt64(&m.ChatRateLimited),
		"evictions":         atomic.LoadInt64(&m.Evictions),
		"players_peak":      atomic.LoadInt64(&m.PlayersPeak),
	}
}
