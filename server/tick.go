package server

import "time"

// DefaultTickRate 廣播頻率（每秒快照數），與客戶端出站節奏一致
const DefaultTickRate = 60

// Run 驅動 hub 的兩個週期性工作，直到 stop 關閉：
//   - 固定頻率把 presence 快照廣播給所有連線
//   - 每 evictInterval 掃一次閒置玩家與過期續連憑證
//
// 兩者與連線處理共用同一個 goroutine 執行模型，沒有第二套並行機制
func (h *Hub) Run(stop <-chan struct{}) {
	tick := time.NewTicker(time.Second / time.Duration(h.tickRate))
	sweep := time.NewTicker(evictInterval)
	defer tick.Stop()
	defer sweep.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			start := time.Now()
			h.broadcastPlayers()
			h.metrics.AddTick(time.Since(start).Nanoseconds())
		case <-sweep.C:
			h.sweepOnce()
		}
	}
}

// sweepOnce 單次閒置掃描：presence 淘汰 + 續連憑證過期
func (h *Hub) sweepOnce() {
	threshold := h.IdleTimeout()
	for _, id := range h.registry.EvictIdle(threshold) {
		h.metrics.IncEvictions()
		Log.Infof("session %d evicted after %s idle", id, threshold)
	}

	now := time.Now()
	h.mu.Lock()
	for key, rt := range h.tokens {
		if now.After(rt.expires) {
			delete(h.tokens, key)
		}
	}
	h.mu.Unlock()
}
