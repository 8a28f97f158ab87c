package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
)

// HandleAdminConfig 運行期設定的讀取與熱更新
// GET  /admin/config            回傳目前設定
// POST /admin/config            以 JSON 載荷更新部分欄位
func (h *Hub) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	type cfg struct {
		IdleTimeoutSeconds *float64 `json:"idleTimeoutSeconds,omitempty"`
	}

	switch r.Method {
	case http.MethodGet:
		sec := h.IdleTimeout().Seconds()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cfg{IdleTimeoutSeconds: &sec})
	case http.MethodPost:
		var body cfg
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.IdleTimeoutSeconds != nil {
			h.SetIdleTimeout(time.Duration(*body.IdleTimeoutSeconds * float64(time.Second)))
			Log.Infof("config updated: idleTimeout=%s", h.IdleTimeout())
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics 輸出運行指標
// GET /metrics
func (h *Hub) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := h.metrics.Snapshot()
	// 給人看的欄位：uptime 與流量用可讀格式再附一份
	snap["uptime"] = durafmt.Parse(h.metrics.Uptime().Truncate(time.Second)).String()
	if bytesOut, ok := snap["bytes_out"].(int64); ok {
		snap["bytes_out_human"] = humanize.Bytes(uint64(bytesOut))
	}
	if msgs, ok := snap["messages_in"].(int64); ok {
		snap["messages_in_human"] = humanize.Comma(msgs)
	}
	payload := map[string]any{
		"connections": h.ConnCount(),
		"players":     h.registry.Count(),
		"chat_len":    h.chat.Len(),
		"metrics":     snap,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
