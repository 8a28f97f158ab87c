package server

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/remeh/sizedwaitgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultIdleTimeout 閒置淘汰門檻
	// 原型裡同時存在 60s 與 120s 兩個常數，這裡統一採實際生效的 60s，
	// 可由 -idle-timeout 旗標與 /admin/config 調整
	DefaultIdleTimeout = 60 * time.Second
	// evictInterval 閒置掃描週期
	evictInterval = 5 * time.Second
	// shutdownCloseParallel Shutdown 時同時關閉連線的上限
	shutdownCloseParallel = 8

	// 聊天防洪：每連線 token bucket
	defaultChatPerSecond = 2
	defaultChatBurst     = 5
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 遊戲客戶端不經瀏覽器，來源檢查放行
		return true
	},
}

// resumeToken 斷線後保留一段時間的續連憑證
type resumeToken struct {
	id      int
	expires time.Time
}

// Hub 持有全部連線期狀態：registry、聊天緩衝、活躍連線集合與續連憑證
// 在 main 建一次之後以 handle 傳遞，不走套件層級全域
type Hub struct {
	registry *Registry
	chat     *ChatLog
	metrics  *Metrics

	idleTimeout atomic.Int64 // ns
	tickRate    int          // 廣播頻率（Hz），啟動後不變

	mu     sync.Mutex
	conns  map[*clientConn]sessionRef
	tokens map[string]resumeToken
}

// sessionRef 活躍連線對應的 session 身分與其續連憑證
type sessionRef struct {
	id    int
	token string
}

// NewHub 建立 hub；tickRate 為每秒廣播次數
func NewHub(registry *Registry, chat *ChatLog, metrics *Metrics, tickRate int) *Hub {
	if tickRate <= 0 {
		tickRate = 60
	}
	h := &Hub{
		registry: registry,
		chat:     chat,
		metrics:  metrics,
		tickRate: tickRate,
		conns:    make(map[*clientConn]sessionRef),
		tokens:   make(map[string]resumeToken),
	}
	h.idleTimeout.Store(int64(DefaultIdleTimeout))
	return h
}

// IdleTimeout 目前的閒置淘汰門檻
func (h *Hub) IdleTimeout() time.Duration {
	return time.Duration(h.idleTimeout.Load())
}

// SetIdleTimeout 調整閒置淘汰門檻，非正值忽略
func (h *Hub) SetIdleTimeout(d time.Duration) {
	if d > 0 {
		h.idleTimeout.Store(int64(d))
	}
}

// HandleWS WebSocket 接入點：?token=<uuid> 可在閒置門檻內續回原 session
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("ws upgrade failed: %v", err)
		return
	}
	h.serve(ws, r.URL.Query().Get("token"))
}

// serve 單一連線的完整生命週期：註冊、問候、收訊分派、一次性清理
func (h *Hub) serve(ws *websocket.Conn, token string) {
	conn := newClientConn(ws)
	id, token, resumed := h.attach(conn, token)
	defer h.detach(conn)

	go conn.writePump()

	if resumed {
		Log.Infof("session %d resumed", id)
	} else {
		Log.Infof("session %d registered", id)
	}

	// 問候序列：registered → 即時快照 → 聊天 backlog
	h.sendTo(conn, mustMarshal(newRegisteredMessage(id, token)))
	h.sendTo(conn, mustMarshal(newPlayersUpdateMessage(h.registry.Snapshot(), unixSeconds(time.Now()))))
	h.sendTo(conn, mustMarshal(newChatUpdateMessage(h.chat.ListSince(0))))

	limiter := rate.NewLimiter(rate.Limit(defaultChatPerSecond), defaultChatBurst)

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetReadLimit(maxFrameSize)
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		h.metrics.IncMessagesIn()
		h.dispatch(conn, id, limiter, payload)
	}
}

// dispatch 處理一則入站訊息；任何單則訊息的錯誤只回覆給發送端，
// 絕不終止連線
func (h *Hub) dispatch(conn *clientConn, id int, limiter *rate.Limiter, payload []byte) {
	msg, err := decodeClientMessage(payload)
	if err != nil {
		if errors.Is(err, errInvalidJSON) {
			h.sendTo(conn, mustMarshal(newErrorMessage("invalid_json")))
		} else {
			h.sendTo(conn, mustMarshal(newErrorMessage(err.Error())))
		}
		return
	}

	switch m := msg.(type) {
	case PlayerUpdateMessage:
		// 一律使用伺服器配發的 session id，payload 內容無法冒名他人
		if !h.registry.Update(id, m.X, m.Y, m.Map, m.Dir, m.IsMoving) {
			// 已被淘汰或移除，正常競態
			Log.Debugf("update for absent session %d dropped", id)
		}
	case ChatSendMessage:
		if !limiter.Allow() {
			h.metrics.IncChatRateLimited()
			h.sendTo(conn, mustMarshal(newErrorMessage("rate_limited")))
			return
		}
		cm, err := h.chat.Add(id, m.Text)
		if err != nil {
			h.metrics.IncChatRejected()
			h.sendTo(conn, mustMarshal(newErrorMessage(ErrEmptyMessage.Error())))
			return
		}
		h.metrics.IncChatAccepted()
		h.broadcast(mustMarshal(newChatUpdateMessage([]ChatMessage{cm})))
	}
}

// attach 建立（或續回）session 並加入活躍集合
func (h *Hub) attach(conn *clientConn, token string) (int, string, bool) {
	now := time.Now()

	h.mu.Lock()
	if token != "" {
		if rt, ok := h.tokens[token]; ok && now.Before(rt.expires) {
			if h.registry.Restore(rt.id) {
				delete(h.tokens, token)
				h.conns[conn] = sessionRef{id: rt.id, token: token}
				h.metrics.SetPlayersPeak(int64(len(h.conns)))
				h.mu.Unlock()
				return rt.id, token, true
			}
		}
	}
	id := h.registry.Register()
	token = uuid.NewString()
	h.conns[conn] = sessionRef{id: id, token: token}
	h.metrics.SetPlayersPeak(int64(len(h.conns)))
	h.mu.Unlock()
	return id, token, false
}

// detach 一次性清理：不論是客戶端主動關閉還是送收失敗觸發，
// 同一條連線只會走到這裡一次（以活躍集合成員資格判定）
func (h *Hub) detach(conn *clientConn) {
	h.mu.Lock()
	ref, ok := h.conns[conn]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, conn)
	h.mu.Unlock()

	conn.close()
	if h.registry.Unregister(ref.id) {
		// 留下續連憑證，讓同一玩家在閒置門檻內拿回原 id
		h.mu.Lock()
		h.tokens[ref.token] = resumeToken{id: ref.id, expires: time.Now().Add(h.IdleTimeout())}
		h.mu.Unlock()
	}
	Log.Infof("session %d disconnected", ref.id)
}

// sendTo 對單一連線非阻塞送出
func (h *Hub) sendTo(conn *clientConn, payload []byte) {
	if conn.enqueue(payload) {
		h.metrics.AddBytesOut(int64(len(payload)))
	} else {
		h.metrics.IncFramesDropped()
	}
}

// broadcast 把同一份 payload 送往所有活躍連線
// 各連線獨立 enqueue，單一慢速或已死連線不影響其他人
func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	conns := make([]*clientConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.sendTo(c, payload)
	}
	h.metrics.IncBroadcasts()
}

// broadcastPlayers 序列化一份 presence 快照並廣播
func (h *Hub) broadcastPlayers() {
	snapshot := h.registry.Snapshot()
	h.broadcast(mustMarshal(newPlayersUpdateMessage(snapshot, unixSeconds(time.Now()))))
}

// ConnCount 活躍連線數
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown 關閉所有活躍連線，並行度有上限
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*clientConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[*clientConn]sessionRef)
	h.mu.Unlock()

	swg := sizedwaitgroup.New(shutdownCloseParallel)
	for _, c := range conns {
		swg.Add()
		go func(c *clientConn) {
			defer swg.Done()
			c.close()
		}(c)
	}
	swg.Wait()
	Log.Infof("hub shutdown, closed %d connections", len(conns))
}
