package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait 單次寫出的期限，慢速客戶端不能拖住其他連線
	writeWait = 5 * time.Second
	// pongWait / pingPeriod 讀側閒置偵測：伺服器主動 ping，
	// 在 pongWait 內沒有任何回應就視為斷線
	pongWait   = 60 * time.Second
	pingPeriod = 48 * time.Second
	// maxFrameSize 入站幀大小上限
	maxFrameSize = 1 << 20 // 1MB
	// sendQueueSize 每連線出站緩衝；滿了就丟，保住廣播即時性
	sendQueueSize = 64
)

// clientConn 單一 WebSocket 連線的發送端包裝
// 所有寫出都經過 send 佇列與 writePump，外部只做非阻塞 enqueue
type clientConn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClientConn(ws *websocket.Conn) *clientConn {
	return &clientConn{
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
	}
}

// enqueue 將訊息壓入發送佇列。佇列滿或連線已關閉回傳 false，
// 呼叫端只需計數，不得阻塞
func (c *clientConn) enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// close 關閉發送佇列與底層連線，可重複呼叫
func (c *clientConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.ws.Close()
}

// writePump 獨立 goroutine：把 send 佇列寫到 WS，並定期 ping
// 任一寫出失敗就關掉底層連線，讓讀側的清理流程接手
func (c *clientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
