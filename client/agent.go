package client

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// updateQueueSize 位置更新佇列：只有最新值有意義，滿了就讓呼叫端靜默失敗
	updateQueueSize = 10
	// chatQueueSize 聊天出站佇列：FIFO，滿了要讓呼叫端看得到失敗
	chatQueueSize = 50
	// outboundInterval 出站節奏，與伺服器廣播頻率一致（60Hz）
	outboundInterval = time.Second / 60
	// 重連退避：1s 起跳、每次失敗翻倍、上限 30s、連上即重置
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	// stopJoinWait Stop 等待網路 goroutine 收尾的上限
	stopJoinWait = 3 * time.Second
	// writeWait 單次寫出期限
	writeWait = 5 * time.Second
)

// PositionUpdate 遊戲迴圈塞進出站佇列的一筆本地狀態
type PositionUpdate struct {
	X         float64
	Y         float64
	Map       string
	Direction string
	IsMoving  bool
}

// Agent 客戶端同步代理：擁有唯一一條對外連線與重連狀態機
// 網路 I/O 全部在獨立 goroutine 進行，遊戲迴圈的呼叫永不阻塞
type Agent struct {
	log   *zap.SugaredLogger
	wsURL string

	// 測試掛鉤：預設走真正的 dialer / 可中斷 sleep
	dialFn  func(rawURL string) (*websocket.Conn, error)
	sleepFn func(d time.Duration, stop <-chan struct{}) bool

	updates chan PositionUpdate
	chatOut chan string
	mirror  *Mirror

	mu       sync.Mutex
	conn     *websocket.Conn
	playerID int
	token    string
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

// NewAgent 以伺服器 base URL 建立 agent
// http/https 會轉成 ws/wss；沒有 scheme 視為 ws
func NewAgent(baseURL string, log *zap.SugaredLogger) *Agent {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	a := &Agent{
		log:      log,
		wsURL:    toWSURL(baseURL),
		updates:  make(chan PositionUpdate, updateQueueSize),
		chatOut:  make(chan string, chatQueueSize),
		mirror:   &Mirror{},
		playerID: -1,
	}
	a.dialFn = func(rawURL string) (*websocket.Conn, error) {
		d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
		conn, _, err := d.Dial(rawURL, nil)
		return conn, err
	}
	a.sleepFn = func(d time.Duration, stop <-chan struct{}) bool {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return true
		case <-stop:
			return false
		}
	}
	return a
}

// toWSURL 把 base URL 正規化成 ws:// 或 wss://
func toWSURL(base string) string {
	switch {
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
		return base
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	default:
		return "ws://" + base
	}
}

// Start 啟動網路 goroutine，重複呼叫無效果
func (a *Agent) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	go a.run(a.stop, a.done)
}

// Stop 關閉連線並等待網路 goroutine 收尾，最多等 stopJoinWait
// 等不到不會卡住行程關閉，記一筆警告後放行
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	stop, done, conn := a.stop, a.done, a.conn
	a.mu.Unlock()

	close(stop)
	if conn != nil {
		_ = conn.Close()
	}
	select {
	case <-done:
	case <-time.After(stopJoinWait):
		a.log.Warnf("network goroutine did not exit within %s, proceeding", stopJoinWait)
	}
}

// Update 遊戲迴圈每幀呼叫：壓入合併佇列，永不阻塞
// 尚未取得 registered 或佇列已滿時靜默失敗（舊資料被丟是預期行為）
func (a *Agent) Update(x, y float64, mapName, direction string, isMoving bool) bool {
	if a.PlayerID() < 0 {
		return false
	}
	select {
	case a.updates <- PositionUpdate{X: x, Y: y, Map: mapName, Direction: direction, IsMoving: isMoving}:
		return true
	default:
		return false
	}
}

// SendChat 送出聊天訊息：去空白、空訊息與佇列滿都回 false
func (a *Agent) SendChat(text string) bool {
	if a.PlayerID() < 0 {
		return false
	}
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	select {
	case a.chatOut <- t:
		return true
	default:
		return false
	}
}

// PlayerID 伺服器配發的 id，尚未註冊時為 -1
func (a *Agent) PlayerID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playerID
}

// Players 其他玩家的最新鏡像
func (a *Agent) Players() []RemotePlayer { return a.mirror.Players() }

// RecentChat 最近的聊天訊息
func (a *Agent) RecentChat(limit int) []ChatMessage { return a.mirror.RecentChat(limit) }

// LastChatID 看過的最高聊天訊息 id
func (a *Agent) LastChatID() int { return a.mirror.LastChatID() }

// Connected 目前是否有活的連線
func (a *Agent) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// run 連線主迴圈：撥號 → 會話 → 斷線退避重試
// 佇列在重連之間保留，連上後接著送最新狀態
func (a *Agent) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	delay := initialBackoff
	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, err := a.dialFn(a.dialURL())
		if err != nil {
			a.log.Warnf("connect failed: %v, retrying in %s", err, delay)
			if !a.sleepFn(delay, stop) {
				return
			}
			delay = nextBackoff(delay)
			continue
		}

		delay = initialBackoff // 連線成功即重置退避
		a.setConn(conn)
		a.log.Infof("websocket connected to %s", a.wsURL)
		a.session(conn, stop)
		a.setConn(nil)

		select {
		case <-stop:
			return
		default:
		}
		a.log.Warnf("websocket closed, reconnecting in %s", delay)
		if !a.sleepFn(delay, stop) {
			return
		}
		delay = nextBackoff(delay)
	}
}

// nextBackoff 翻倍退避，上限 maxBackoff
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// dialURL 帶上續連憑證（若有），讓伺服器把原 session id 還給我們
func (a *Agent) dialURL() string {
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	if token == "" {
		return a.wsURL
	}
	return a.wsURL + "?token=" + url.QueryEscape(token)
}

func (a *Agent) setConn(conn *websocket.Conn) {
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
}

// session 單一連線的會話：出站泵獨立 goroutine，本 goroutine 收訊
// 任一側失敗就關閉連線讓另一側跟著退出
func (a *Agent) session(conn *websocket.Conn, stop <-chan struct{}) {
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go a.sendLoop(conn, stop, sessionDone)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		a.handleMessage(payload)
	}
}

// sendLoop 出站泵：固定節奏把位置佇列坍縮成最新一筆送出，
// 每個週期另外帶一則聊天訊息
func (a *Agent) sendLoop(conn *websocket.Conn, stop <-chan struct{}, sessionDone <-chan struct{}) {
	ticker := time.NewTicker(outboundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-sessionDone:
			return
		case <-ticker.C:
			if a.PlayerID() < 0 {
				// 還沒拿到 registered 前不送任何遊戲資料
				continue
			}
			if latest, ok := drainLatest(a.updates); ok {
				msg := playerUpdateOut{
					Type:      "player_update",
					X:         latest.X,
					Y:         latest.Y,
					Map:       latest.Map,
					Direction: latest.Direction,
					IsMoving:  latest.IsMoving,
				}
				if !a.writeJSON(conn, msg) {
					return
				}
			}
			select {
			case text := <-a.chatOut:
				if !a.writeJSON(conn, chatSendOut{Type: "chat_send", Text: text}) {
					return
				}
			default:
			}
		}
	}
}

// drainLatest 把佇列抽乾只留最新一筆：中間狀態對即時同步沒有意義
func drainLatest(ch chan PositionUpdate) (PositionUpdate, bool) {
	var latest PositionUpdate
	var ok bool
	for {
		select {
		case u := <-ch:
			latest, ok = u, true
		default:
			return latest, ok
		}
	}
}

func (a *Agent) writeJSON(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		a.log.Warnf("websocket send error: %v", err)
		_ = conn.Close()
		return false
	}
	return true
}

// handleMessage 入站分派：更新本地鏡像，錯誤只記日誌
func (a *Agent) handleMessage(payload []byte) {
	msg, err := decodeServerMessage(payload)
	if err != nil {
		a.log.Warnf("failed to parse server message: %v", err)
		return
	}

	switch m := msg.(type) {
	case registeredMessage:
		a.mu.Lock()
		a.playerID = m.ID
		if m.Token != "" {
			a.token = m.Token
		}
		a.mu.Unlock()
		a.log.Infof("registered with id=%d", m.ID)
	case playersUpdateMessage:
		a.mirror.ReplacePlayers(m.remotePlayers(a.PlayerID()))
	case chatUpdateMessage:
		a.mirror.AppendChat(m.Messages)
	case serverErrorMessage:
		a.log.Warnf("server error: %s", m.Message)
	}
}
