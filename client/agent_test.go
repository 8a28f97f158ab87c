package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestToWSURL(t *testing.T) {
	cases := map[string]string{
		"ws://host:8989":    "ws://host:8989",
		"wss://host":        "wss://host",
		"http://host:8989":  "ws://host:8989",
		"https://host/ws":   "wss://host/ws",
		"localhost:8989":    "ws://localhost:8989",
		"127.0.0.1:8989/ws": "ws://127.0.0.1:8989/ws",
	}
	for in, want := range cases {
		if got := toWSURL(in); got != want {
			t.Errorf("toWSURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func registeredAgent(t *testing.T) *Agent {
	t.Helper()
	a := NewAgent("localhost:8989", nil)
	a.mu.Lock()
	a.playerID = 0
	a.mu.Unlock()
	return a
}

func TestUpdateCoalescesToLatest(t *testing.T) {
	a := registeredAgent(t)

	// 同一個出站週期內的連發更新只有最後一筆該上線路
	for i := 1; i <= 5; i++ {
		if !a.Update(float64(i), float64(i*10), "town", "up", true) {
			t.Fatalf("update %d rejected unexpectedly", i)
		}
	}
	latest, ok := drainLatest(a.updates)
	if !ok {
		t.Fatal("expected a pending update")
	}
	if latest.X != 5 || latest.Y != 50 {
		t.Fatalf("expected the last update to win, got %+v", latest)
	}
	if _, ok := drainLatest(a.updates); ok {
		t.Fatal("queue should be empty after collapse")
	}
}

func TestUpdateQueueBound(t *testing.T) {
	a := registeredAgent(t)
	for i := 0; i < updateQueueSize; i++ {
		if !a.Update(0, 0, "", "down", false) {
			t.Fatalf("update %d should fit in the queue", i)
		}
	}
	if a.Update(0, 0, "", "down", false) {
		t.Fatal("update into a full queue must fail silently")
	}
}

func TestUpdateBeforeRegistered(t *testing.T) {
	a := NewAgent("localhost:8989", nil)
	if a.Update(1, 2, "m", "up", true) {
		t.Fatal("updates before registration must be dropped")
	}
	if a.SendChat("hi") {
		t.Fatal("chat before registration must be dropped")
	}
}

func TestSendChatValidationAndBound(t *testing.T) {
	a := registeredAgent(t)

	if a.SendChat("   ") {
		t.Fatal("whitespace-only chat should be rejected")
	}
	if !a.SendChat("  hi  ") {
		t.Fatal("valid chat rejected")
	}
	if got := <-a.chatOut; got != "hi" {
		t.Fatalf("chat should be queued trimmed, got %q", got)
	}

	for i := 0; i < chatQueueSize; i++ {
		if !a.SendChat(fmt.Sprintf("msg %d", i)) {
			t.Fatalf("chat %d should fit in the queue", i)
		}
	}
	if a.SendChat("overflow") {
		t.Fatal("chat into a full queue must fail visibly")
	}
}

func TestReconnectBackoffSequence(t *testing.T) {
	a := NewAgent("localhost:8989", nil)
	a.dialFn = func(string) (*websocket.Conn, error) {
		return nil, errors.New("connection refused")
	}
	var delays []time.Duration
	a.sleepFn = func(d time.Duration, stop <-chan struct{}) bool {
		delays = append(delays, d)
		return len(delays) < 3
	}

	done := make(chan struct{})
	a.run(make(chan struct{}), done)
	<-done

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d = %s, want %s (sequence %v)", i, delays[i], want[i], delays)
		}
	}
}

func TestReconnectBackoffCap(t *testing.T) {
	a := NewAgent("localhost:8989", nil)
	a.dialFn = func(string) (*websocket.Conn, error) {
		return nil, errors.New("connection refused")
	}
	var delays []time.Duration
	a.sleepFn = func(d time.Duration, stop <-chan struct{}) bool {
		delays = append(delays, d)
		return len(delays) < 8
	}

	done := make(chan struct{})
	a.run(make(chan struct{}), done)
	<-done

	// 1,2,4,8,16,30,30,30
	for _, d := range delays {
		if d > maxBackoff {
			t.Fatalf("delay %s exceeds cap %s", d, maxBackoff)
		}
	}
	if delays[len(delays)-1] != maxBackoff || delays[len(delays)-2] != maxBackoff {
		t.Fatalf("backoff should saturate at %s, got %v", maxBackoff, delays)
	}
}

func TestBackoffResetsAfterSuccessfulConnection(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// 伺服器立刻掛斷，逼客戶端走重連路徑
		_ = ws.Close()
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	a := NewAgent(wsURL, nil)
	dials := 0
	realDial := a.dialFn
	a.dialFn = func(rawURL string) (*websocket.Conn, error) {
		dials++
		if dials <= 2 {
			return nil, errors.New("connection refused")
		}
		return realDial(rawURL)
	}
	var delays []time.Duration
	a.sleepFn = func(d time.Duration, stop <-chan struct{}) bool {
		delays = append(delays, d)
		return len(delays) < 3
	}

	done := make(chan struct{})
	a.run(make(chan struct{}), done)
	<-done

	// 兩次失敗 1s、2s，成功後退避歸零：斷線重試回到 1s
	want := []time.Duration{time.Second, 2 * time.Second, time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d = %s, want %s (sequence %v)", i, delays[i], want[i], delays)
		}
	}
}
