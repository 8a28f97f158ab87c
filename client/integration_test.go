package client

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yrwang0517-sudo/I2P-114062318/server"
)

// 起一個真的 hub（含 60Hz 廣播），回傳給 agent 用的 base URL
func startSyncServer(t *testing.T) string {
	t.Helper()
	h := server.NewHub(server.NewRegistry(), server.NewChatLog(), server.NewMetrics(), 60)
	stop := make(chan struct{})
	go h.Run(stop)
	t.Cleanup(func() { close(stop) })

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL // http://... 由 agent 自行轉成 ws://
}

func startAgent(t *testing.T, baseURL string) *Agent {
	t.Helper()
	a := NewAgent(baseURL, nil)
	a.Start()
	t.Cleanup(a.Stop)

	deadline := time.Now().Add(5 * time.Second)
	for a.PlayerID() < 0 {
		if time.Now().After(deadline) {
			t.Fatal("agent never received registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return a
}

func TestAgentSyncsWithServer(t *testing.T) {
	base := startSyncServer(t)
	agentA := startAgent(t, base)
	agentB := startAgent(t, base)

	if agentA.PlayerID() == agentB.PlayerID() {
		t.Fatalf("agents must get distinct ids, both got %d", agentA.PlayerID())
	}

	// A 的更新要出現在 B 的鏡像裡；位置佇列會被坍縮，持續餵最新值即可
	deadline := time.Now().Add(5 * time.Second)
	for {
		agentA.Update(10, 20, "m", "up", true)
		var found bool
		for _, p := range agentB.Players() {
			if p.ID == agentA.PlayerID() {
				found = p.X == 10 && p.Y == 20 && p.Map == "m" && p.Direction == "up" && p.IsMoving
			}
			if p.ID == agentB.PlayerID() {
				t.Fatal("mirror must never contain the local session's own id")
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("B never saw A's state, mirror=%+v", agentB.Players())
		}
		time.Sleep(10 * time.Millisecond)
	}

	// 自己的鏡像也不該有自己
	for _, p := range agentA.Players() {
		if p.ID == agentA.PlayerID() {
			t.Fatal("A's mirror contains A itself")
		}
	}
}

func TestAgentChatRoundTrip(t *testing.T) {
	base := startSyncServer(t)
	agentA := startAgent(t, base)
	agentB := startAgent(t, base)

	if !agentA.SendChat("hello") {
		t.Fatal("chat send should be accepted into the queue")
	}

	// 兩邊都要收到同一則訊息，from 是 A 的伺服器 id
	for _, a := range []*Agent{agentA, agentB} {
		deadline := time.Now().Add(5 * time.Second)
		for {
			var found bool
			for _, m := range a.RecentChat(0) {
				if m.Text == "hello" && m.From == agentA.PlayerID() {
					found = true
				}
			}
			if found {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("agent %d never received the chat message", a.PlayerID())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	if agentA.LastChatID() < 1 {
		t.Fatal("chat watermark should advance past zero")
	}
}
