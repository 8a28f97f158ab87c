package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yrwang0517-sudo/I2P-114062318/server"
)

// 線上同步伺服器入口：HTTP + WebSocket，廣播迴圈與閒置掃描同行程運行
func main() {
	var (
		addr        string
		logFile     string
		logLevel    string
		idleTimeout time.Duration
		tickRate    int
	)
	flag.StringVar(&addr, "addr", ":8989", "server listen address, e.g. :8989")
	flag.StringVar(&logFile, "log-file", "server.log", "log file path")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug/info/warn/error")
	flag.DurationVar(&idleTimeout, "idle-timeout", server.DefaultIdleTimeout, "evict players idle longer than this")
	flag.IntVar(&tickRate, "tick-rate", server.DefaultTickRate, "snapshot broadcasts per second")
	flag.Parse()

	if err := server.InitLogger(logFile, logLevel); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	// 狀態都在這裡建一次，用 handle 傳下去，不放套件全域
	registry := server.NewRegistry()
	chat := server.NewChatLog()
	metrics := server.NewMetrics()
	hub := server.NewHub(registry, chat, metrics, tickRate)
	hub.SetIdleTimeout(idleTimeout)

	stop := make(chan struct{})
	go hub.Run(stop)

	mux := http.NewServeMux()
	// 遊戲客戶端直接連 base URL（無路徑），保留 /ws 給帶路徑的設定
	mux.HandleFunc("/", hub.HandleWS)
	mux.HandleFunc("/ws", hub.HandleWS)
	mux.HandleFunc("/admin/config", hub.HandleAdminConfig)
	mux.HandleFunc("/metrics", hub.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		server.Log.Infof("sync server listening on %s (ws endpoint: /ws, tick=%dHz)", addr, tickRate)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 優雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("shutting down...")

	close(stop)
	hub.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
