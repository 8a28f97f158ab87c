package server

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 全域 SugaredLogger，server 與 main 共用
var Log *zap.SugaredLogger

func init() {
	// 未呼叫 InitLogger（例如測試）時避免 nil
	Log = zap.NewNop().Sugar()
}

// InitLogger 初始化 zap 日誌到本地檔案（支援滾動）
// filePath: 日誌檔路徑，如 "server.log"；level: debug/info/warn/error
func InitLogger(filePath, level string) error {
	lv := zapcore.InfoLevel
	if err := lv.Set(level); err != nil {
		return err
	}

	// 滾動策略：10MB 每檔，保留 3 份備份，最多 7 天
	lj := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   false,
	}

	ws := zapcore.AddSync(lj)
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	encoder := zapcore.NewConsoleEncoder(encCfg)
	core := zapcore.NewCore(encoder, ws, lv)

	logger := zap.New(core, zap.AddCaller())
	Log = logger.Sugar()
	return nil
}

// SyncLogger 清空日誌緩衝
func SyncLogger() {
	if Log != nil {
		_ = Log.Sync()
	}
}
