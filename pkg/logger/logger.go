package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It discards everything until Init runs so
// library code and tests can log unconditionally.
var Log = zap.NewNop()

// Init sets up the global logger. Call once in main().
func Init() error {
	return InitWithLevel(os.Getenv("LOG_LEVEL"))
}

// InitWithLevel is Init with an explicit level string.
func InitWithLevel(level string) error {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		cfg.Level.SetLevel(parseLevel(level))
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = l
	return nil
}

// Named returns a child of the global logger for one component.
func Named(component string) *zap.Logger {
	return Log.Named(component)
}

// Sync flushes buffered entries; errors from syncing stderr are ignored.
func Sync() {
	_ = Log.Sync()
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
