// Package logger holds the process-wide zap logger.
//
//	logger.InitLogger("debug")
//	logger.Log.Info("account linked", zap.String("code", code))
//
// Library packages never reach for Log directly; they accept a *zap.Logger
// and default to a no-op logger. Only main wires Log into them.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = zap.NewNop()

// InitLogger builds a production JSON logger at level. Unknown levels fall
// back to info.
func InitLogger(level string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	Log, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}
