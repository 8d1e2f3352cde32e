package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger: console output in development, JSON
// otherwise, at LogLevel when it parses.
func NewLogger(cfg Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Environment == "development" {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.LogLevel != "" {
		if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
			zc.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	return zc.Build()
}
