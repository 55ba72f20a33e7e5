package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"startup-spark/internal/config"
)

// New builds the process logger. Development encoding is used outside production.
func New(cfg config.Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	zc := zap.NewProductionConfig()
	if !cfg.IsProduction {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level

	return zc.Build()
}
