package cmd

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yashasviy/bank-ledger-api/config"
)

// newLogger builds the process logger: JSON production output, or the
// human-readable development encoder for local runs.
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	var zc zap.Config
	switch format {
	case config.LogConsole:
		zc = zap.NewDevelopmentConfig()
	default:
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	return zc.Build()
}
