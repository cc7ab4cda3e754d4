// Package logging builds the zap loggers used by every command.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and encoding of a logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// New constructs a logger writing to stderr so stdout stays free for run
// summaries. An empty level means info.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "@timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// Must is New for command entrypoints. An unknown level falls back to info
// and is reported through the returned logger.
func Must(cfg Config) *zap.Logger {
	logger, err := New(cfg)
	if err == nil {
		return logger
	}
	requested := cfg.Level
	cfg.Level = "info"
	logger, _ = New(cfg)
	logger.Warn("unknown log level, using info", zap.String("level", requested), zap.Error(err))
	return logger
}
