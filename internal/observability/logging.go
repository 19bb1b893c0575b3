// Package observability provides structured logging for the engine and its binaries.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zvx-echo6/mmud-sub000/internal/config"
)

// NewLogger creates a structured logger from the given logging configuration.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
		// Combat rounds log at debug; sampling would drop per-hit records.
		zapCfg.Sampling = nil
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// Component returns a child logger tagged with the given engine component name.
// When cfg.Components names the component, the child only logs at that level
// or above; the base logger is unaffected.
//
// Precondition: logger must be non-nil; component levels must not be below cfg.Level.
func Component(logger *zap.Logger, cfg config.LoggingConfig, name string) *zap.Logger {
	child := logger.Named(name).With(zap.String("component", name))
	raw, ok := cfg.Components[name]
	if !ok {
		return child
	}
	level, err := zapcore.ParseLevel(raw)
	if err != nil {
		logger.Warn("ignoring component log level",
			zap.String("component", name),
			zap.String("level", raw),
		)
		return child
	}
	return child.WithOptions(zap.IncreaseLevel(level))
}
