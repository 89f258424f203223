// Package observability sets up the turn server's zap logger and its
// OpenTelemetry tracer.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/guildturn/internal/config"
)

// NewLogger builds the process logger. Every entry carries a "service"
// field.
//
// Precondition: cfg.Level is one of "debug", "info", "warn", "error";
// cfg.Format is "json" or "console"; service is non-empty.
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig, service string) (*zap.Logger, error) {
	zc, err := loggerConfig(cfg, service)
	if err != nil {
		return nil, err
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building %s logger: %w", service, err)
	}
	return logger, nil
}

func loggerConfig(cfg config.LoggingConfig, service string) (zap.Config, error) {
	if service == "" {
		return zap.Config{}, fmt.Errorf("logger needs a service name")
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	switch cfg.Format {
	case "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	// Debug keeps every entry.
	if level == zapcore.DebugLevel {
		zc.Sampling = nil
	}
	zc.InitialFields = map[string]any{"service": service}
	return zc, nil
}
