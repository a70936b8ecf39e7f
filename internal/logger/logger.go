package logger

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/orderdesk/internal/config"
)

// Module exposes a configured Zap logger to the Fx container.
var Module = fx.Provide(New)

// New builds the process logger and syncs it when the application stops.
func New(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	logger, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// Sync on stderr/stdout returns EINVAL on some platforms.
			_ = logger.Sync()
			return nil
		},
	})
	return logger, nil
}

// Build constructs the logger without lifecycle wiring, for CLI commands and tests.
// Console encoding gets the colored development layout; anything else is JSON.
func Build(cfg config.Config) (*zap.Logger, error) {
	obs := cfg.Observability

	level, err := zapcore.ParseLevel(strings.ToLower(obs.LogLevel))
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := productionConfig()
	if obs.LogEncoding == "console" {
		zapCfg = consoleConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.App.IsProduction() {
		zapCfg.Development = false
		zapCfg.DisableStacktrace = true
	} else {
		// Sampling hides repeated lines, which local debugging wants to see.
		zapCfg.Sampling = nil
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(
		zap.String("service", obs.ServiceName),
		zap.String("environment", string(cfg.App.Environment)),
	), nil
}

func productionConfig() zap.Config {
	c := zap.NewProductionConfig()
	c.EncoderConfig.TimeKey = "ts"
	c.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	c.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	c.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	return c
}

func consoleConfig() zap.Config {
	c := zap.NewDevelopmentConfig()
	c.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	c.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return c
}
