package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/logger"
)

func TestBuildHonoursLevel(t *testing.T) {
	cfg := config.Config{
		App:           config.App{Environment: config.EnvProduction},
		Observability: config.Observability{ServiceName: "orderdesk", LogLevel: "WARN", LogEncoding: "json"},
	}
	log, err := logger.Build(cfg)
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zap.InfoLevel))
	assert.True(t, log.Core().Enabled(zap.WarnLevel))
}

func TestBuildFallsBackToInfo(t *testing.T) {
	cfg := config.Config{
		App:           config.App{Environment: config.EnvLocal},
		Observability: config.Observability{LogLevel: "chatty", LogEncoding: "console"},
	}
	log, err := logger.Build(cfg)
	require.NoError(t, err)

	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}
