package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("CACHE_DRIVER", "memory")

	cfg, err := New()
	require.Error(t, err, "empty APP_ENV is not an environment")

	t.Setenv("APP_ENV", "local")
	cfg, err = New()
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.App.Environment)
	assert.False(t, cfg.App.IsProduction())
	assert.Equal(t, "console", cfg.Observability.LogEncoding)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN)
	assert.Equal(t, 6, cfg.Verification.CodeLength)
	assert.Equal(t, 10*time.Minute, cfg.Verification.TTL)
	assert.Equal(t, 5, cfg.Verification.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Store.OpTimeout)
}

func TestProductionRequiresRedis(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("CACHE_DRIVER", "memory")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed in production")

	t.Setenv("CACHE_DRIVER", "redis")
	cfg, err := New()
	require.NoError(t, err)
	assert.True(t, cfg.App.IsProduction())
	assert.Equal(t, "json", cfg.Observability.LogEncoding)
}

func TestUnknownEnvironmentRejected(t *testing.T) {
	t.Setenv("APP_ENV", "staging.example.com")

	_, err := New()
	require.Error(t, err)
}

func TestVerificationCodeLengthBounds(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("CACHE_DRIVER", "memory")
	t.Setenv("VERIFICATION_CODE_LENGTH", "3")

	_, err := New()
	require.Error(t, err)

	t.Setenv("VERIFICATION_CODE_LENGTH", " 8 ")
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Verification.CodeLength)
}

func TestDisabledMessagingFallsBackToNoop(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("CACHE_DRIVER", "memory")
	t.Setenv("MESSAGING_ENABLED", "false")
	t.Setenv("WORKER_CONCURRENCY", "0")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "noop", cfg.Messaging.Driver)
	assert.Equal(t, 1, cfg.Messaging.Workers.Concurrency)
}

func TestEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("ORDERDESK_TEST_INT", "twelve")
	t.Setenv("ORDERDESK_TEST_DUR", " 250ms ")
	t.Setenv("ORDERDESK_TEST_LIST", " a, ,b ")
	t.Setenv("ORDERDESK_TEST_BLANK", " , ")

	assert.Equal(t, 7, getEnvAsInt("ORDERDESK_TEST_INT", 7))
	assert.Equal(t, 250*time.Millisecond, getEnvAsDuration("ORDERDESK_TEST_DUR", time.Second))
	assert.Equal(t, []string{"a", "b"}, getEnvAsStringSlice("ORDERDESK_TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvAsStringSlice("ORDERDESK_TEST_BLANK", []string{"x"}))
	assert.Equal(t, 0.5, getEnvAsFloat("ORDERDESK_TEST_UNSET_RATIO", 0.5))
}

func TestTraceSamplingClamped(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("CACHE_DRIVER", "memory")
	t.Setenv("OBS_TRACE_SAMPLE_RATIO", "4")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.Observability.TraceSampling)
}

func TestCacheMustKeepWrites(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("CACHE_DRIVER", "memory")
	t.Setenv("CACHE_ENABLED", "false")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verification codes need a cache store")

	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("CACHE_DRIVER", "noop")
	_, err = New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported cache driver")

	t.Setenv("CACHE_DRIVER", "memory")
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Cache.Driver)
}
