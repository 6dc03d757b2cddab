package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3*time.Second, cfg.Queue.TickInterval)
	assert.Equal(t, 10*time.Second, cfg.Queue.MessageDelay)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Session.InitTimeout)
	assert.Equal(t, 5*time.Second, cfg.Session.RetryBackoff)
	assert.Equal(t, 2*time.Second, cfg.Session.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.Session.ProbeInterval)
	assert.Equal(t, 3, cfg.Session.MaxInitFailures)
	assert.Same(t, cfg, Global)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MESSAGE_DELAY", "2")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("SESSION_RETRY_BACKOFF", "1500ms")
	t.Setenv("SESSION_INIT_TIMEOUT", "90")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("VALKEY_ENABLED", "yes")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Queue.MessageDelay)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.Equal(t, 1500*time.Millisecond, cfg.Session.RetryBackoff)
	assert.Equal(t, 90*time.Second, cfg.Session.InitTimeout)
	assert.Equal(t, "whatsapp_engine", cfg.Database.Name)
	assert.True(t, cfg.Database.ValkeyEnabled)
}

func TestGetEnvDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Minute, getEnvDuration("SOME_DURATION", time.Minute))
}
