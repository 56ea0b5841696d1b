package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_DATA_DIR", "/tmp/pulse")
	cfg := Load()

	assert.Equal(t, ":3001", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "/tmp/pulse/systempulse.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.PersistInterval)
	assert.Equal(t, 2*time.Second, cfg.BroadcastInterval)
	assert.Equal(t, time.Minute, cfg.AlertCooldown)
	assert.Equal(t, "mock", cfg.MetricsSource)
	assert.False(t, cfg.LogCaller)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PERSIST_INTERVAL", "1m")
	t.Setenv("APP_BROADCAST_INTERVAL", "500ms")
	t.Setenv("APP_DB_DRIVER", "Postgres")
	t.Setenv("APP_RETENTION_DAYS", "7")
	t.Setenv("APP_LOG_CALLER", "yes")
	cfg := Load()

	assert.Equal(t, time.Minute, cfg.PersistInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.BroadcastInterval)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.True(t, cfg.LogCaller)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("APP_BROADCAST_INTERVAL", "soon")
	t.Setenv("APP_PERSIST_INTERVAL", "-5s")
	t.Setenv("APP_RETENTION_DAYS", "many")
	t.Setenv("APP_LOG_CALLER", "maybe")
	cfg := Load()

	assert.Equal(t, 2*time.Second, cfg.BroadcastInterval)
	assert.Equal(t, 30*time.Second, cfg.PersistInterval)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.False(t, cfg.LogCaller)
}
