package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.LogJSON)
	assert.Equal(t, "local", cfg.StorageType)
	assert.Equal(t, "./exports", cfg.LocalStoragePath)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 15*time.Minute, cfg.DefaultTimeout)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_JSON", "true")
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("S3_BUCKET", "exports")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("DEFAULT_TIMEOUT", "30s")
	t.Setenv("BATCH_MAX_ROWS", "500")
	t.Setenv("BATCH_MAX_BYTES", "1048576")
	t.Setenv("METRICS_ADDR", ":9090")

	cfg := Load()
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, "s3", cfg.StorageType)
	assert.Equal(t, "exports", cfg.S3.Bucket)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, ":9090", cfg.MetricsAddr)

	limits := cfg.Limits()
	assert.Equal(t, 500, limits.MaxRows)
	assert.Equal(t, int64(1048576), limits.MaxBytes)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WORKER_COUNT", "lots")
	t.Setenv("DEFAULT_TIMEOUT", "soon")
	t.Setenv("LOG_JSON", "yep")

	cfg := Load()
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 15*time.Minute, cfg.DefaultTimeout)
	assert.False(t, cfg.LogJSON)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("everything"))
}
