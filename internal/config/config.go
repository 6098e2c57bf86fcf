// Package config loads process settings from the environment and saved
// connection profiles from the user's config file. Passwords can live in the
// OS keyring instead of the profile file.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"querybridge/internal/storage"
	"querybridge/internal/stream"
)

// Config holds the process configuration loaded from environment variables.
type Config struct {
	// AppEnv is the running environment (development/production).
	AppEnv string
	// LogLevel is the slog level name (debug/info/warn/error).
	LogLevel slog.Level
	// LogJSON switches the logger to JSON output.
	LogJSON bool

	// StorageType selects the export destination backend: "local" or "s3".
	StorageType string
	// LocalStoragePath is the directory for local exports.
	LocalStoragePath string
	// S3 holds object-store settings when StorageType is "s3".
	S3 storage.S3Config

	// WorkerCount is the number of concurrent export jobs allowed.
	WorkerCount int
	// DefaultTimeout bounds an export job end to end.
	DefaultTimeout time.Duration
	// BatchRows and BatchBytes cap result batch size.
	BatchRows  int
	BatchBytes int64

	// MetricsAddr serves Prometheus metrics when non-empty, e.g. ":9090".
	MetricsAddr string
}

// Load reads configuration from the environment with sensible defaults.
func Load() *Config {
	return &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         parseLevel(getEnv("LOG_LEVEL", "info")),
		LogJSON:          getEnvBool("LOG_JSON", false),
		StorageType:      getEnv("STORAGE_TYPE", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./exports"),
		S3: storage.S3Config{
			Region:    getEnv("AWS_REGION", "us-east-1"),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Bucket:    getEnv("S3_BUCKET", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
		WorkerCount:    getEnvInt("WORKER_COUNT", 4),
		DefaultTimeout: getEnvDuration("DEFAULT_TIMEOUT", 15*time.Minute),
		BatchRows:      getEnvInt("BATCH_MAX_ROWS", stream.DefaultLimits().MaxRows),
		BatchBytes:     int64(getEnvInt("BATCH_MAX_BYTES", int(stream.DefaultLimits().MaxBytes))),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),
	}
}

// Limits returns the configured batch ceilings.
func (c *Config) Limits() stream.Limits {
	return stream.Limits{MaxRows: c.BatchRows, MaxBytes: c.BatchBytes}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
