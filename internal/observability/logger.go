// Package observability holds the logger constructor and process metrics.
package observability

import (
	"io"
	"log/slog"
)

// LogConfig controls log output shape.
type LogConfig struct {
	Level slog.Level
	JSON  bool
}

// NewLogger builds the process logger. A nil writer discards output, which
// tests use to keep assertions quiet.
func NewLogger(cfg LogConfig, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: cfg.Level})
	} else {
		handler = slog.NewTextHandler(writer, &slog.HandlerOptions{Level: cfg.Level})
	}
	return slog.New(handler).With(slog.String("service", "querybridge"))
}
