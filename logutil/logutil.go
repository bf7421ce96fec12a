// Package logutil configures the process-wide slog logger: a single
// NewLogger call from main, after which every other package reaches for
// the default slog logger rather than constructing its own.
package logutil

import (
	"io"
	"log/slog"

	"github.com/ollama/llama2.go/envconfig"
)

// NewLogger builds a text-handler slog.Logger writing to w at the level
// configured by LLAMA2_LOG_LEVEL, and installs it as the slog default.
func NewLogger(w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: envconfig.LogLevel(),
	}))
	slog.SetDefault(logger)
	return logger
}
