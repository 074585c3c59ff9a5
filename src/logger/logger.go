// Package logger builds the slog loggers used throughout garnix-insights.
//
// Logs always go to stderr: stdout carries CLI output and, in MCP mode, the
// JSON-RPC stream, so nothing else may write to it.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a GARNIX_LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
}

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewSilent returns a logger that discards everything. Used by tests and by
// library callers that do not pass a logger.
func NewSilent() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrSilent returns l, or a silent logger when l is nil.
func OrSilent(l *slog.Logger) *slog.Logger {
	if l == nil {
		return NewSilent()
	}
	return l
}
