// Package logutil configures the process-wide structured logger and
// provides small formatting helpers shared by the relay and pool
// internals.
package logutil

import (
	"log/slog"
	"os"
	"strings"
)

// Init initializes the default logger with JSON output.
// Log level is controlled by the LOG_LEVEL env var (debug/info/warn/error).
func Init() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}

// ShortID truncates an event id or pubkey to 12 chars for logging.
func ShortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}
