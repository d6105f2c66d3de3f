package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON output in production, readable text
// with debug level in dev mode.
func New(devMode bool) *slog.Logger {
	if devMode {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
