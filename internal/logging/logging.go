package logging

import (
	"log/slog"
	"os"
)

// Logg is the shared application logger, replaced at startup with the
// configured level.
var Logg = NewLogger("info")

// NewLogger builds an slog logger writing to stdout with the given level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := NewColorHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
