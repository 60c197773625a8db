package log

import (
	"io"
	"log/slog"
)

// LevelFor maps the CLI verbosity flags to a log level.
// Debug wins over verbose; without either only warnings and errors are shown.
func LevelFor(verbose, debug bool) slog.Level {
	switch {
	case debug:
		return slog.LevelDebug
	case verbose:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// New creates a redacting logger writing to w.
// When json is true records are written as JSON lines, otherwise in slog's
// text format.
func New(w io.Writer, level slog.Level, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewRedactingHandler(h))
}

// Discard returns a logger that drops everything. Useful in tests and for
// components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
