// Package log provides configurable logging for fhirsql.
package log

import (
	"io"
	"log/slog"
)

// NewConsoleHandler creates a handler writing text or JSON lines to w.
// Any format other than "json" selects the text handler.
func NewConsoleHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
