// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a text or JSON logger writing to w.
func New(format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: format == "json"}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup installs a logger for service as the slog default and returns it.
func Setup(service, format string) *slog.Logger {
	logger := New(format, os.Stdout).With("service", service)
	slog.SetDefault(logger)
	return logger
}
