package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the minimal structured logging interface used throughout the
// module. Args are alternating key/value pairs in the slog convention.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement Logger.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from an existing *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewSlogLogger builds a Logger writing to out ("json" or text handler) at
// the given level. A nil out defaults to stderr.
func NewSlogLogger(level slog.Level, format string, out io.Writer) Logger {
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	return NewSlogAdapter(slog.New(h))
}

// NoOpLogger discards all log output.
type NoOpLogger struct{}

// Debug discards the message.
func (NoOpLogger) Debug(msg string, args ...any) {}

// Info discards the message.
func (NoOpLogger) Info(msg string, args ...any) {}

// Warn discards the message.
func (NoOpLogger) Warn(msg string, args ...any) {}

// Error discards the message.
func (NoOpLogger) Error(msg string, args ...any) {}

// OrNoOp returns l, substituting a NoOpLogger when nil so call sites never
// need nil checks.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
