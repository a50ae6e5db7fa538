// Package logger wraps log/slog behind a small interface so packages can take
// a logger as a dependency and tests can silence it.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the logging interface used across raftflow.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type slogLogger struct {
	*slog.Logger
}

func (l slogLogger) With(args ...any) Logger {
	return slogLogger{l.Logger.With(args...)}
}

func wrap(h slog.Handler) Logger { return slogLogger{slog.New(h)} }

// Default writes text records at info level to stderr.
func Default() Logger { return Text(os.Stderr, slog.LevelInfo) }

// Discard drops every record.
func Discard() Logger { return wrap(slog.DiscardHandler) }

// JSON writes one JSON object per record.
func JSON(w io.Writer, level slog.Level) Logger {
	return wrap(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Text writes logfmt-style records.
func Text(w io.Writer, level slog.Level) Logger {
	return wrap(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Pretty writes coloured single-line records for a terminal.
func Pretty(w io.Writer, level slog.Level) Logger {
	return wrap(newPrettyHandler(w, level))
}

// Build picks a handler by format name: "json", "text" or "pretty" (default).
func Build(format string, level slog.Level, w io.Writer) Logger {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return JSON(w, level)
	case "text":
		return Text(w, level)
	}
	return Pretty(w, level)
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

type ctxKey struct{}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger stored in ctx, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return Default()
}
