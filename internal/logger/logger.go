// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

type jobIDKey struct{}

type requestIDKey struct{}

// New creates a JSON logger on stdout.
func New() *slog.Logger {
	return NewWithWriter(os.Stdout, slog.LevelInfo)
}

// NewWithWriter creates a JSON logger on w.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewWithFile creates a logger writing text to stderr and JSON to path. With an
// empty path, or when the file cannot be opened, only stderr is used. The returned
// function closes the file.
func NewWithFile(path string, level slog.Level) (*slog.Logger, func() error) {
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if path == "" {
		return slog.New(stderrHandler), func() error { return nil }
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l := slog.New(stderrHandler)
		l.Error("failed to open log file, using stderr only", "error", err, "file", path)
		return l, func() error { return nil }
	}

	return NewFanout(os.Stderr, file, level), file.Close
}

// NewFanout creates a logger writing text to console and JSON to file.
func NewFanout(console, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	))
}

// WithJobID returns a new context carrying the job being served.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// JobIDFromContext extracts the job ID from the context.
func JobIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(jobIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID returns a new context with the given request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// FromContext returns base with the job and request IDs in ctx attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	l := base
	if jobID := JobIDFromContext(ctx); jobID != "" {
		l = l.With("job_id", jobID)
	}
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		l = l.With("request_id", reqID)
	}
	return l
}
