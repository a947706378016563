package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
	traceKey
)

// trace identifies the operation currently running on a context.
type trace struct {
	traceID string
	spanID  string
}

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the operation-scoped logger or falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}

// WithCommand tags every record logged through ctx with the CLI command being run.
func WithCommand(ctx context.Context, command string) context.Context {
	if command == "" {
		return ctx
	}
	return WithLogger(ctx, FromContext(ctx).With(slog.String("command", command)))
}

// WithRequestID pins the identifier sent with outgoing API requests.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the pinned request identifier, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// EnsureRequestID returns the context's request identifier, generating and
// storing a new one when none is present.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// TraceFromContext returns the trace and span identifiers of the innermost
// span started on ctx. Both are empty outside a span.
func TraceFromContext(ctx context.Context) (traceID, spanID string) {
	if ctx == nil {
		return "", ""
	}
	t, _ := ctx.Value(traceKey).(trace)
	return t.traceID, t.spanID
}
