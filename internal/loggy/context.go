package loggy

import (
	"context"

	"github.com/tildaslashalef/reposync/internal/ulid"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
	passIDKey contextKey = "pass_id"
)

// FromContext retrieves the logger from the context, falling back to the global logger
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return globalLogger
	}

	if logger, ok := ctx.Value(loggerKey).(*Logger); ok && logger != nil {
		return logger
	}

	return globalLogger
}

// WithLogger returns a new context with the logger attached
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// PassID retrieves the reconciliation pass id from the context
func PassID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	if id, ok := ctx.Value(passIDKey).(string); ok {
		return id
	}

	return ""
}

// WithPassID tags ctx with a reconciliation pass id and attaches a logger
// carrying it, so every record emitted during the pass can be correlated.
func WithPassID(ctx context.Context, passID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, passIDKey, passID)

	if logger := FromContext(ctx); logger != nil {
		ctx = WithLogger(ctx, logger.With("pass_id", passID))
	}
	return ctx
}

// NewPassID generates a new pass id
func NewPassID() string {
	return ulid.PassID()
}
