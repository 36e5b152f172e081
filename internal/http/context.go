package http

import (
	"context"
	"log/slog"

	"github.com/example/release-signoff/internal/logging"
)

type contextKey string

const sessionKeyContextKey contextKey = "session_key"

// ContextWithLogger attaches a request-scoped logger to the context.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request-scoped logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

// ContextWithSessionKey injects the session key resolved from the request path.
func ContextWithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return context.WithValue(ctx, sessionKeyContextKey, sessionKey)
}

// SessionKeyFromContext extracts a session key previously associated with the
// context.
func SessionKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(sessionKeyContextKey).(string)
	return key, ok
}
