package context

import (
	"context"
	"log/slog"
)

// contextKey provides type safety for context keys to prevent collisions
type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	remoteAddrKey contextKey = "remote_addr"
	apiKeyIDKey   contextKey = "api_key_id"
	loggerKey     contextKey = "logger"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithRemoteAddr adds a remote address to the context
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey, addr)
}

// WithAPIKeyID records which configured API key authenticated the request
func WithAPIKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, apiKeyIDKey, id)
}

// WithLogger adds a structured logger to the context
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// RequestID retrieves the request ID from the context
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// RemoteAddr retrieves the remote address from the context
func RemoteAddr(ctx context.Context) string {
	if addr, ok := ctx.Value(remoteAddrKey).(string); ok {
		return addr
	}
	return "unknown"
}

// APIKeyID retrieves the authenticated API key ID from the context
func APIKeyID(ctx context.Context) string {
	if id, ok := ctx.Value(apiKeyIDKey).(string); ok {
		return id
	}
	return ""
}

// Logger retrieves the logger from the context, returning a default logger if none is set
func Logger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
