// Package callctx carries per-call identity through handler invocations.
//
// The dispatcher derives a fresh context for every call and annotates it with
// the invoking session's identity and the request being served. Handlers and
// logging read these values back; nothing here is ever shared across calls.
package callctx

import (
	"context"

	"spate/internal/auth"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	usernameKey  contextKey = "username"
	levelKey     contextKey = "level"
	requestIDKey contextKey = "request_id"
	methodKey    contextKey = "method"
)

// WithSession annotates ctx with the invoking session's identity.
func WithSession(ctx context.Context, sessionID, username string, level auth.Level) context.Context {
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	ctx = context.WithValue(ctx, usernameKey, username)
	return context.WithValue(ctx, levelKey, level)
}

// SessionIDFromContext returns the invoking session's identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// UsernameFromContext returns the authenticated username if present.
func UsernameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(usernameKey).(string)
	return name, ok && name != ""
}

// LevelFromContext returns the caller's authorization level at call time.
func LevelFromContext(ctx context.Context) (auth.Level, bool) {
	level, ok := ctx.Value(levelKey).(auth.Level)
	return level, ok
}

// WithRequest annotates ctx with the request id and method being served.
func WithRequest(ctx context.Context, id uint64, method string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, id)
	return context.WithValue(ctx, methodKey, method)
}

// RequestIDFromContext returns the request identifier if present.
func RequestIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(requestIDKey).(uint64)
	return id, ok
}

// MethodFromContext returns the operation name being served if present.
func MethodFromContext(ctx context.Context) (string, bool) {
	method, ok := ctx.Value(methodKey).(string)
	return method, ok && method != ""
}
