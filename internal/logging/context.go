package logging

import (
	"context"
	"log/slog"

	"spate/internal/callctx"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionID is the standardized structured logging key for client session identifiers.
	FieldSessionID = "session_id"
	// FieldMethod is the standardized structured logging key for RPC operation names.
	FieldMethod = "method"
	// FieldRequestID is the standardized structured logging key for request identifiers.
	FieldRequestID = "request_id"
	// FieldPlugin is the standardized structured logging key for plugin owner tags.
	FieldPlugin = "plugin"
	// FieldEvent is the standardized structured logging key for event names.
	FieldEvent = "event"
	// FieldEventType is the standardized structured logging key for log event classification.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator guidance on failures.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := callctx.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if method, ok := callctx.MethodFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldMethod, method))
	}
	if rid, ok := callctx.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.Uint64(FieldRequestID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from
// the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
