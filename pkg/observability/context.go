package observability

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDCtxKey contextKey = "correlation_id"
	requestIDCtxKey     contextKey = "request_id"
	actorIDCtxKey       contextKey = "actor_id"
)

// requestKeys are copied onto every log record, in this order.
var requestKeys = []contextKey{correlationIDCtxKey, requestIDCtxKey, actorIDCtxKey}

// Attribute keys used in logs and metrics.
const (
	CorrelationIDKey = string(correlationIDCtxKey)
	RequestIDKey     = string(requestIDCtxKey)
	ActorIDKey       = string(actorIDCtxKey)
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// WithCorrelationID adds a correlation ID to the context, generating one
// when id is empty. Outbox events carry it so a booking and the
// notifications it triggers share one ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return withString(ctx, correlationIDCtxKey, id)
}

// CorrelationIDFromContext extracts the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDCtxKey)
}

// WithRequestID adds a request ID to the context, generating one when id
// is empty.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return withString(ctx, requestIDCtxKey, id)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDCtxKey)
}

// WithActorID records who is acting: a staff member, a patient, or the
// holder of an action token. It is only used for logs and event metadata.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return withString(ctx, actorIDCtxKey, actorID)
}

// ActorIDFromContext extracts the actor ID from context.
func ActorIDFromContext(ctx context.Context) string {
	return stringValue(ctx, actorIDCtxKey)
}

// NewRequestContext starts a request: a fresh request ID and the
// caller's correlation ID, or a new one.
func NewRequestContext(ctx context.Context, parentCorrelationID string) context.Context {
	return WithCorrelationID(WithRequestID(ctx, ""), parentCorrelationID)
}
