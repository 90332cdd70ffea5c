package services

import "context"

type contextKey string

const (
	messageIDKey     contextKey = "message_id"
	deliveryCountKey contextKey = "delivery_count"
	requestIDKey     contextKey = "request_id"
)

// WithMessageID annotates context with the queue message identifier.
func WithMessageID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, messageIDKey, id)
}

// MessageIDFromContext extracts the queue message identifier if present.
func MessageIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(messageIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithDeliveryCount annotates context with the broker delivery count.
func WithDeliveryCount(ctx context.Context, count int) context.Context {
	if count <= 0 {
		return ctx
	}
	return context.WithValue(ctx, deliveryCountKey, count)
}

// DeliveryCountFromContext returns the delivery count if present.
func DeliveryCountFromContext(ctx context.Context) (int, bool) {
	if v, ok := ctx.Value(deliveryCountKey).(int); ok && v > 0 {
		return v, true
	}
	return 0, false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
