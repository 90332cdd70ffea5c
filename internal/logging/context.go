package logging

import (
	"context"
	"log/slog"

	"filerelay/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldMessageID is the broker-assigned or producer-assigned message identifier.
	FieldMessageID = "message_id"
	// FieldLabel carries the message label, which is the absolute source path.
	FieldLabel = "label"
	// FieldDeliveryCount is how many times the broker has delivered the message.
	FieldDeliveryCount = "delivery_count"
	// FieldObjectKey is the object store key written for a file.
	FieldObjectKey = "object_key"
	// FieldPath is a local filesystem path.
	FieldPath = "path"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldRunID identifies one process run; it matches the log file name.
	FieldRunID = "run_id"
	// FieldEventType names the operator-visible event a record describes.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.MessageIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldMessageID, id))
	}
	if count, ok := services.DeliveryCountFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldDeliveryCount, count))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, 0, len(fields))
	for _, field := range fields {
		args = append(args, field)
	}
	return logger.With(args...)
}
