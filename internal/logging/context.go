package logging

import (
	"context"
	"log/slog"

	"terport/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized key for generation run identifiers.
	FieldRunID = "run_id"
	// FieldTrigger is the standardized key for the generation trigger type.
	FieldTrigger = "trigger"
	// FieldTopic is the standardized key for topic titles.
	FieldTopic = "topic"
	// FieldEndpoint is the standardized key for knowledge-base endpoint names.
	FieldEndpoint = "endpoint"
	// FieldModel is the standardized key for language-model identifiers.
	FieldModel = "model"
	// FieldEventType names the event a warning or error describes.
	FieldEventType = "event_type"
	// FieldErrorHint is the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID is the key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if topic, ok := services.TopicFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTopic, topic))
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
	return logger.With(toArgs(fields)...)
}
