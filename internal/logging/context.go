package logging

import (
	"context"
	"log/slog"
)

// Structured log keys shared across packages.
const (
	FieldComponent = "component"
	// FieldCorrelationID carries the refresh pass or enrichment batch id.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a line for filtering, e.g. provider_call_failed.
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	FieldDetector  = "detector"
	FieldProvider  = "provider"
	FieldEntryID   = "catalog_id"
)

type correlationKey struct{}

// WithCorrelationID tags ctx so loggers derived with WithContext carry id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id stored by WithCorrelationID.
func CorrelationID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

// WithContext returns logger with the correlation id from ctx attached.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if id, ok := CorrelationID(ctx); ok {
		return logger.With(slog.String(FieldCorrelationID, id))
	}
	return logger
}
