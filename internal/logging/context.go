package logging

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. feature_upserted).
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldRunID is the standardized structured logging key for tracking run identifiers.
	FieldRunID = "run_id"
	// FieldExperiment is the standardized structured logging key for experiment names.
	FieldExperiment = "experiment"
	// FieldImageHash is the standardized structured logging key for feature record keys.
	FieldImageHash = "image_hash"
	// FieldLabel is the standardized structured logging key for dataset class labels.
	FieldLabel = "label"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

type contextKey int

const (
	runIDKey contextKey = iota
	experimentKey
	labelKey
)

// WithRunID annotates ctx with a tracking run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return withString(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run identifier stored by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, runIDKey)
}

// WithExperiment annotates ctx with an experiment name.
func WithExperiment(ctx context.Context, experiment string) context.Context {
	return withString(ctx, experimentKey, experiment)
}

// ExperimentFromContext returns the experiment stored by WithExperiment.
func ExperimentFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, experimentKey)
}

// WithLabel annotates ctx with the class label currently being processed.
func WithLabel(ctx context.Context, label string) context.Context {
	return withString(ctx, labelKey, label)
}

// LabelFromContext returns the label stored by WithLabel.
func LabelFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, labelKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(key).(string)
	return value, ok && value != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if experiment, ok := ExperimentFromContext(ctx); ok {
		fields = append(fields, String(FieldExperiment, experiment))
	}
	if id, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, RunID(id))
	}
	if label, ok := LabelFromContext(ctx); ok {
		fields = append(fields, Label(label))
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
	return logger.With(Args(fields...)...)
}
