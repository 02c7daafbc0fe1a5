package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across exportsync.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID     = "run_id"
	FieldComponent = "component"

	// Pipeline
	FieldSymbol   = "symbol"
	FieldStage    = "stage" // fetch, upload, resolve, quarantine
	FieldAttempt  = "attempt"
	FieldBatch    = "batch"
	FieldMode     = "mode"
	FieldStrategy = "strategy"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldDelayMS    = "delay_ms"

	// Errors
	FieldError     = "error"
	FieldErrorKind = "error_kind"

	// Counts and sizes
	FieldCount     = "count"
	FieldSize      = "size"
	FieldBatchSize = "batch_size"
	FieldTotal     = "total"
	FieldProcessed = "processed"
	FieldSuccess   = "success"
	FieldFailed    = "failed"
	FieldSkipped   = "skipped"
	FieldNotFound  = "not_found"

	// Status
	FieldStatus     = "status"
	FieldHTTPStatus = "http_status"

	// Files and network
	FieldFile = "file"
	FieldPath = "path"
	FieldURL  = "url"
)

// Stage values for FieldStage.
const (
	StageSelect     = "select"
	StageFetch      = "fetch"
	StageUpload     = "upload"
	StageResolve    = "resolve"
	StageQuarantine = "quarantine"
)

type contextKey string

const (
	runIDKey     contextKey = "logger_run_id"
	componentKey contextKey = "logger_component"
)

// WithRunID adds a run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base enriched with the run_id/component carried by ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	func NewOrchestrator(...) *Orchestrator {
//	    return &Orchestrator{
//	        logger: logger.ComponentLogger("batch"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
