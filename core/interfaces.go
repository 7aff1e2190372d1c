package core

import (
	"context"
)

// Logger interface - minimal logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// ComponentAwareLogger is implemented by loggers that can attribute log
// entries to a framework component (e.g. "gorag/resilience").
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry interface - optional telemetry support
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents a telemetry span
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// ContextItem is a single piece of retrieved evidence. Adapters return
// opaque maps; the only key the framework relies on is "content".
type ContextItem map[string]interface{}

// RetrievalRequest carries the per-request identifiers and caller extras
// that are handed to every adapter invocation. All identifier fields are
// optional and come from the ExecutionContext of the owning request.
type RetrievalRequest struct {
	RequestID     string
	UserID        string
	TraceID       string
	SessionID     string
	CorrelationID string
	APIKey        string

	// Extra holds caller-supplied keyword arguments that are passed
	// through to the adapter untouched.
	Extra map[string]interface{}
}

// Adapter is an opaque, independently-configured retrieval backend
// (vector store, SQL database, intent matcher, file index). The executor
// treats every adapter as a black box exposing this single capability.
//
// Implementations must honor ctx cancellation on a best-effort basis;
// the executor enforces timeouts by abandoning the call, not by forcibly
// aborting it.
type Adapter interface {
	GetRelevantContext(ctx context.Context, query string, req *RetrievalRequest) ([]ContextItem, error)
}

// AdapterManager resolves configured adapter instances by name.
type AdapterManager interface {
	// GetAdapter returns the adapter registered under name, or an error
	// wrapping ErrAdapterNotFound if no such adapter exists.
	GetAdapter(name string) (Adapter, error)
}

// Default no-op implementations

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// NoOpTelemetry provides a no-op telemetry implementation
type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan provides a no-op span implementation
type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}
