package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ExecutionContext is the immutable per-request bundle of correlation
// identifiers threaded through every adapter call. It is constructed once
// at the start of a request and never mutated afterwards, so it is safe
// to share across goroutines without synchronization.
type ExecutionContext struct {
	RequestID     string
	UserID        string
	TraceID       string
	SessionID     string
	CorrelationID string
	APIKey        string
}

// NewExecutionContext creates a context with a generated request id.
func NewExecutionContext(apiKey string) *ExecutionContext {
	return &ExecutionContext{
		RequestID: uuid.New().String(),
		APIKey:    apiKey,
	}
}

// LogPrefix builds a deterministic log prefix from the non-empty
// identifiers in fixed order: request id, trace id, user id, session id.
// The correlation id is carried on the context but excluded here.
func (c *ExecutionContext) LogPrefix() string {
	parts := []string{fmt.Sprintf("[%s]", c.RequestID)}
	if c.TraceID != "" {
		parts = append(parts, "trace:"+c.TraceID)
	}
	if c.UserID != "" {
		parts = append(parts, "user:"+c.UserID)
	}
	if c.SessionID != "" {
		parts = append(parts, "session:"+c.SessionID)
	}
	return strings.Join(parts, " ")
}

// RetrievalRequest derives the kwarg bundle handed to adapters, merging
// in any caller-supplied extras.
func (c *ExecutionContext) RetrievalRequest(extra map[string]interface{}) *RetrievalRequest {
	return &RetrievalRequest{
		RequestID:     c.RequestID,
		UserID:        c.UserID,
		TraceID:       c.TraceID,
		SessionID:     c.SessionID,
		CorrelationID: c.CorrelationID,
		APIKey:        c.APIKey,
		Extra:         extra,
	}
}
