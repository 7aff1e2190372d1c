package core

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewExecutionContext verifies request id generation
func TestNewExecutionContext(t *testing.T) {
	ec := NewExecutionContext("secret-key")

	require.NotEmpty(t, ec.RequestID)
	_, err := uuid.Parse(ec.RequestID)
	assert.NoError(t, err, "request id should be a valid UUID")
	assert.Equal(t, "secret-key", ec.APIKey)

	// Distinct contexts get distinct ids
	other := NewExecutionContext("")
	assert.NotEqual(t, ec.RequestID, other.RequestID)
}

// TestLogPrefix verifies the prefix is deterministic and omits empty fields
func TestLogPrefix(t *testing.T) {
	tests := []struct {
		name string
		ctx  ExecutionContext
		want string
	}{
		{
			name: "request id only",
			ctx:  ExecutionContext{RequestID: "req-1"},
			want: "[req-1]",
		},
		{
			name: "all identifiers",
			ctx: ExecutionContext{
				RequestID: "req-1",
				TraceID:   "tr-9",
				UserID:    "u-42",
				SessionID: "sess-7",
			},
			want: "[req-1] trace:tr-9 user:u-42 session:sess-7",
		},
		{
			name: "partial identifiers keep fixed order",
			ctx: ExecutionContext{
				RequestID: "req-1",
				UserID:    "u-42",
			},
			want: "[req-1] user:u-42",
		},
		{
			name: "correlation id excluded",
			ctx: ExecutionContext{
				RequestID:     "req-1",
				CorrelationID: "corr-3",
			},
			want: "[req-1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ctx.LogPrefix())
		})
	}
}

// TestRetrievalRequest verifies the kwarg bundle carries all identifiers
// plus caller extras
func TestRetrievalRequest(t *testing.T) {
	ec := &ExecutionContext{
		RequestID:     "req-1",
		UserID:        "u-42",
		TraceID:       "tr-9",
		SessionID:     "sess-7",
		CorrelationID: "corr-3",
		APIKey:        "key",
	}

	req := ec.RetrievalRequest(map[string]interface{}{"top_k": 5})

	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, "u-42", req.UserID)
	assert.Equal(t, "tr-9", req.TraceID)
	assert.Equal(t, "sess-7", req.SessionID)
	assert.Equal(t, "corr-3", req.CorrelationID)
	assert.Equal(t, "key", req.APIKey)
	assert.Equal(t, 5, req.Extra["top_k"])

	// Nil extras are fine
	assert.Nil(t, ec.RetrievalRequest(nil).Extra)
}
