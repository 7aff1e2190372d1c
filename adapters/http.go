package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/itsneelabh/gorag/core"
)

// HTTPAdapter queries a remote retriever service. The request is a JSON
// POST carrying the query and the correlation identifiers; the response is
// expected to be {"results": [...]} where each result is a context item.
// The transport is instrumented with otelhttp so remote retrievals show up
// in distributed traces.
type HTTPAdapter struct {
	name       string
	endpoint   string
	maxResults int
	client     *http.Client
	logger     core.Logger
}

// HTTPAdapterOptions configures the HTTP adapter.
type HTTPAdapterOptions struct {
	Name     string
	Endpoint string
	// MaxResults caps a single retrieval. Zero means no cap.
	MaxResults int
	// Timeout bounds a single HTTP exchange. The executor applies its own
	// per-call timeout on top via the request context.
	Timeout time.Duration
	Logger  core.Logger
}

// NewHTTPAdapter creates an HTTP adapter for a remote retriever endpoint.
func NewHTTPAdapter(opts HTTPAdapterOptions) (*HTTPAdapter, error) {
	if opts.Logger == nil {
		opts.Logger = &core.NoOpLogger{}
	}
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required: %w", core.ErrMissingConfiguration)
	}
	if _, err := url.ParseRequestURI(opts.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", opts.Endpoint, core.ErrInvalidConfiguration)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	return &HTTPAdapter{
		name:       opts.Name,
		endpoint:   opts.Endpoint,
		maxResults: opts.MaxResults,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: opts.Logger,
	}, nil
}

// retrievalPayload is the wire request sent to the remote retriever.
type retrievalPayload struct {
	Query         string                 `json:"query"`
	RequestID     string                 `json:"request_id,omitempty"`
	UserID        string                 `json:"user_id,omitempty"`
	TraceID       string                 `json:"trace_id,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	MaxResults    int                    `json:"max_results,omitempty"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}

// retrievalResponse is the wire response from the remote retriever.
type retrievalResponse struct {
	Results []core.ContextItem `json:"results"`
}

// GetRelevantContext POSTs the query to the remote retriever and decodes
// its results.
func (h *HTTPAdapter) GetRelevantContext(ctx context.Context, query string, req *core.RetrievalRequest) ([]core.ContextItem, error) {
	payload := retrievalPayload{
		Query:      query,
		MaxResults: h.maxResults,
	}
	if req != nil {
		payload.RequestID = req.RequestID
		payload.UserID = req.UserID
		payload.TraceID = req.TraceID
		payload.SessionID = req.SessionID
		payload.CorrelationID = req.CorrelationID
		payload.Extra = req.Extra
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode retrieval request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build retrieval request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req != nil && req.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("retrieval request failed: %w", core.ErrConnectionFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.logger.Warn("Remote retriever returned non-OK status", map[string]interface{}{
			"operation": "http_retrieval",
			"adapter":   h.name,
			"endpoint":  h.endpoint,
			"status":    resp.StatusCode,
		})
		return nil, fmt.Errorf("remote retriever returned status %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}

	var decoded retrievalResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode retrieval response: %w", core.ErrRequestFailed)
	}

	items := decoded.Results
	if h.maxResults > 0 && len(items) > h.maxResults {
		items = items[:h.maxResults]
	}
	return items, nil
}
