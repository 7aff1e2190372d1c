package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/itsneelabh/gorag/core"
)

func TestHTTPAdapterRoundTrip(t *testing.T) {
	var received retrievalPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(retrievalResponse{
			Results: []core.ContextItem{
				{"content": "remote result one"},
				{"content": "remote result two"},
			},
		})
	}))
	defer server.Close()

	adapter, err := NewHTTPAdapter(HTTPAdapterOptions{
		Name:     "remote",
		Endpoint: server.URL,
	})
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}

	req := &core.RetrievalRequest{
		RequestID: "req-1",
		UserID:    "u-2",
		TraceID:   "tr-3",
		APIKey:    "sekrit",
		Extra:     map[string]interface{}{"top_k": float64(4)},
	}
	items, err := adapter.GetRelevantContext(context.Background(), "find things", req)
	if err != nil {
		t.Fatalf("retrieval failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0]["content"] != "remote result one" {
		t.Errorf("items[0] = %v", items[0])
	}

	if received.Query != "find things" {
		t.Errorf("payload query = %q", received.Query)
	}
	if received.RequestID != "req-1" || received.UserID != "u-2" || received.TraceID != "tr-3" {
		t.Errorf("identifiers not forwarded: %+v", received)
	}
	if received.Extra["top_k"] != float64(4) {
		t.Errorf("extras not forwarded: %+v", received.Extra)
	}
}

func TestHTTPAdapterNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter, _ := NewHTTPAdapter(HTTPAdapterOptions{Name: "remote", Endpoint: server.URL})

	_, err := adapter.GetRelevantContext(context.Background(), "q", nil)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !errors.Is(err, core.ErrRequestFailed) {
		t.Errorf("err = %v, want ErrRequestFailed", err)
	}
}

func TestHTTPAdapterMaxResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(retrievalResponse{
			Results: []core.ContextItem{
				{"content": "a"}, {"content": "b"}, {"content": "c"},
			},
		})
	}))
	defer server.Close()

	adapter, _ := NewHTTPAdapter(HTTPAdapterOptions{Name: "remote", Endpoint: server.URL, MaxResults: 2})

	items, err := adapter.GetRelevantContext(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("retrieval failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("got %d items, want 2", len(items))
	}
}

func TestHTTPAdapterCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	adapter, _ := NewHTTPAdapter(HTTPAdapterOptions{Name: "remote", Endpoint: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := adapter.GetRelevantContext(ctx, "q", nil); err == nil {
		t.Error("canceled context should surface an error")
	}
}

func TestHTTPAdapterRequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPAdapter(HTTPAdapterOptions{Name: "remote"}); err == nil {
		t.Error("missing endpoint should fail")
	}
	if _, err := NewHTTPAdapter(HTTPAdapterOptions{Name: "remote", Endpoint: "::"}); err == nil {
		t.Error("malformed endpoint should fail")
	}
}
