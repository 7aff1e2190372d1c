package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/itsneelabh/gorag/core"
	"github.com/itsneelabh/gorag/resilience"
)

// setupRedisAdapter starts a miniredis instance and connects an adapter to it
func setupRedisAdapter(t *testing.T, opts RedisAdapterOptions) (*miniredis.Miniredis, *RedisAdapter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	opts.RedisURL = "redis://" + mr.Addr()
	adapter, err := NewRedisAdapter(opts)
	if err != nil {
		t.Fatalf("Failed to create redis adapter: %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })

	return mr, adapter
}

func TestRedisAdapterStoreAndRetrieve(t *testing.T) {
	_, adapter := setupRedisAdapter(t, RedisAdapterOptions{Name: "cache", Namespace: "test"})
	ctx := context.Background()

	docs := []Document{
		{ID: "1", Content: "circuit breakers protect failing services"},
		{ID: "2", Content: "redis stores documents", Metadata: map[string]interface{}{"topic": "storage"}},
		{ID: "3", Content: "nothing relevant here"},
	}
	for _, doc := range docs {
		if err := adapter.AddDocument(ctx, doc); err != nil {
			t.Fatalf("failed to store document %s: %v", doc.ID, err)
		}
	}

	items, err := adapter.GetRelevantContext(ctx, "redis documents", &core.RetrievalRequest{RequestID: "req-1"})
	if err != nil {
		t.Fatalf("retrieval failed: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0]["content"] != "redis stores documents" {
		t.Errorf("content = %v", items[0]["content"])
	}
	if items[0]["document_id"] != "2" {
		t.Errorf("document_id = %v, want 2", items[0]["document_id"])
	}
	if items[0]["source"] != "cache" {
		t.Errorf("source = %v, want cache", items[0]["source"])
	}
	if items[0]["topic"] != "storage" {
		t.Error("document metadata should be carried onto the item")
	}
}

func TestRedisAdapterMaxResults(t *testing.T) {
	_, adapter := setupRedisAdapter(t, RedisAdapterOptions{Name: "cache", Namespace: "test", MaxResults: 2})
	ctx := context.Background()

	for _, content := range []string{"alpha match", "beta match", "gamma match"} {
		if err := adapter.AddDocument(ctx, Document{Content: content}); err != nil {
			t.Fatalf("failed to store document: %v", err)
		}
	}

	items, err := adapter.GetRelevantContext(ctx, "match", nil)
	if err != nil {
		t.Fatalf("retrieval failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("got %d items, want max 2", len(items))
	}
}

func TestRedisAdapterSkipsMalformedDocuments(t *testing.T) {
	mr, adapter := setupRedisAdapter(t, RedisAdapterOptions{Name: "cache", Namespace: "test"})
	ctx := context.Background()

	if _, err := mr.Push("test:documents", "{this is not json"); err != nil {
		t.Fatalf("failed to seed malformed entry: %v", err)
	}
	if err := adapter.AddDocument(ctx, Document{ID: "ok", Content: "valid match"}); err != nil {
		t.Fatalf("failed to store document: %v", err)
	}

	items, err := adapter.GetRelevantContext(ctx, "match", nil)
	if err != nil {
		t.Fatalf("malformed entries should be skipped, not fail the call: %v", err)
	}
	if len(items) != 1 || items[0]["document_id"] != "ok" {
		t.Errorf("items = %v, want only the valid document", items)
	}
}

func TestRedisAdapterDefaultNamespace(t *testing.T) {
	mr, adapter := setupRedisAdapter(t, RedisAdapterOptions{Name: "cache"})

	if err := adapter.AddDocument(context.Background(), Document{Content: "data"}); err != nil {
		t.Fatalf("failed to store document: %v", err)
	}
	if !mr.Exists("gorag:docs:documents") {
		t.Errorf("documents should live under the default namespace, keys = %v", mr.Keys())
	}
}

func TestRedisAdapterRejectsBadURL(t *testing.T) {
	if _, err := NewRedisAdapter(RedisAdapterOptions{Name: "cache"}); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("missing URL: err = %v, want ErrInvalidConfiguration", err)
	}
	if _, err := NewRedisAdapter(RedisAdapterOptions{Name: "cache", RedisURL: "not-a-url"}); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("malformed URL: err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestRedisAdapterConnectionFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisAdapter(RedisAdapterOptions{
		Name:     "cache",
		RedisURL: "redis://" + addr,
		Retry: &resilience.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  5 * time.Millisecond,
			MaxDelay:      20 * time.Millisecond,
			BackoffFactor: 2.0,
		},
	})
	if !errors.Is(err, core.ErrConnectionFailed) {
		t.Errorf("err = %v, want ErrConnectionFailed", err)
	}
}
