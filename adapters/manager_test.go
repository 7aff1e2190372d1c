package adapters

import (
	"context"
	"errors"
	"testing"

	"github.com/itsneelabh/gorag/core"
)

func TestManagerRegisterAndGet(t *testing.T) {
	m := NewManager(nil)

	static := NewStaticAdapter("docs", []Document{{Content: "hello world"}})
	if err := m.Register("docs", static); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, err := m.GetAdapter("docs")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != core.Adapter(static) {
		t.Error("returned adapter is not the registered instance")
	}
}

func TestManagerUnknownAdapter(t *testing.T) {
	m := NewManager(nil)

	_, err := m.GetAdapter("ghost")
	if err == nil {
		t.Fatal("expected error for unknown adapter")
	}
	if !errors.Is(err, core.ErrAdapterNotFound) {
		t.Errorf("err = %v, want ErrAdapterNotFound", err)
	}
	if !core.IsNotFound(err) {
		t.Error("IsNotFound should recognize the error")
	}
}

func TestManagerRejectsDuplicatesAndNil(t *testing.T) {
	m := NewManager(nil)
	static := NewStaticAdapter("a", nil)

	if err := m.Register("a", static); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := m.Register("a", static); err == nil {
		t.Error("duplicate register should fail")
	}
	if err := m.Register("", static); err == nil {
		t.Error("empty name should fail")
	}
	if err := m.Register("b", nil); err == nil {
		t.Error("nil adapter should fail")
	}
}

func TestManagerReplaceAndUnregister(t *testing.T) {
	m := NewManager(nil)
	first := NewStaticAdapter("v1", nil)
	second := NewStaticAdapter("v2", nil)

	m.Replace("docs", first)
	m.Replace("docs", second)

	got, _ := m.GetAdapter("docs")
	if got != core.Adapter(second) {
		t.Error("replace should overwrite the previous adapter")
	}

	m.Unregister("docs")
	if _, err := m.GetAdapter("docs"); err == nil {
		t.Error("unregistered adapter should not resolve")
	}
}

func TestNewManagerFromConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Adapters = []core.AdapterConfig{
		{Name: "local", Type: "static"},
		{Name: "untyped"}, // defaults to static
	}

	m, err := NewManagerFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("failed: %v", err)
	}

	for _, name := range []string{"local", "untyped"} {
		if _, err := m.GetAdapter(name); err != nil {
			t.Errorf("adapter %q not built: %v", name, err)
		}
	}
}

func TestNewManagerFromConfigUnknownType(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Adapters = []core.AdapterConfig{{Name: "weird", Type: "smoke-signals"}}

	if _, err := NewManagerFromConfig(cfg, nil); err == nil {
		t.Error("unknown adapter type should fail construction")
	}
}

func TestStaticAdapterMatching(t *testing.T) {
	adapter := NewStaticAdapter("kb", []Document{
		{ID: "1", Content: "Go circuit breakers protect failing services"},
		{ID: "2", Content: "Redis is an in-memory data store"},
		{ID: "3", Content: "circuit design for electrical engineers", Metadata: map[string]interface{}{"topic": "ee"}},
	})

	items, err := adapter.GetRelevantContext(context.Background(), "circuit breakers", nil)
	if err != nil {
		t.Fatalf("retrieval failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	// Both terms match doc 1, only one matches doc 3
	if items[0]["document_id"] != "1" {
		t.Errorf("best match should come first, got %v", items[0]["document_id"])
	}
	if items[1]["topic"] != "ee" {
		t.Error("document metadata should be carried onto the item")
	}
	for _, item := range items {
		if item["source"] != "kb" {
			t.Errorf("source = %v, want kb", item["source"])
		}
	}
}

func TestStaticAdapterMaxResults(t *testing.T) {
	adapter := NewStaticAdapter("kb", []Document{
		{Content: "alpha match"},
		{Content: "beta match"},
		{Content: "gamma match"},
	})
	adapter.SetMaxResults(2)

	items, err := adapter.GetRelevantContext(context.Background(), "match", nil)
	if err != nil {
		t.Fatalf("retrieval failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("got %d items, want max 2", len(items))
	}
}

func TestStaticAdapterNoMatches(t *testing.T) {
	adapter := NewStaticAdapter("kb", []Document{{Content: "nothing relevant"}})

	items, err := adapter.GetRelevantContext(context.Background(), "quantum flux", nil)
	if err != nil {
		t.Fatalf("retrieval failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

func TestStaticAdapterHonorsCanceledContext(t *testing.T) {
	adapter := NewStaticAdapter("kb", []Document{{Content: "data"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := adapter.GetRelevantContext(ctx, "data", nil); err == nil {
		t.Error("canceled context should surface an error")
	}
}
