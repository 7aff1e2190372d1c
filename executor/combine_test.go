package executor

import (
	"testing"

	"github.com/itsneelabh/gorag/core"
)

func TestCombineResultsFlattensInOrder(t *testing.T) {
	ec := &core.ExecutionContext{RequestID: "req-1"}
	results := []core.AdapterResult{
		core.SuccessResult("vector", []core.ContextItem{
			{"content": "v1"},
			{"content": "v2"},
		}, 0.05, ec),
		core.FailureResult("sql", "connection refused", 0.01, ec),
		core.SuccessResult("files", []core.ContextItem{
			{"content": "f1"},
		}, 0.02, ec),
	}

	combined := CombineResults(results)

	if len(combined) != 3 {
		t.Fatalf("combined has %d items, want 3", len(combined))
	}
	wantOrder := []string{"v1", "v2", "f1"}
	for i, want := range wantOrder {
		if combined[i]["content"] != want {
			t.Errorf("combined[%d].content = %v, want %q", i, combined[i]["content"], want)
		}
	}
	if combined[0]["adapter_name"] != "vector" || combined[2]["adapter_name"] != "files" {
		t.Error("adapter_name provenance wrong")
	}
	if combined[0]["execution_time"] != 0.05 {
		t.Errorf("execution_time = %v, want 0.05", combined[0]["execution_time"])
	}
}

func TestCombineResultsOmitsEmptyIdentifiers(t *testing.T) {
	ec := &core.ExecutionContext{
		RequestID: "req-1",
		UserID:    "u-7",
		// TraceID, SessionID, CorrelationID intentionally empty
	}
	results := []core.AdapterResult{
		core.SuccessResult("vector", []core.ContextItem{{"content": "x"}}, 0.01, ec),
	}

	item := CombineResults(results)[0]

	if item["request_id"] != "req-1" {
		t.Errorf("request_id = %v", item["request_id"])
	}
	if item["user_id"] != "u-7" {
		t.Errorf("user_id = %v", item["user_id"])
	}
	// Absent identifiers must be absent keys, not empty values
	for _, key := range []string{"trace_id", "session_id", "correlation_id"} {
		if _, present := item[key]; present {
			t.Errorf("key %q should be omitted when empty", key)
		}
	}
}

func TestCombineResultsWithoutContext(t *testing.T) {
	results := []core.AdapterResult{
		core.SuccessResult("vector", []core.ContextItem{{"content": "x"}}, 0.01, nil),
	}

	item := CombineResults(results)[0]

	if _, present := item["request_id"]; present {
		t.Error("request_id should be absent when the result has no context")
	}
	if item["adapter_name"] != "vector" {
		t.Error("adapter provenance should still be present")
	}
}

func TestCombineResultsDoesNotMutateOriginals(t *testing.T) {
	original := core.ContextItem{"content": "x"}
	results := []core.AdapterResult{
		core.SuccessResult("vector", []core.ContextItem{original}, 0.01,
			&core.ExecutionContext{RequestID: "req-1"}),
	}

	CombineResults(results)

	if _, present := original["adapter_name"]; present {
		t.Error("enrichment must copy items, not mutate adapter output")
	}
}

func TestCombineResultsEmpty(t *testing.T) {
	if got := CombineResults(nil); len(got) != 0 {
		t.Errorf("combining nil results produced %d items", len(got))
	}
	failed := []core.AdapterResult{
		core.FailureResult("a", "down", 0, nil),
	}
	if got := CombineResults(failed); len(got) != 0 {
		t.Errorf("combining all-failed results produced %d items", len(got))
	}
}
