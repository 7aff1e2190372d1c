package telemetry

import (
	"context"
	"testing"
)

func TestFacadeSafeBeforeInitialize(t *testing.T) {
	ctx := context.Background()

	// None of these may panic when no provider has been installed
	Counter(ctx, MetricAdapterExecutions, 1, map[string]string{"adapter": "a"})
	Histogram(ctx, MetricAdapterDuration, 12.5, nil)
	Duration(ctx, MetricExecutorBatchDuration, 3.0, nil)

	if err := Shutdown(ctx); err != nil {
		t.Errorf("shutdown without provider should be a no-op, got %v", err)
	}
}

func TestMetricInstrumentsCacheAndRecord(t *testing.T) {
	// The global meter provider defaults to a no-op, so recording is safe
	// without an SDK installed
	m := NewMetricInstruments("test")

	for i := 0; i < 3; i++ {
		if err := m.RecordCounter(context.Background(), MetricCircuitBreakerSuccess, 1); err != nil {
			t.Fatalf("counter record failed: %v", err)
		}
		if err := m.RecordHistogram(context.Background(), MetricAdapterDuration, float64(i)); err != nil {
			t.Fatalf("histogram record failed: %v", err)
		}
		if err := m.RecordUpDownCounter(context.Background(), MetricExecutorActiveRequests, 1); err != nil {
			t.Fatalf("up-down record failed: %v", err)
		}
	}

	if len(m.counters) != 1 || len(m.histograms) != 1 || len(m.upDownCounters) != 1 {
		t.Errorf("instruments should be cached once per name: %d/%d/%d",
			len(m.counters), len(m.histograms), len(m.upDownCounters))
	}

	if err := m.Shutdown(); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}
