package executor

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/itsneelabh/gorag/core"
	"github.com/itsneelabh/gorag/resilience"
)

func findMetric(rm *metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestOTelCollectorRecordsBreakerMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	defer otel.SetMeterProvider(prev)

	ctx := context.Background()
	collector := resilience.NewOTelMetricsCollector(ctx)

	e := testExecutor(t, map[string]core.Adapter{"flaky": failingAdapter("down")}, func(cfg *core.Config) {
		cfg.FaultTolerance.FailureThreshold = 1
		cfg.FaultTolerance.RecoveryTimeout = time.Minute
	}, WithMetricsCollector(collector))

	// Failure opens the breaker and records failure + state change counters
	e.ExecuteAdapters(ctx, "q", []string{"flaky"})
	// Rejection while open records the rejected counter
	e.ExecuteAdapters(ctx, "q", []string{"flaky"})

	if err := collector.RegisterStateGauge("flaky", func() string {
		cb, ok := e.CircuitBreaker("flaky")
		if !ok {
			return "closed"
		}
		return cb.GetState()
	}); err != nil {
		t.Fatalf("failed to register state gauge: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	gauge, ok := findMetric(&rm, "circuit_breaker.current_state")
	if !ok {
		t.Fatal("state gauge not collected")
	}
	data, ok := gauge.Data.(metricdata.Gauge[float64])
	if !ok || len(data.DataPoints) == 0 {
		t.Fatalf("state gauge data = %T", gauge.Data)
	}
	if got := data.DataPoints[0].Value; got != 1.0 {
		t.Errorf("open breaker gauge = %v, want 1.0", got)
	}

	for _, name := range []string{
		"circuit_breaker.failure",
		"circuit_breaker.open",
		"circuit_breaker.rejected",
	} {
		if _, ok := findMetric(&rm, name); !ok {
			t.Errorf("counter %q not collected", name)
		}
	}
}
