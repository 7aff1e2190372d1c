package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/itsneelabh/gorag/core"
)

// globalProvider holds the singleton provider created by Initialize.
// atomic.Value gives lock-free reads on the metric emission hot path.
var globalProvider atomic.Value // *OTelProvider

// Initialize creates the telemetry provider from configuration and installs
// it globally so the package-level Counter/Histogram/Duration helpers work.
// Calling it more than once replaces the provider; the previous one is not
// shut down automatically.
func Initialize(cfg core.TelemetryConfig) (*OTelProvider, error) {
	provider, err := NewOTelProvider(cfg)
	if err != nil {
		return nil, err
	}
	globalProvider.Store(provider)
	return provider, nil
}

// Provider returns the globally installed provider, or nil before Initialize.
func Provider() *OTelProvider {
	p, _ := globalProvider.Load().(*OTelProvider)
	return p
}

// Shutdown flushes and stops the global provider. Safe to call without a
// prior Initialize.
func Shutdown(ctx context.Context) error {
	p := Provider()
	if p == nil {
		return nil
	}
	globalProvider.Store((*OTelProvider)(nil))
	return p.Shutdown(ctx)
}

// Counter increments a counter on the global provider. A no-op before
// Initialize, so library code can emit unconditionally.
func Counter(ctx context.Context, name string, value int64, labels map[string]string) {
	p := Provider()
	if p == nil {
		return
	}
	_ = p.instruments.RecordCounter(ctx, name, value, metric.WithAttributes(labelAttrs(labels)...))
}

// Histogram records a value distribution on the global provider.
func Histogram(ctx context.Context, name string, value float64, labels map[string]string) {
	p := Provider()
	if p == nil {
		return
	}
	_ = p.instruments.RecordHistogram(ctx, name, value, metric.WithAttributes(labelAttrs(labels)...))
}

// Duration records a latency in milliseconds on the global provider.
func Duration(ctx context.Context, name string, milliseconds float64, labels map[string]string) {
	Histogram(ctx, name, milliseconds, labels)
}

func labelAttrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
