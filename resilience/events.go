package resilience

import (
	"fmt"

	"github.com/itsneelabh/gorag/core"
)

// CircuitBreakerEventHandler observes circuit breaker state transitions.
// Handlers are invoked on separate goroutines, fire-and-forget: a slow or
// panicking handler never delays or breaks the breaker itself.
//
// The stats argument is the breaker's Status() snapshot taken at the moment
// of the transition.
type CircuitBreakerEventHandler interface {
	OnCircuitOpen(name string, stats map[string]interface{}, reason string)
	OnCircuitClose(name string, stats map[string]interface{})
	OnCircuitHalfOpen(name string, stats map[string]interface{})
	OnCircuitReset(name string, stats map[string]interface{})
}

// LoggingEventHandler is the default event handler: it records every
// transition via the structured logger.
type LoggingEventHandler struct {
	Logger core.Logger
}

// NewLoggingEventHandler creates the default logging handler.
func NewLoggingEventHandler(logger core.Logger) *LoggingEventHandler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("gorag/resilience")
	}
	return &LoggingEventHandler{Logger: logger}
}

func (h *LoggingEventHandler) OnCircuitOpen(name string, stats map[string]interface{}, reason string) {
	h.Logger.Warn("Circuit breaker opened", map[string]interface{}{
		"operation":            "circuit_opened",
		"circuit_breaker":      name,
		"reason":               reason,
		"consecutive_failures": stats["consecutive_failures"],
		"total_failures":       stats["total_failures"],
		"retry_after_sec":      stats["retry_after_sec"],
	})
}

func (h *LoggingEventHandler) OnCircuitClose(name string, stats map[string]interface{}) {
	h.Logger.Info("Circuit breaker closed", map[string]interface{}{
		"operation":       "circuit_closed",
		"circuit_breaker": name,
		"total_calls":     stats["total_calls"],
		"success_rate":    stats["success_rate"],
	})
}

func (h *LoggingEventHandler) OnCircuitHalfOpen(name string, stats map[string]interface{}) {
	h.Logger.Info("Circuit breaker probing recovery", map[string]interface{}{
		"operation":         "circuit_half_open",
		"circuit_breaker":   name,
		"success_threshold": stats["success_threshold"],
	})
}

func (h *LoggingEventHandler) OnCircuitReset(name string, stats map[string]interface{}) {
	h.Logger.Info("Circuit breaker manually reset", map[string]interface{}{
		"operation":       "circuit_reset",
		"circuit_breaker": name,
		"total_calls":     stats["total_calls"],
	})
}

// MonitoringEventHandler forwards transitions to optional alerting,
// dashboard and metrics callbacks. Each callback is guarded independently:
// a panic in one does not prevent the others from running.
type MonitoringEventHandler struct {
	Logger core.Logger

	// AlertFunc is called when a circuit opens (service degraded).
	AlertFunc func(name string, stats map[string]interface{}, reason string)

	// DashboardFunc receives every transition for status displays.
	DashboardFunc func(name string, event string, stats map[string]interface{})

	// MetricFunc receives every transition as a metric event.
	MetricFunc func(name string, event string)
}

// NewMonitoringEventHandler creates a monitoring handler. Nil callbacks are
// skipped.
func NewMonitoringEventHandler(logger core.Logger) *MonitoringEventHandler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &MonitoringEventHandler{Logger: logger}
}

func (h *MonitoringEventHandler) OnCircuitOpen(name string, stats map[string]interface{}, reason string) {
	if h.AlertFunc != nil {
		h.guarded("alert", name, func() { h.AlertFunc(name, stats, reason) })
	}
	h.notify(name, "open", stats)
}

func (h *MonitoringEventHandler) OnCircuitClose(name string, stats map[string]interface{}) {
	h.notify(name, "close", stats)
}

func (h *MonitoringEventHandler) OnCircuitHalfOpen(name string, stats map[string]interface{}) {
	h.notify(name, "half_open", stats)
}

func (h *MonitoringEventHandler) OnCircuitReset(name string, stats map[string]interface{}) {
	h.notify(name, "reset", stats)
}

func (h *MonitoringEventHandler) notify(name, event string, stats map[string]interface{}) {
	if h.DashboardFunc != nil {
		h.guarded("dashboard", name, func() { h.DashboardFunc(name, event, stats) })
	}
	if h.MetricFunc != nil {
		h.guarded("metric", name, func() { h.MetricFunc(name, event) })
	}
}

// guarded runs one callback with panic isolation
func (h *MonitoringEventHandler) guarded(kind, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.Logger.Error("Monitoring callback panicked", map[string]interface{}{
				"operation":       "monitoring_callback_panic",
				"callback":        kind,
				"circuit_breaker": name,
				"panic":           fmt.Sprintf("%v", r),
			})
		}
	}()
	fn()
}
