package executor

// GetHealthStatus returns an operator-facing snapshot of the executor:
// every circuit breaker's status, the resolved per-adapter fault tolerance
// settings, and the shutdown state.
func (e *ParallelAdapterExecutor) GetHealthStatus() map[string]interface{} {
	e.breakersMu.RLock()
	breakerStatus := make(map[string]interface{}, len(e.breakers))
	healthy := 0
	for name, cb := range e.breakers {
		breakerStatus[name] = cb.Status()
		if cb.GetState() == "closed" {
			healthy++
		}
	}
	total := len(e.breakers)
	e.breakersMu.RUnlock()

	adapterConfigs := make(map[string]interface{}, len(e.config.Adapters))
	for _, ac := range e.config.Adapters {
		ft := e.config.ResolveFaultTolerance(ac.Name)
		adapterConfigs[ac.Name] = map[string]interface{}{
			"type":                  ac.Type,
			"failure_threshold":     ft.FailureThreshold,
			"recovery_timeout_sec":  ft.RecoveryTimeout.Seconds(),
			"success_threshold":     ft.SuccessThreshold,
			"operation_timeout_sec": e.config.OperationTimeoutFor(ac.Name).Seconds(),
			"exponential_backoff":   ft.EnableExponentialBackoff,
		}
	}

	return map[string]interface{}{
		"circuit_breakers":       breakerStatus,
		"total_adapters":         total,
		"healthy_adapters":       healthy,
		"adapter_configurations": adapterConfigs,
		"shutdown_status": map[string]interface{}{
			"is_shutting_down":     e.IsShuttingDown(),
			"active_request_count": e.GetActiveRequestCount(),
			"active_requests":      e.GetActiveRequests(),
			"shutdown_timeout_sec": e.config.Execution.ShutdownTimeout.Seconds(),
		},
	}
}
