package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/gorag/core"
	"github.com/itsneelabh/gorag/resilience"
)

// ParallelAdapterExecutor fans one query out to multiple retrieval adapters
// concurrently, with a circuit breaker per adapter, per-call timeouts and
// graceful shutdown. It never returns an error from ExecuteAdapters: every
// requested adapter yields exactly one AdapterResult, success or not.
type ParallelAdapterExecutor struct {
	manager   core.AdapterManager
	config    *core.Config
	logger    core.Logger
	telemetry core.Telemetry
	metrics   resilience.MetricsCollector

	// Circuit breakers created lazily per adapter name
	breakers   map[string]*resilience.CircuitBreaker
	breakersMu sync.RWMutex

	// Handlers attached to every breaker this executor creates
	eventHandlers []resilience.CircuitBreakerEventHandler

	// Shutdown coordination
	shuttingDown   atomic.Bool
	activeRequests map[string]struct{}
	activeMu       sync.Mutex
	drainWG        sync.WaitGroup
}

// Option configures the executor.
type Option func(*ParallelAdapterExecutor)

// WithLogger sets the logger. Component-aware loggers are attributed to
// "gorag/executor".
func WithLogger(logger core.Logger) Option {
	return func(e *ParallelAdapterExecutor) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			e.logger = cal.WithComponent("gorag/executor")
		} else {
			e.logger = logger
		}
	}
}

// WithTelemetry sets the tracing provider.
func WithTelemetry(t core.Telemetry) Option {
	return func(e *ParallelAdapterExecutor) {
		if t != nil {
			e.telemetry = t
		}
	}
}

// WithMetricsCollector sets the metrics collector shared by all breakers.
func WithMetricsCollector(m resilience.MetricsCollector) Option {
	return func(e *ParallelAdapterExecutor) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEventHandler attaches a circuit breaker event handler to every breaker
// the executor creates.
func WithEventHandler(h resilience.CircuitBreakerEventHandler) Option {
	return func(e *ParallelAdapterExecutor) {
		if h != nil {
			e.eventHandlers = append(e.eventHandlers, h)
		}
	}
}

// NewParallelAdapterExecutor creates an executor over the given adapter
// manager and configuration. A nil config gets defaults; breakers are
// created lazily on first use of each adapter.
func NewParallelAdapterExecutor(manager core.AdapterManager, cfg *core.Config, opts ...Option) (*ParallelAdapterExecutor, error) {
	if manager == nil {
		return nil, core.NewFrameworkError("executor.New", "executor",
			fmt.Errorf("adapter manager is required: %w", core.ErrMissingConfiguration))
	}
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid executor configuration: %w", err)
	}

	e := &ParallelAdapterExecutor{
		manager:        manager,
		config:         cfg,
		logger:         &core.NoOpLogger{},
		breakers:       make(map[string]*resilience.CircuitBreaker),
		activeRequests: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	// Every executor gets the default logging handler so breaker
	// transitions are always visible
	e.eventHandlers = append([]resilience.CircuitBreakerEventHandler{
		resilience.NewLoggingEventHandler(e.logger),
	}, e.eventHandlers...)

	e.logger.Info("Parallel adapter executor created", map[string]interface{}{
		"operation":               "executor_created",
		"max_concurrent_adapters": cfg.Execution.MaxConcurrentAdapters,
		"shutdown_timeout_ms":     cfg.Execution.ShutdownTimeout.Milliseconds(),
		"configured_adapters":     len(cfg.Adapters),
	})

	return e, nil
}

// ExecuteOption configures a single ExecuteAdapters call.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	execCtx *core.ExecutionContext
	apiKey  string
	extra   map[string]interface{}
}

// WithExecutionContext supplies the request's execution context. Without
// one, the executor synthesizes a context with a fresh request id.
func WithExecutionContext(ec *core.ExecutionContext) ExecuteOption {
	return func(o *executeOptions) { o.execCtx = ec }
}

// WithAPIKey sets the API key used when synthesizing an execution context.
func WithAPIKey(key string) ExecuteOption {
	return func(o *executeOptions) { o.apiKey = key }
}

// WithExtras passes caller keyword arguments through to every adapter.
func WithExtras(extra map[string]interface{}) ExecuteOption {
	return func(o *executeOptions) { o.extra = extra }
}

// ExecuteAdapters runs the query against the named adapters in parallel,
// bounded by the configured concurrency cap. The returned slice holds one
// result per requested adapter, in the caller's order, regardless of
// completion order. It never returns an error: failures, timeouts, open
// circuits and shutdown rejections all surface as failed results.
func (e *ParallelAdapterExecutor) ExecuteAdapters(ctx context.Context, query string, adapterNames []string, opts ...ExecuteOption) []core.AdapterResult {
	var o executeOptions
	for _, opt := range opts {
		opt(&o)
	}

	execCtx := o.execCtx
	if execCtx == nil {
		execCtx = core.NewExecutionContext(o.apiKey)
	}

	if len(adapterNames) == 0 {
		return []core.AdapterResult{}
	}

	// Shutdown gate: reject before touching breakers or the manager so a
	// draining executor cannot distort failure statistics. The check and the
	// registration happen under one lock so no request can slip in after
	// Shutdown has started waiting for the drain.
	if !e.tryRegisterRequest(execCtx.RequestID) {
		e.logger.Warn("Rejecting execution during shutdown", map[string]interface{}{
			"operation":  "execute_rejected_shutdown",
			"request_id": execCtx.RequestID,
			"adapters":   adapterNames,
		})
		results := make([]core.AdapterResult, len(adapterNames))
		for i, name := range adapterNames {
			results[i] = core.FailureResult(name, core.ErrExecutorShuttingDown.Error(), 0, execCtx)
		}
		return results
	}
	defer e.unregisterRequest(execCtx.RequestID)

	if e.telemetry != nil {
		var span core.Span
		ctx, span = e.telemetry.StartSpan(ctx, "executor.ExecuteAdapters")
		span.SetAttribute("request_id", execCtx.RequestID)
		span.SetAttribute("adapter_count", len(adapterNames))
		defer span.End()
	}

	start := time.Now()
	e.logger.Info("Executing adapters in parallel", map[string]interface{}{
		"operation":      "execute_adapters",
		"request_id":     execCtx.RequestID,
		"log_prefix":     execCtx.LogPrefix(),
		"adapters":       adapterNames,
		"max_concurrent": e.config.Execution.MaxConcurrentAdapters,
	})

	results := make([]core.AdapterResult, len(adapterNames))
	semaphore := make(chan struct{}, e.config.Execution.MaxConcurrentAdapters)
	var wg sync.WaitGroup

	for i, name := range adapterNames {
		cb := e.breakerFor(name)

		// Open circuit: skip without dispatching
		if cb.IsOpen() {
			e.logger.Warn("Skipping adapter with open circuit", map[string]interface{}{
				"operation":  "adapter_skipped_circuit_open",
				"request_id": execCtx.RequestID,
				"adapter":    name,
			})
			results[i] = core.FailureResult(name,
				fmt.Sprintf("circuit breaker is open for adapter %s", name), 0, execCtx)
			continue
		}

		wg.Add(1)
		go func(idx int, adapterName string, breaker *resilience.CircuitBreaker) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[idx] = e.executeOne(ctx, adapterName, query, execCtx, o.extra, breaker)
		}(i, name, cb)
	}

	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	e.logger.Info("Adapter execution batch complete", map[string]interface{}{
		"operation":   "execute_adapters_complete",
		"request_id":  execCtx.RequestID,
		"total":       len(results),
		"succeeded":   succeeded,
		"failed":      len(results) - succeeded,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if e.telemetry != nil {
		e.telemetry.RecordMetric("executor.batch_duration_ms",
			float64(time.Since(start).Milliseconds()),
			map[string]string{"adapters": fmt.Sprintf("%d", len(adapterNames))})
	}

	return results
}

// executeOne runs a single adapter call under its circuit breaker and
// timeout. A call that outlives its timeout is abandoned, not aborted: the
// leftover goroutine completes in the background and its result is
// discarded.
func (e *ParallelAdapterExecutor) executeOne(ctx context.Context, name, query string, execCtx *core.ExecutionContext, extra map[string]interface{}, cb *resilience.CircuitBreaker) core.AdapterResult {
	timeout := e.config.OperationTimeoutFor(name)
	start := time.Now()

	adapter, err := e.manager.GetAdapter(name)
	if err != nil {
		// Unknown adapter is a caller mistake, not backend illness: it
		// does not count toward the breaker
		e.logger.Error("Adapter resolution failed", map[string]interface{}{
			"operation":  "adapter_resolution_failed",
			"request_id": execCtx.RequestID,
			"adapter":    name,
			"error":      err.Error(),
		})
		return core.FailureResult(name, err.Error(), time.Since(start).Seconds(), execCtx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type callOutcome struct {
		items []core.ContextItem
		err   error
	}
	done := make(chan callOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				e.logger.Error("Adapter panicked", map[string]interface{}{
					"operation":  "adapter_panic",
					"request_id": execCtx.RequestID,
					"adapter":    name,
					"panic":      fmt.Sprintf("%v", r),
					"stack":      string(stack),
				})
				done <- callOutcome{err: fmt.Errorf("adapter %s panicked: %v", name, r)}
			}
		}()

		items, callErr := adapter.GetRelevantContext(callCtx, query, execCtx.RetrievalRequest(extra))
		done <- callOutcome{items: items, err: callErr}
	}()

	select {
	case outcome := <-done:
		elapsed := time.Since(start).Seconds()
		if outcome.err != nil {
			if countsAsBreakerFailure(outcome.err) {
				cb.RecordFailure()
			}
			e.logger.Error("Adapter call failed", map[string]interface{}{
				"operation":      "adapter_call_failed",
				"request_id":     execCtx.RequestID,
				"adapter":        name,
				"error":          outcome.err.Error(),
				"execution_time": elapsed,
			})
			return core.FailureResult(name, outcome.err.Error(), elapsed, execCtx)
		}

		cb.RecordSuccess()
		e.logger.Debug("Adapter call succeeded", map[string]interface{}{
			"operation":      "adapter_call_success",
			"request_id":     execCtx.RequestID,
			"adapter":        name,
			"items":          len(outcome.items),
			"execution_time": elapsed,
		})
		if e.telemetry != nil {
			e.telemetry.RecordMetric("adapter.duration_ms", elapsed*1000,
				map[string]string{"adapter": name, "result": "success"})
		}
		return core.SuccessResult(name, outcome.items, elapsed, execCtx)

	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			// Per-call timeout fired. The result reports the configured
			// timeout as its execution time.
			cb.RecordTimeout()
			e.logger.Warn("Adapter call timed out", map[string]interface{}{
				"operation":  "adapter_call_timeout",
				"request_id": execCtx.RequestID,
				"adapter":    name,
				"timeout_ms": timeout.Milliseconds(),
			})
			if e.telemetry != nil {
				e.telemetry.RecordMetric("adapter.duration_ms", timeout.Seconds()*1000,
					map[string]string{"adapter": name, "result": "timeout"})
			}
			return core.FailureResult(name,
				fmt.Sprintf("adapter %s timed out after %gs", name, timeout.Seconds()),
				timeout.Seconds(), execCtx)
		}

		// Caller cancellation: the client gave up, the backend is not to
		// blame, so the breaker is untouched
		e.logger.Debug("Adapter call canceled", map[string]interface{}{
			"operation":  "adapter_call_canceled",
			"request_id": execCtx.RequestID,
			"adapter":    name,
			"reason":     ctx.Err(),
		})
		return core.FailureResult(name, "context canceled", time.Since(start).Seconds(), execCtx)
	}
}

// countsAsBreakerFailure decides which adapter errors count toward opening
// the circuit. User and programming errors do not.
func countsAsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	if core.IsNotFound(err) || core.IsConfigurationError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrContextCanceled) {
		return false
	}
	return true
}

// breakerFor returns the circuit breaker for an adapter, creating it with
// the adapter's resolved fault tolerance settings on first use.
func (e *ParallelAdapterExecutor) breakerFor(name string) *resilience.CircuitBreaker {
	e.breakersMu.RLock()
	cb, ok := e.breakers[name]
	e.breakersMu.RUnlock()
	if ok {
		return cb
	}

	e.breakersMu.Lock()
	defer e.breakersMu.Unlock()
	if cb, ok = e.breakers[name]; ok {
		return cb
	}

	cfg := resilience.ConfigFromFaultTolerance(name, e.config.ResolveFaultTolerance(name))
	cfg.Logger = e.logger
	cfg.Metrics = e.metrics
	cfg.EventHandlers = e.eventHandlers

	cb, err := resilience.NewCircuitBreaker(cfg)
	if err != nil {
		// Resolved settings passed config validation already; fall back to
		// defaults if something still went wrong
		e.logger.Error("Falling back to default circuit breaker config", map[string]interface{}{
			"operation": "circuit_breaker_fallback",
			"adapter":   name,
			"error":     err.Error(),
		})
		cb, _ = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig(name))
	}

	e.breakers[name] = cb
	return cb
}

// CircuitBreaker returns the breaker for an adapter if one exists yet.
func (e *ParallelAdapterExecutor) CircuitBreaker(name string) (*resilience.CircuitBreaker, bool) {
	e.breakersMu.RLock()
	defer e.breakersMu.RUnlock()
	cb, ok := e.breakers[name]
	return cb, ok
}

// CircuitBreakerStates returns the current state name of every breaker.
func (e *ParallelAdapterExecutor) CircuitBreakerStates() map[string]string {
	e.breakersMu.RLock()
	defer e.breakersMu.RUnlock()

	states := make(map[string]string, len(e.breakers))
	for name, cb := range e.breakers {
		states[name] = cb.GetState()
	}
	return states
}

// ResetCircuitBreaker resets the breaker for one adapter.
func (e *ParallelAdapterExecutor) ResetCircuitBreaker(name string) error {
	cb, ok := e.CircuitBreaker(name)
	if !ok {
		return core.NewFrameworkError("executor.ResetCircuitBreaker", "executor",
			fmt.Errorf("no circuit breaker for adapter %q: %w", name, core.ErrAdapterNotFound))
	}
	cb.Reset()
	return nil
}

// ResetAllCircuitBreakers resets every breaker the executor has created.
func (e *ParallelAdapterExecutor) ResetAllCircuitBreakers() {
	e.breakersMu.RLock()
	breakers := make([]*resilience.CircuitBreaker, 0, len(e.breakers))
	for _, cb := range e.breakers {
		breakers = append(breakers, cb)
	}
	e.breakersMu.RUnlock()

	for _, cb := range breakers {
		cb.Reset()
	}

	e.logger.Info("All circuit breakers reset", map[string]interface{}{
		"operation": "reset_all_circuit_breakers",
		"count":     len(breakers),
	})
}

// Active request tracking

// tryRegisterRequest admits a request unless shutdown has been engaged.
// The shutdown flag is flipped under the same mutex, so every drainWG.Add
// happens before Shutdown starts waiting: no request can slip past a drain
// and no Add can race a pending Wait on a zero counter.
func (e *ParallelAdapterExecutor) tryRegisterRequest(requestID string) bool {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	if e.shuttingDown.Load() {
		return false
	}
	e.drainWG.Add(1)
	e.activeRequests[requestID] = struct{}{}
	return true
}

func (e *ParallelAdapterExecutor) unregisterRequest(requestID string) {
	e.activeMu.Lock()
	delete(e.activeRequests, requestID)
	e.activeMu.Unlock()
	e.drainWG.Done()
}

// GetActiveRequestCount returns how many requests are in flight.
func (e *ParallelAdapterExecutor) GetActiveRequestCount() int {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	return len(e.activeRequests)
}

// GetActiveRequests returns the ids of all in-flight requests.
func (e *ParallelAdapterExecutor) GetActiveRequests() []string {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	ids := make([]string, 0, len(e.activeRequests))
	for id := range e.activeRequests {
		ids = append(ids, id)
	}
	return ids
}

// IsShuttingDown reports whether shutdown has been engaged.
func (e *ParallelAdapterExecutor) IsShuttingDown() bool {
	return e.shuttingDown.Load()
}

// Shutdown engages graceful shutdown: new executions are rejected
// immediately, and the call waits for in-flight requests to drain up to
// the configured shutdown timeout (or the context deadline, whichever
// fires first). In-flight work is never force-killed; on timeout an error
// is returned and the stragglers finish on their own.
func (e *ParallelAdapterExecutor) Shutdown(ctx context.Context) error {
	// Flip the flag under activeMu so it is ordered against
	// tryRegisterRequest: once this unlocks, no new request can register.
	e.activeMu.Lock()
	if !e.shuttingDown.CompareAndSwap(false, true) {
		e.activeMu.Unlock()
		return nil
	}
	active := len(e.activeRequests)
	e.activeMu.Unlock()
	e.logger.Info("Executor shutdown initiated", map[string]interface{}{
		"operation":           "executor_shutdown",
		"active_requests":     active,
		"shutdown_timeout_ms": e.config.Execution.ShutdownTimeout.Milliseconds(),
	})

	drained := make(chan struct{})
	go func() {
		e.drainWG.Wait()
		close(drained)
	}()

	timer := time.NewTimer(e.config.Execution.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-drained:
		e.logger.Info("Executor shutdown complete", map[string]interface{}{
			"operation": "executor_shutdown_complete",
		})
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	remaining := e.GetActiveRequests()
	e.logger.Warn("Executor shutdown timed out with active requests", map[string]interface{}{
		"operation":       "executor_shutdown_timeout",
		"active_requests": remaining,
	})
	return core.NewFrameworkError("executor.Shutdown", "executor",
		fmt.Errorf("%d requests still active after drain timeout: %w",
			len(remaining), core.ErrOperationTimeout))
}
