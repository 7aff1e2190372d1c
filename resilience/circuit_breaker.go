package resilience

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/gorag/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited requests for testing recovery
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MetricsCollector interface for circuit breaker metrics
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string, errorType string)
	RecordStateChange(name string, from, to string)
	RecordRejection(name string)
}

// noopMetrics is a no-op metrics implementation
type noopMetrics struct{}

func (n *noopMetrics) RecordSuccess(name string)                      {}
func (n *noopMetrics) RecordFailure(name string, errorType string)    {}
func (n *noopMetrics) RecordStateChange(name string, from, to string) {}
func (n *noopMetrics) RecordRejection(name string)                    {}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker (usually the adapter name)
	Name string

	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int

	// RecoveryTimeout is how long to wait in open state before probing
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close
	SuccessThreshold int

	// MaxRecoveryTimeout caps the exponential backoff on repeated opens
	MaxRecoveryTimeout time.Duration

	// EnableExponentialBackoff doubles the effective recovery timeout each
	// time the circuit reopens, up to MaxRecoveryTimeout
	EnableExponentialBackoff bool

	// Logger for circuit breaker events
	Logger core.Logger

	// Metrics collector for monitoring
	Metrics MetricsCollector

	// EventHandlers receive state transition notifications
	EventHandlers []CircuitBreakerEventHandler
}

// DefaultCircuitBreakerConfig returns a production-ready default configuration
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                     name,
		FailureThreshold:         5,
		RecoveryTimeout:          60 * time.Second,
		SuccessThreshold:         3,
		MaxRecoveryTimeout:       300 * time.Second,
		EnableExponentialBackoff: true,
		Logger:                   &core.NoOpLogger{},
		Metrics:                  &noopMetrics{},
	}
}

// ConfigFromFaultTolerance builds a breaker configuration from resolved
// fault tolerance settings.
func ConfigFromFaultTolerance(name string, ft core.FaultToleranceConfig) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                     name,
		FailureThreshold:         ft.FailureThreshold,
		RecoveryTimeout:          ft.RecoveryTimeout,
		SuccessThreshold:         ft.SuccessThreshold,
		MaxRecoveryTimeout:       ft.MaxRecoveryTimeout,
		EnableExponentialBackoff: ft.EnableExponentialBackoff,
	}
}

// Validate validates the circuit breaker configuration
func (c *CircuitBreakerConfig) Validate() error {
	if c == nil {
		return errors.New("configuration cannot be nil")
	}

	if c.Name == "" {
		return errors.New("circuit breaker name is required")
	}

	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1, got %d", c.FailureThreshold)
	}

	if c.SuccessThreshold < 1 {
		return fmt.Errorf("success threshold must be at least 1, got %d", c.SuccessThreshold)
	}

	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("recovery timeout must be positive, got %v", c.RecoveryTimeout)
	}

	if c.MaxRecoveryTimeout > 0 && c.MaxRecoveryTimeout < c.RecoveryTimeout {
		return fmt.Errorf("max recovery timeout %v must not be less than recovery timeout %v",
			c.MaxRecoveryTimeout, c.RecoveryTimeout)
	}

	return nil
}

// CircuitBreaker protects one adapter from repeated failures using a
// closed/open/half-open state machine driven by consecutive outcomes.
//
// There is no background timer: the open-to-half-open transition happens
// lazily inside IsOpen() when the recovery timeout has elapsed. A breaker
// that is never consulted stays open indefinitely, which is harmless.
type CircuitBreaker struct {
	// Configuration (immutable after construction)
	config *CircuitBreakerConfig

	// State management (atomic for frequently accessed state)
	state          atomic.Value // CircuitState
	stateChangedAt atomic.Value // time.Time

	// Consecutive counters driving transitions (guarded by mu)
	consecutiveFailures  int
	consecutiveSuccesses int

	// Backoff state (guarded by mu)
	consecutiveOpens       int
	currentRecoveryTimeout time.Duration

	// Lifetime counters for monitoring
	totalCalls     atomic.Uint64
	totalSuccesses atomic.Uint64
	totalFailures  atomic.Uint64
	totalTimeouts  atomic.Uint64

	// Last outcome timestamps (guarded by mu)
	lastSuccessTime time.Time
	lastFailureTime time.Time

	// Only held for state transitions and counter updates
	mu sync.Mutex
}

// NewCircuitBreaker creates a circuit breaker from the given configuration.
// Nil config gets production defaults.
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultCircuitBreakerConfig("default")
	}

	if err := config.Validate(); err != nil {
		if config.Logger != nil {
			config.Logger.Error("Circuit breaker configuration validation failed", map[string]interface{}{
				"operation": "circuit_breaker_validation_failed",
				"name":      config.Name,
				"error":     err.Error(),
			})
		}
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}

	// Apply defaults for missing values
	if config.MaxRecoveryTimeout == 0 {
		config.MaxRecoveryTimeout = 5 * config.RecoveryTimeout
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &noopMetrics{}
	}

	cb := &CircuitBreaker{
		config:                 config,
		currentRecoveryTimeout: config.RecoveryTimeout,
	}
	cb.state.Store(StateClosed)
	cb.stateChangedAt.Store(time.Now())

	config.Logger.Info("Circuit breaker created", map[string]interface{}{
		"operation":           "circuit_breaker_created",
		"name":                config.Name,
		"failure_threshold":   config.FailureThreshold,
		"success_threshold":   config.SuccessThreshold,
		"recovery_timeout_ms": config.RecoveryTimeout.Milliseconds(),
		"exponential_backoff": config.EnableExponentialBackoff,
	})

	return cb, nil
}

// SetLogger sets the logger provider. The component is always set to
// "gorag/resilience" to ensure proper log attribution.
func (cb *CircuitBreaker) SetLogger(logger core.Logger) {
	if logger == nil {
		cb.config.Logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		cb.config.Logger = cal.WithComponent("gorag/resilience")
	} else {
		cb.config.Logger = logger
	}
}

// AddEventHandler registers a handler for state transition events.
func (cb *CircuitBreaker) AddEventHandler(h CircuitBreakerEventHandler) {
	if h == nil {
		return
	}
	cb.mu.Lock()
	cb.config.EventHandlers = append(cb.config.EventHandlers, h)
	cb.mu.Unlock()
}

// Name returns the breaker's identifier.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// State returns the current state without triggering transitions.
func (cb *CircuitBreaker) State() CircuitState {
	return cb.state.Load().(CircuitState)
}

// GetState returns the current state name without triggering transitions.
func (cb *CircuitBreaker) GetState() string {
	return cb.State().String()
}

// IsOpen reports whether calls must be rejected right now. When the circuit
// is open and the effective recovery timeout has elapsed, this transitions
// to half-open and reports false, letting the next call through as a probe.
func (cb *CircuitBreaker) IsOpen() bool {
	if cb.state.Load().(CircuitState) != StateOpen {
		return false
	}

	stateChangedAt := cb.stateChangedAt.Load().(time.Time)

	cb.mu.Lock()
	timeout := cb.currentRecoveryTimeout
	cb.mu.Unlock()

	if time.Since(stateChangedAt) >= timeout {
		cb.mu.Lock()
		// Double-check state after acquiring lock
		if cb.state.Load().(CircuitState) == StateOpen {
			cb.transitionToUnlocked(StateHalfOpen, "recovery timeout elapsed")
		}
		cb.mu.Unlock()
		return false
	}

	cb.config.Metrics.RecordRejection(cb.config.Name)
	return true
}

// CanExecute reports whether a call is currently allowed.
func (cb *CircuitBreaker) CanExecute() bool {
	return !cb.IsOpen()
}

// RecordSuccess records a successful operation. In half-open state, enough
// consecutive successes close the circuit and reset the recovery backoff.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.totalCalls.Add(1)
	cb.totalSuccesses.Add(1)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastSuccessTime = time.Now()
	cb.consecutiveFailures = 0

	if cb.state.Load().(CircuitState) == StateHalfOpen {
		cb.consecutiveSuccesses++

		cb.config.Logger.Debug("Half-open probe succeeded", map[string]interface{}{
			"operation":             "half_open_probe_success",
			"name":                  cb.config.Name,
			"consecutive_successes": cb.consecutiveSuccesses,
			"success_threshold":     cb.config.SuccessThreshold,
		})

		if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transitionToUnlocked(StateClosed, "success threshold reached")
		}
	}

	cb.config.Metrics.RecordSuccess(cb.config.Name)
}

// RecordFailure records a failed operation. In closed state, reaching the
// failure threshold opens the circuit. In half-open state, a single failure
// reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.recordFailure("failure")
}

// RecordTimeout records a timed-out operation. Timeouts count as failures
// and are additionally tracked in their own counter.
func (cb *CircuitBreaker) RecordTimeout() {
	cb.totalTimeouts.Add(1)
	cb.recordFailure("timeout")
}

func (cb *CircuitBreaker) recordFailure(errorType string) {
	cb.totalCalls.Add(1)
	cb.totalFailures.Add(1)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()
	cb.consecutiveSuccesses = 0
	cb.consecutiveFailures++

	cb.config.Metrics.RecordFailure(cb.config.Name, errorType)

	switch cb.state.Load().(CircuitState) {
	case StateHalfOpen:
		// Probe failed, back to open immediately
		cb.transitionToUnlocked(StateOpen, "half-open probe failed")

	case StateClosed:
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.transitionToUnlocked(StateOpen,
				fmt.Sprintf("failure threshold reached (%d consecutive failures)", cb.consecutiveFailures))
		} else {
			cb.config.Logger.Debug("Failure recorded below threshold", map[string]interface{}{
				"operation":            "circuit_breaker_failure",
				"name":                 cb.config.Name,
				"error_type":           errorType,
				"consecutive_failures": cb.consecutiveFailures,
				"failure_threshold":    cb.config.FailureThreshold,
			})
		}
	}
}

// Reset forces the circuit back to closed and clears the consecutive
// counters and recovery backoff. Lifetime totals are preserved.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()

	oldState := cb.state.Load().(CircuitState)
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.consecutiveOpens = 0
	cb.currentRecoveryTimeout = cb.config.RecoveryTimeout
	cb.state.Store(StateClosed)
	cb.stateChangedAt.Store(time.Now())

	stats := cb.statusUnlocked()
	cb.mu.Unlock()

	cb.config.Logger.Info("Circuit breaker reset", map[string]interface{}{
		"operation":      "circuit_breaker_reset",
		"name":           cb.config.Name,
		"previous_state": oldState.String(),
		"new_state":      "closed",
		"action":         "manual_reset",
	})

	if oldState != StateClosed {
		cb.config.Metrics.RecordStateChange(cb.config.Name, oldState.String(), StateClosed.String())
	}

	cb.fireEvent(func(h CircuitBreakerEventHandler) {
		h.OnCircuitReset(cb.config.Name, stats)
	})
}

// transitionToUnlocked changes state (must be called with mu held)
func (cb *CircuitBreaker) transitionToUnlocked(newState CircuitState, reason string) {
	oldState := cb.state.Load().(CircuitState)
	if oldState == newState {
		return
	}

	cb.state.Store(newState)
	cb.stateChangedAt.Store(time.Now())

	switch newState {
	case StateOpen:
		cb.consecutiveOpens++
		cb.currentRecoveryTimeout = cb.nextRecoveryTimeoutUnlocked()

	case StateHalfOpen:
		cb.consecutiveSuccesses = 0

	case StateClosed:
		cb.consecutiveFailures = 0
		cb.consecutiveSuccesses = 0
		cb.consecutiveOpens = 0
		cb.currentRecoveryTimeout = cb.config.RecoveryTimeout
	}

	stats := cb.statusUnlocked()

	cb.config.Logger.Info("Circuit breaker state changed", map[string]interface{}{
		"operation":           "circuit_breaker_state_change",
		"name":                cb.config.Name,
		"from":                oldState.String(),
		"to":                  newState.String(),
		"reason":              reason,
		"recovery_timeout_ms": cb.currentRecoveryTimeout.Milliseconds(),
	})

	cb.config.Metrics.RecordStateChange(cb.config.Name, oldState.String(), newState.String())

	switch newState {
	case StateOpen:
		cb.fireEvent(func(h CircuitBreakerEventHandler) {
			h.OnCircuitOpen(cb.config.Name, stats, reason)
		})
	case StateHalfOpen:
		cb.fireEvent(func(h CircuitBreakerEventHandler) {
			h.OnCircuitHalfOpen(cb.config.Name, stats)
		})
	case StateClosed:
		cb.fireEvent(func(h CircuitBreakerEventHandler) {
			h.OnCircuitClose(cb.config.Name, stats)
		})
	}
}

// nextRecoveryTimeoutUnlocked computes the effective recovery timeout for
// the current open period. With backoff enabled the base timeout doubles on
// every consecutive open, gets 0-10% jitter to avoid thundering herds, and
// is capped at MaxRecoveryTimeout. Must be called with mu held.
func (cb *CircuitBreaker) nextRecoveryTimeoutUnlocked() time.Duration {
	if !cb.config.EnableExponentialBackoff || cb.consecutiveOpens <= 1 {
		return cb.config.RecoveryTimeout
	}

	timeout := cb.config.RecoveryTimeout
	for i := 1; i < cb.consecutiveOpens; i++ {
		timeout *= 2
		if timeout >= cb.config.MaxRecoveryTimeout {
			timeout = cb.config.MaxRecoveryTimeout
			break
		}
	}

	jitter := time.Duration(rand.Float64() * 0.1 * float64(timeout))
	timeout += jitter
	if timeout > cb.config.MaxRecoveryTimeout {
		timeout = cb.config.MaxRecoveryTimeout
	}
	return timeout
}

// fireEvent dispatches an event to all handlers on separate goroutines.
// Handler panics are recovered and logged, never propagated to the caller:
// observers must not be able to break the breaker.
func (cb *CircuitBreaker) fireEvent(notify func(CircuitBreakerEventHandler)) {
	for _, h := range cb.config.EventHandlers {
		handler := h
		go func() {
			defer func() {
				if r := recover(); r != nil {
					cb.config.Logger.Error("Circuit breaker event handler panicked", map[string]interface{}{
						"operation": "event_handler_panic",
						"name":      cb.config.Name,
						"panic":     fmt.Sprintf("%v", r),
						"handler":   fmt.Sprintf("%T", handler),
					})
				}
			}()
			notify(handler)
		}()
	}
}

// Status returns a snapshot of the breaker's state and counters for health
// reporting.
func (cb *CircuitBreaker) Status() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.statusUnlocked()
}

// statusUnlocked builds the status snapshot (must be called with mu held)
func (cb *CircuitBreaker) statusUnlocked() map[string]interface{} {
	totalCalls := cb.totalCalls.Load()
	totalSuccesses := cb.totalSuccesses.Load()

	successRate := 1.0
	if totalCalls > 0 {
		successRate = float64(totalSuccesses) / float64(totalCalls)
	}

	status := map[string]interface{}{
		"name":                     cb.config.Name,
		"state":                    cb.state.Load().(CircuitState).String(),
		"consecutive_failures":     cb.consecutiveFailures,
		"consecutive_successes":    cb.consecutiveSuccesses,
		"failure_threshold":        cb.config.FailureThreshold,
		"success_threshold":        cb.config.SuccessThreshold,
		"total_calls":              totalCalls,
		"total_successes":          totalSuccesses,
		"total_failures":           cb.totalFailures.Load(),
		"total_timeouts":           cb.totalTimeouts.Load(),
		"success_rate":             successRate,
		"recovery_timeout_sec":     cb.config.RecoveryTimeout.Seconds(),
		"current_recovery_timeout": cb.currentRecoveryTimeout.Seconds(),
		"consecutive_opens":        cb.consecutiveOpens,
		"exponential_backoff":      cb.config.EnableExponentialBackoff,
	}

	if !cb.lastSuccessTime.IsZero() {
		status["last_success_time"] = cb.lastSuccessTime.UTC().Format(time.RFC3339)
	}
	if !cb.lastFailureTime.IsZero() {
		status["last_failure_time"] = cb.lastFailureTime.UTC().Format(time.RFC3339)
	}

	if cb.state.Load().(CircuitState) == StateOpen {
		stateChangedAt := cb.stateChangedAt.Load().(time.Time)
		remaining := cb.currentRecoveryTimeout - time.Since(stateChangedAt)
		if remaining < 0 {
			remaining = 0
		}
		status["retry_after_sec"] = remaining.Seconds()
	}

	return status
}
