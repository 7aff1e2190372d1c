package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the adapter execution subsystem.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithServiceName("rag-server"),
//	    WithMaxConcurrentAdapters(10),
//	    WithFailureThreshold(3),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// ServiceName identifies this service in logs and telemetry.
	ServiceName string `yaml:"service_name" env:"GORAG_SERVICE_NAME"`

	// FaultTolerance holds the global circuit breaker settings. Individual
	// adapters may override these field-by-field.
	FaultTolerance FaultToleranceConfig `yaml:"fault_tolerance"`

	// Execution holds parallel executor settings.
	Execution ExecutionConfig `yaml:"execution"`

	// Adapters lists the configured retrieval backends.
	Adapters []AdapterConfig `yaml:"adapters"`

	// Redis configuration shared by redis-backed adapters.
	Redis RedisConfig `yaml:"redis"`

	// Logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry configuration (optional module).
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// FaultToleranceConfig defines circuit breaker settings. The circuit breaker
// opens after FailureThreshold consecutive failures, waits RecoveryTimeout
// before probing, and closes again after SuccessThreshold consecutive
// successes in half-open state.
type FaultToleranceConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"GORAG_CB_FAILURE_THRESHOLD" default:"5"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" env:"GORAG_CB_RECOVERY_TIMEOUT" default:"60s"`
	SuccessThreshold int           `yaml:"success_threshold" env:"GORAG_CB_SUCCESS_THRESHOLD" default:"3"`
	OperationTimeout time.Duration `yaml:"operation_timeout" env:"GORAG_CB_OPERATION_TIMEOUT" default:"30s"`

	// MaxRecoveryTimeout caps the exponential backoff applied to
	// RecoveryTimeout on repeated opens.
	MaxRecoveryTimeout time.Duration `yaml:"max_recovery_timeout" env:"GORAG_CB_MAX_RECOVERY_TIMEOUT" default:"300s"`

	// EnableExponentialBackoff doubles the effective recovery timeout each
	// time the circuit reopens, up to MaxRecoveryTimeout.
	EnableExponentialBackoff bool `yaml:"enable_exponential_backoff" env:"GORAG_CB_EXPONENTIAL_BACKOFF" default:"true"`
}

// ExecutionConfig defines parallel executor settings.
type ExecutionConfig struct {
	// Timeout, when set, overrides the global operation timeout for adapter
	// calls. A per-adapter operation_timeout override wins over both.
	Timeout time.Duration `yaml:"timeout" env:"GORAG_EXECUTION_TIMEOUT"`

	// MaxConcurrentAdapters bounds how many adapter calls run at once.
	MaxConcurrentAdapters int `yaml:"max_concurrent_adapters" env:"GORAG_MAX_CONCURRENT_ADAPTERS" default:"5"`

	// ShutdownTimeout bounds how long Shutdown waits for in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"GORAG_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AdapterConfig describes one retrieval backend.
type AdapterConfig struct {
	Name string `yaml:"name"`

	// Type selects the adapter implementation: "static", "redis" or "http".
	Type string `yaml:"type"`

	// Endpoint is the base URL for http adapters.
	Endpoint string `yaml:"endpoint"`

	// RedisURL overrides the shared redis URL for redis adapters.
	RedisURL string `yaml:"redis_url"`

	// Namespace scopes redis keys for redis adapters.
	Namespace string `yaml:"namespace"`

	// MaxResults caps how many context items the adapter returns. Zero
	// means no cap.
	MaxResults int `yaml:"max_results"`

	// FaultTolerance holds per-adapter overrides. Nil fields inherit the
	// global settings.
	FaultTolerance *FaultToleranceOverrides `yaml:"fault_tolerance"`
}

// FaultToleranceOverrides mirrors FaultToleranceConfig with pointer fields so
// an absent value is distinguishable from an explicit zero.
type FaultToleranceOverrides struct {
	FailureThreshold         *int           `yaml:"failure_threshold"`
	RecoveryTimeout          *time.Duration `yaml:"recovery_timeout"`
	SuccessThreshold         *int           `yaml:"success_threshold"`
	OperationTimeout         *time.Duration `yaml:"operation_timeout"`
	MaxRecoveryTimeout       *time.Duration `yaml:"max_recovery_timeout"`
	EnableExponentialBackoff *bool          `yaml:"enable_exponential_backoff"`
}

// RedisConfig contains the shared redis connection settings.
type RedisConfig struct {
	URL string `yaml:"url" env:"GORAG_REDIS_URL,REDIS_URL"`
}

// LoggingConfig contains logging configuration.
// Supports structured (JSON) and human-readable (text) formats.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"GORAG_LOG_LEVEL" default:"info"`
	Format string `yaml:"format" env:"GORAG_LOG_FORMAT" default:"json"`
}

// TelemetryConfig contains observability configuration.
// When Endpoint is empty, traces are written to stdout in development mode.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"GORAG_TELEMETRY_ENABLED" default:"false"`
	Endpoint    string `yaml:"endpoint" env:"GORAG_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"GORAG_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME"`
	Insecure    bool   `yaml:"insecure" env:"GORAG_TELEMETRY_INSECURE" default:"true"`
}

// Option is a functional option for configuring the subsystem.
// Options are applied in order and can return an error if invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
// These can be overridden using environment variables or functional options.
func DefaultConfig() *Config {
	return &Config{
		ServiceName: "gorag",
		FaultTolerance: FaultToleranceConfig{
			FailureThreshold:         5,
			RecoveryTimeout:          60 * time.Second,
			SuccessThreshold:         3,
			OperationTimeout:         30 * time.Second,
			MaxRecoveryTimeout:       300 * time.Second,
			EnableExponentialBackoff: true,
		},
		Execution: ExecutionConfig{
			Timeout:               0, // Unset; falls back to fault_tolerance.operation_timeout
			MaxConcurrentAdapters: 5,
			ShutdownTimeout:       30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Insecure: true,
		},
	}
}

// NewConfig creates a validated configuration by layering defaults,
// environment variables and functional options, in that order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv populates configuration from environment variables.
// Called automatically by NewConfig(); call directly only when building
// a Config by hand.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("GORAG_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}

	// Fault tolerance settings
	if v := os.Getenv("GORAG_CB_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FaultTolerance.FailureThreshold = n
		}
	}
	if v := os.Getenv("GORAG_CB_RECOVERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.FaultTolerance.RecoveryTimeout = d
		}
	}
	if v := os.Getenv("GORAG_CB_SUCCESS_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FaultTolerance.SuccessThreshold = n
		}
	}
	if v := os.Getenv("GORAG_CB_OPERATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.FaultTolerance.OperationTimeout = d
		}
	}
	if v := os.Getenv("GORAG_CB_MAX_RECOVERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.FaultTolerance.MaxRecoveryTimeout = d
		}
	}
	if v := os.Getenv("GORAG_CB_EXPONENTIAL_BACKOFF"); v != "" {
		c.FaultTolerance.EnableExponentialBackoff = parseBool(v)
	}

	// Execution settings
	if v := os.Getenv("GORAG_EXECUTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Execution.Timeout = d
		}
	}
	if v := os.Getenv("GORAG_MAX_CONCURRENT_ADAPTERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Execution.MaxConcurrentAdapters = n
		}
	}
	if v := os.Getenv("GORAG_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Execution.ShutdownTimeout = d
		}
	}

	// Redis settings (GORAG_REDIS_URL takes precedence over REDIS_URL)
	if v := os.Getenv("GORAG_REDIS_URL"); v != "" {
		c.Redis.URL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}

	// Logging settings
	if v := os.Getenv("GORAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GORAG_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	// Telemetry settings
	if v := os.Getenv("GORAG_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("GORAG_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("GORAG_TELEMETRY_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
	if v := os.Getenv("GORAG_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = parseBool(v)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file.
// File settings override environment variables but are overridden by
// functional options applied afterwards.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	if !filepath.IsAbs(cleanPath) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		cleanPath = filepath.Join(wd, cleanPath)
	}

	data, err := os.ReadFile(filepath.Clean(cleanPath))
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config file: %w", ErrInvalidConfiguration)
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
// Called automatically by NewConfig() but can also be called manually after
// modifying configuration.
func (c *Config) Validate() error {
	if c.FaultTolerance.FailureThreshold < 1 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("failure threshold must be at least 1, got %d", c.FaultTolerance.FailureThreshold),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.FaultTolerance.SuccessThreshold < 1 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("success threshold must be at least 1, got %d", c.FaultTolerance.SuccessThreshold),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.FaultTolerance.RecoveryTimeout <= 0 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "recovery timeout must be positive",
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.FaultTolerance.OperationTimeout <= 0 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "operation timeout must be positive",
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.FaultTolerance.MaxRecoveryTimeout < c.FaultTolerance.RecoveryTimeout {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "max recovery timeout must not be less than recovery timeout",
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Execution.MaxConcurrentAdapters < 1 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("max concurrent adapters must be at least 1, got %d", c.Execution.MaxConcurrentAdapters),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Execution.ShutdownTimeout <= 0 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "shutdown timeout must be positive",
			Err:     ErrInvalidConfiguration,
		}
	}

	seen := make(map[string]bool, len(c.Adapters))
	for i := range c.Adapters {
		a := &c.Adapters[i]
		if a.Name == "" {
			return &FrameworkError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: fmt.Sprintf("adapter %d has no name", i),
				Err:     ErrMissingConfiguration,
			}
		}
		if seen[a.Name] {
			return &FrameworkError{
				Op:      "Config.Validate",
				Kind:    "config",
				ID:      a.Name,
				Message: fmt.Sprintf("duplicate adapter name %q", a.Name),
				Err:     ErrInvalidConfiguration,
			}
		}
		seen[a.Name] = true

		switch a.Type {
		case "static", "":
			// In-memory adapter, no required settings
		case "redis":
			if a.RedisURL == "" && c.Redis.URL == "" {
				return &FrameworkError{
					Op:      "Config.Validate",
					Kind:    "config",
					ID:      a.Name,
					Message: fmt.Sprintf("adapter %q requires a redis URL", a.Name),
					Err:     ErrMissingConfiguration,
				}
			}
		case "http":
			if a.Endpoint == "" {
				return &FrameworkError{
					Op:      "Config.Validate",
					Kind:    "config",
					ID:      a.Name,
					Message: fmt.Sprintf("adapter %q requires an endpoint", a.Name),
					Err:     ErrMissingConfiguration,
				}
			}
		default:
			return &FrameworkError{
				Op:      "Config.Validate",
				Kind:    "config",
				ID:      a.Name,
				Message: fmt.Sprintf("unknown adapter type %q", a.Type),
				Err:     ErrInvalidConfiguration,
			}
		}
	}

	return nil
}

// AdapterByName returns the adapter configuration registered under name,
// or nil when the adapter has no explicit configuration.
func (c *Config) AdapterByName(name string) *AdapterConfig {
	for i := range c.Adapters {
		if c.Adapters[i].Name == name {
			return &c.Adapters[i]
		}
	}
	return nil
}

// ResolveFaultTolerance returns the effective circuit breaker settings for
// the named adapter: global settings with any per-adapter overrides applied
// field-by-field.
func (c *Config) ResolveFaultTolerance(name string) FaultToleranceConfig {
	ft := c.FaultTolerance
	ac := c.AdapterByName(name)
	if ac == nil || ac.FaultTolerance == nil {
		return ft
	}
	o := ac.FaultTolerance
	if o.FailureThreshold != nil {
		ft.FailureThreshold = *o.FailureThreshold
	}
	if o.RecoveryTimeout != nil {
		ft.RecoveryTimeout = *o.RecoveryTimeout
	}
	if o.SuccessThreshold != nil {
		ft.SuccessThreshold = *o.SuccessThreshold
	}
	if o.OperationTimeout != nil {
		ft.OperationTimeout = *o.OperationTimeout
	}
	if o.MaxRecoveryTimeout != nil {
		ft.MaxRecoveryTimeout = *o.MaxRecoveryTimeout
	}
	if o.EnableExponentialBackoff != nil {
		ft.EnableExponentialBackoff = *o.EnableExponentialBackoff
	}
	return ft
}

// OperationTimeoutFor resolves the timeout applied to a single call against
// the named adapter. Precedence: per-adapter operation_timeout override,
// then execution.timeout, then the global fault_tolerance.operation_timeout.
func (c *Config) OperationTimeoutFor(name string) time.Duration {
	if ac := c.AdapterByName(name); ac != nil && ac.FaultTolerance != nil && ac.FaultTolerance.OperationTimeout != nil {
		return *ac.FaultTolerance.OperationTimeout
	}
	if c.Execution.Timeout > 0 {
		return c.Execution.Timeout
	}
	return c.FaultTolerance.OperationTimeout
}

// Helper functions

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithServiceName sets the service name used in logs and telemetry.
func WithServiceName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("service name cannot be empty: %w", ErrInvalidConfiguration)
		}
		c.ServiceName = name
		return nil
	}
}

// WithFailureThreshold sets how many consecutive failures open a circuit.
func WithFailureThreshold(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("failure threshold must be at least 1: %w", ErrInvalidConfiguration)
		}
		c.FaultTolerance.FailureThreshold = n
		return nil
	}
}

// WithRecoveryTimeout sets how long an open circuit waits before probing.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("recovery timeout must be positive: %w", ErrInvalidConfiguration)
		}
		c.FaultTolerance.RecoveryTimeout = d
		if c.FaultTolerance.MaxRecoveryTimeout < d {
			c.FaultTolerance.MaxRecoveryTimeout = d
		}
		return nil
	}
}

// WithSuccessThreshold sets how many consecutive half-open successes close
// a circuit.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("success threshold must be at least 1: %w", ErrInvalidConfiguration)
		}
		c.FaultTolerance.SuccessThreshold = n
		return nil
	}
}

// WithOperationTimeout sets the global per-call timeout.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("operation timeout must be positive: %w", ErrInvalidConfiguration)
		}
		c.FaultTolerance.OperationTimeout = d
		return nil
	}
}

// WithExponentialBackoff toggles recovery timeout backoff and caps it.
func WithExponentialBackoff(enabled bool, max time.Duration) Option {
	return func(c *Config) error {
		c.FaultTolerance.EnableExponentialBackoff = enabled
		if max > 0 {
			c.FaultTolerance.MaxRecoveryTimeout = max
		}
		return nil
	}
}

// WithExecutionTimeout sets the executor-level per-call timeout override.
func WithExecutionTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return fmt.Errorf("execution timeout cannot be negative: %w", ErrInvalidConfiguration)
		}
		c.Execution.Timeout = d
		return nil
	}
}

// WithMaxConcurrentAdapters bounds parallel adapter calls per request batch.
func WithMaxConcurrentAdapters(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("max concurrent adapters must be at least 1: %w", ErrInvalidConfiguration)
		}
		c.Execution.MaxConcurrentAdapters = n
		return nil
	}
}

// WithShutdownTimeout bounds how long graceful shutdown waits for drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("shutdown timeout must be positive: %w", ErrInvalidConfiguration)
		}
		c.Execution.ShutdownTimeout = d
		return nil
	}
}

// WithAdapter appends an adapter definition.
func WithAdapter(ac AdapterConfig) Option {
	return func(c *Config) error {
		if ac.Name == "" {
			return fmt.Errorf("adapter name cannot be empty: %w", ErrMissingConfiguration)
		}
		c.Adapters = append(c.Adapters, ac)
		return nil
	}
}

// WithRedisURL sets the shared redis connection URL.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		if url == "" {
			return fmt.Errorf("redis URL cannot be empty: %w", ErrInvalidConfiguration)
		}
		c.Redis.URL = url
		return nil
	}
}

// WithLogging sets log level and format ("json" or "text").
func WithLogging(level, format string) Option {
	return func(c *Config) error {
		if level != "" {
			c.Logging.Level = level
		}
		if format != "" {
			if format != "json" && format != "text" {
				return fmt.Errorf("unknown log format %q: %w", format, ErrInvalidConfiguration)
			}
			c.Logging.Format = format
		}
		return nil
	}
}

// WithTelemetry enables telemetry with the given OTLP endpoint.
// An empty endpoint selects the stdout trace exporter (development mode).
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithConfigFile layers a YAML config file onto the current configuration.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}
