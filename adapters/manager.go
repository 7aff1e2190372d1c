// Package adapters provides the adapter registry and the built-in retrieval
// backends: an in-memory static adapter for development and tests, a
// redis-backed document store, and an HTTP client for remote retriever
// services. All adapters implement core.Adapter and are looked up by name
// through the Manager.
package adapters

import (
	"fmt"
	"sync"

	"github.com/itsneelabh/gorag/core"
)

// Manager is a thread-safe adapter registry implementing
// core.AdapterManager.
type Manager struct {
	logger   core.Logger
	adapters map[string]core.Adapter
	mu       sync.RWMutex
}

// NewManager creates an empty registry.
func NewManager(logger core.Logger) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("gorag/adapters")
	}
	return &Manager{
		logger:   logger,
		adapters: make(map[string]core.Adapter),
	}
}

// NewManagerFromConfig creates a registry populated from the configured
// adapter list. Construction stops at the first adapter that fails to
// initialize.
func NewManagerFromConfig(cfg *core.Config, logger core.Logger) (*Manager, error) {
	m := NewManager(logger)

	for _, ac := range cfg.Adapters {
		adapter, err := buildAdapter(cfg, ac, m.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build adapter %q: %w", ac.Name, err)
		}
		if err := m.Register(ac.Name, adapter); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func buildAdapter(cfg *core.Config, ac core.AdapterConfig, logger core.Logger) (core.Adapter, error) {
	switch ac.Type {
	case "static", "":
		return NewStaticAdapter(ac.Name, nil), nil
	case "redis":
		url := ac.RedisURL
		if url == "" {
			url = cfg.Redis.URL
		}
		return NewRedisAdapter(RedisAdapterOptions{
			Name:       ac.Name,
			RedisURL:   url,
			Namespace:  ac.Namespace,
			MaxResults: ac.MaxResults,
			Logger:     logger,
		})
	case "http":
		return NewHTTPAdapter(HTTPAdapterOptions{
			Name:       ac.Name,
			Endpoint:   ac.Endpoint,
			MaxResults: ac.MaxResults,
			Logger:     logger,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q: %w", ac.Type, core.ErrInvalidConfiguration)
	}
}

// Register adds an adapter under a name. Registering a duplicate name is an
// error; use Replace for hot swaps.
func (m *Manager) Register(name string, adapter core.Adapter) error {
	if name == "" {
		return fmt.Errorf("adapter name cannot be empty: %w", core.ErrInvalidConfiguration)
	}
	if adapter == nil {
		return fmt.Errorf("adapter %q is nil: %w", name, core.ErrInvalidConfiguration)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered: %w", name, core.ErrInvalidConfiguration)
	}
	m.adapters[name] = adapter

	m.logger.Info("Adapter registered", map[string]interface{}{
		"operation": "adapter_registered",
		"adapter":   name,
		"type":      fmt.Sprintf("%T", adapter),
	})
	return nil
}

// Replace registers an adapter, overwriting any existing registration.
func (m *Manager) Replace(name string, adapter core.Adapter) {
	m.mu.Lock()
	m.adapters[name] = adapter
	m.mu.Unlock()
}

// Unregister removes an adapter from the registry.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	delete(m.adapters, name)
	m.mu.Unlock()
}

// GetAdapter returns the adapter registered under name.
func (m *Manager) GetAdapter(name string) (core.Adapter, error) {
	m.mu.RLock()
	adapter, ok := m.adapters[name]
	m.mu.RUnlock()

	if !ok {
		return nil, core.NewFrameworkError("adapters.GetAdapter", "adapter",
			fmt.Errorf("adapter %q not registered: %w", name, core.ErrAdapterNotFound))
	}
	return adapter, nil
}

// Names returns the registered adapter names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	return names
}
