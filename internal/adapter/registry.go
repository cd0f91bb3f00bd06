package adapter

import (
	"sort"
	"sync"

	"admindata/internal/apperr"
)

// Registry holds named adapters. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under a unique name. Registering a name
// twice is a conflict; deregister the old adapter first to replace it.
func (r *Registry) Register(name string, a Adapter) error {
	if name == "" {
		return apperr.Validation("adapter name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return apperr.Conflict("adapter %s is already registered", name)
	}
	r.adapters[name] = a
	return nil
}

// Resolve returns the adapter registered under name.
func (r *Registry) Resolve(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, apperr.NotFound("adapter %s is not registered", name)
	}
	return a, nil
}

// Deregister removes the adapter. The adapter is not closed; the
// caller owns its lifecycle.
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[name]; !ok {
		return apperr.NotFound("adapter %s is not registered", name)
	}
	delete(r.adapters, name)
	return nil
}

// Names returns the registered adapter names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Process-wide default registry, mirroring how database/sql registers
// drivers.
var defaultRegistry = NewRegistry()

func Register(name string, a Adapter) error { return defaultRegistry.Register(name, a) }
func Resolve(name string) (Adapter, error)  { return defaultRegistry.Resolve(name) }
func Deregister(name string) error          { return defaultRegistry.Deregister(name) }
func Names() []string                       { return defaultRegistry.Names() }
