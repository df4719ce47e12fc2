package storage

import (
	"fmt"
	"sync"
)

// Registry holds the adapters constructed at startup, keyed by type. One of
// them is marked active; orchestration always goes through the active
// adapter, while health endpoints may probe every registered one.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	active   string
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its type name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

// SetActive selects the adapter used for all storage operations.
func (r *Registry) SetActive(storageType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[storageType]; !ok {
		return fmt.Errorf("no storage adapter registered for type %q", storageType)
	}
	r.active = storageType
	return nil
}

// Active returns the adapter selected at startup.
func (r *Registry) Active() Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[r.active]
}

// Get returns a registered adapter by type.
func (r *Registry) Get(storageType string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[storageType]
	return a, ok
}

// All returns every registered adapter.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}
