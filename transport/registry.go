package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-leads/core"
)

type Registry struct {
	mu       sync.RWMutex
	adapters map[string]core.TransportAdapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: map[string]core.TransportAdapter{},
	}
}

// NewDefaultRegistry registers the adapters the pipeline actually speaks.
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()
	_ = registry.Register(NewRESTAdapter(nil))
	return registry
}

func (r *Registry) Register(adapter core.TransportAdapter) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	if adapter == nil {
		return fmt.Errorf("transport: adapter is nil")
	}
	kind := normalizeKind(adapter.Kind())
	if kind == "" {
		return fmt.Errorf("transport: adapter kind is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("transport: adapter kind %q already registered", kind)
	}
	r.adapters[kind] = adapter
	return nil
}

func (r *Registry) Get(kind string) (core.TransportAdapter, bool) {
	if r == nil {
		return nil, false
	}
	kind = normalizeKind(kind)
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[kind]
	return adapter, ok
}

// Resolve always returns a usable adapter: unknown kinds resolve to an
// adapter whose calls fail with a configuration error, so wiring mistakes
// surface at request time with a clear message instead of a nil panic.
func (r *Registry) Resolve(kind string) core.TransportAdapter {
	if adapter, ok := r.Get(kind); ok {
		return adapter
	}
	return NewUnsupportedAdapter(kind, "no adapter registered for this kind")
}

func (r *Registry) List() []core.TransportAdapter {
	if r == nil {
		return []core.TransportAdapter{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.adapters))
	for kind := range r.adapters {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	result := make([]core.TransportAdapter, 0, len(kinds))
	for _, kind := range kinds {
		result = append(result, r.adapters[kind])
	}
	return result
}

func normalizeKind(kind string) string {
	return strings.TrimSpace(strings.ToLower(kind))
}
