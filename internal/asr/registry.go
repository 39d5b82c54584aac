package asr

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Registry holds the configured engines and the one selected for jobs.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
	primary string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds an engine. The first registered engine becomes primary.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Name()] = e
	if r.primary == "" {
		r.primary = e.Name()
	}
}

// SetPrimary selects the engine used by Primary.
func (r *Registry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.engines[name]; !ok {
		return fmt.Errorf("asr: engine %q is not registered", name)
	}
	r.primary = name
	return nil
}

// Get returns an engine by name.
func (r *Registry) Get(name string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	return e, ok
}

// Primary returns the selected engine, or nil if none is registered.
func (r *Registry) Primary() Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[r.primary]
}

// Names returns registered engine names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HealthCheckAll checks every engine. A check that returns an error is
// reported as an unhealthy status.
func (r *Registry) HealthCheckAll(ctx context.Context) []HealthStatus {
	var out []HealthStatus
	for _, name := range r.Names() {
		e, _ := r.Get(name)
		status, err := e.HealthCheck(ctx)
		if err != nil {
			out = append(out, HealthStatus{Engine: name, Message: err.Error()})
			continue
		}
		out = append(out, *status)
	}
	return out
}
