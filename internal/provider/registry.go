package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider ids to their invocation adapters. It is safe for
// concurrent use; adapters are registered at wiring time and looked up per
// job.
type Registry struct {
	mu       sync.RWMutex
	invokers map[string]Invoker
}

func NewRegistry() *Registry {
	return &Registry{invokers: make(map[string]Invoker)}
}

func (r *Registry) Register(id string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[id] = inv
}

func (r *Registry) Get(id string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invokers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return inv, nil
}

// IDs returns the registered provider ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.invokers))
	for id := range r.invokers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
