package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-hookrelay/core"
)

// Registry holds sinks by name.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]core.Sink
}

func NewRegistry() *Registry {
	return &Registry{sinks: map[string]core.Sink{}}
}

func (r *Registry) Register(sink core.Sink) error {
	if r == nil {
		return fmt.Errorf("providers: registry is nil")
	}
	if sink == nil {
		return fmt.Errorf("providers: sink is required")
	}
	name := strings.TrimSpace(strings.ToLower(sink.Name()))
	if name == "" {
		return fmt.Errorf("providers: sink name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sinks[name]; exists {
		return fmt.Errorf("providers: sink %q already registered", name)
	}
	r.sinks[name] = sink
	return nil
}

func (r *Registry) Get(name string) (core.Sink, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[strings.TrimSpace(strings.ToLower(name))]
	return sink, ok
}

// List returns sinks ordered by name.
func (r *Registry) List() []core.Sink {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]core.Sink, 0, len(names))
	for _, name := range names {
		out = append(out, r.sinks[name])
	}
	return out
}
