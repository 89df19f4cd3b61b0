package engine

import (
	"sync"

	"github.com/stemsplit/api/internal/model"
)

// Registry maps job types to processing strategies. It is the system's
// only open/closed extension point: a new job type is a Register call,
// not a new code path in the runner.
//
// Registered strategy instances are shared across the worker pool. The
// current strategies shell out to one external process per invocation and
// are safe to invoke concurrently; a strategy wrapping an in-process,
// non-reentrant model must do its own serialization before registering.
type Registry struct {
	mu         sync.RWMutex
	strategies map[model.JobType]Strategy
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[model.JobType]Strategy)}
}

// Register binds a job type to a strategy, replacing any previous binding
func (r *Registry) Register(t model.JobType, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[t] = s
}

// Lookup returns the strategy for a job type
func (r *Registry) Lookup(t model.JobType) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[t]
	return s, ok
}
