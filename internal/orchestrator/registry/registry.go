// Package registry implements the Agent Registry: a kind-keyed set of
// Agent factories, each with its own configurable concurrency limit.
package registry

import (
	"sync"

	"github.com/driftcode/orchestra/internal/agent"
	"github.com/driftcode/orchestra/internal/common/apperrors"
)

// kindEntry pairs a factory with a counting semaphore enforcing
// max_in_flight for that kind.
type kindEntry struct {
	factory     agent.Factory
	slots       chan struct{}
	maxInFlight int
}

// Registry maps task kinds to the factories and concurrency limits
// that produce Agent instances for them.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*kindEntry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{kinds: make(map[string]*kindEntry)}
}

// Register adds a factory for kind with the given concurrency limit.
// maxInFlight <= 0 means unlimited.
func (r *Registry) Register(kind string, factory agent.Factory, maxInFlight int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var slots chan struct{}
	if maxInFlight > 0 {
		slots = make(chan struct{}, maxInFlight)
	}
	r.kinds[kind] = &kindEntry{factory: factory, slots: slots, maxInFlight: maxInFlight}
}

// Get returns a newly constructed Agent for kind, failing with a
// BadRequest "unknown agent kind" error if no factory is registered.
func (r *Registry) Get(kind string) (agent.Agent, error) {
	r.mu.RLock()
	entry, ok := r.kinds[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, apperrors.BadRequest("unknown agent kind: " + kind)
	}
	return entry.factory(), nil
}

// Acquire blocks until a concurrency slot for kind is available, then
// returns a release function. Kinds registered with maxInFlight <= 0
// have no limit and acquire immediately; unregistered kinds fail with a
// BadRequest "unknown agent kind" error.
func (r *Registry) Acquire(kind string) (release func(), err error) {
	r.mu.RLock()
	entry, ok := r.kinds[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, apperrors.BadRequest("unknown agent kind: " + kind)
	}
	if entry.slots == nil {
		return func() {}, nil
	}

	entry.slots <- struct{}{}
	return func() { <-entry.slots }, nil
}

// TryAcquire attempts to acquire a slot without blocking. ok is false
// when the kind is at its max_in_flight limit.
func (r *Registry) TryAcquire(kind string) (release func(), ok bool, err error) {
	r.mu.RLock()
	entry, exists := r.kinds[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, false, apperrors.BadRequest("unknown agent kind: " + kind)
	}
	if entry.slots == nil {
		return func() {}, true, nil
	}

	select {
	case entry.slots <- struct{}{}:
		return func() { <-entry.slots }, true, nil
	default:
		return nil, false, nil
	}
}

// Has reports whether a factory is registered for kind.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[kind]
	return ok
}

// Kinds returns the registered kind names.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		kinds = append(kinds, k)
	}
	return kinds
}
