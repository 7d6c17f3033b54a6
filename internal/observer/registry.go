// Package observer provides a listener registry with per-listener fault isolation.
package observer

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry holds listeners of type func(T) error. Listeners are removed by the
// disposer returned from Add; dispatch iterates a snapshot so listeners may add
// or remove listeners while being notified.
type Registry[T any] struct {
	name string

	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]func(T) error

	// OnFailure is called for each listener that returns an error or panics.
	OnFailure func(err error)
}

// NewRegistry creates an empty registry. The name is used in log fields.
func NewRegistry[T any](name string) *Registry[T] {
	return &Registry[T]{
		name:      name,
		listeners: make(map[uint64]func(T) error),
	}
}

// Add registers fn and returns a function that removes it. The disposer is idempotent.
func (r *Registry[T]) Add(fn func(T) error) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.listeners, id)
		})
	}
}

// AddFunc registers a listener that cannot fail.
func (r *Registry[T]) AddFunc(fn func(T)) (remove func()) {
	return r.Add(func(v T) error {
		fn(v)
		return nil
	})
}

// Len returns the number of registered listeners.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Dispatch invokes every listener with v. A listener that returns an error or
// panics is logged and does not prevent the others from running. Dispatch
// returns the number of listeners that failed.
func (r *Registry[T]) Dispatch(v T) int {
	r.mu.RLock()
	snapshot := make([]func(T) error, 0, len(r.listeners))
	for _, fn := range r.listeners {
		snapshot = append(snapshot, fn)
	}
	r.mu.RUnlock()

	failed := 0
	for _, fn := range snapshot {
		if err := r.invoke(fn, v); err != nil {
			failed++
			log.Error().Err(err).Str("registry", r.name).Msg("listener failed")
			if r.OnFailure != nil {
				r.OnFailure(err)
			}
		}
	}

	return failed
}

func (r *Registry[T]) invoke(fn func(T) error, v T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panic: %v", p)
		}
	}()
	return fn(v)
}
