package registry

import (
	"errors"
	"sync"
)

// ErrDuplicateKey is returned by Add when the key is already registered.
var ErrDuplicateKey = errors.New("registry: duplicate key")

// Registry is a thread-safe registry for values indexed by key.
// It remembers insertion order, so Keys, Values and Range are deterministic.
// It uses sync.RWMutex for optimal read-heavy workloads.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
	order   []K
}

// New creates a new empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Add inserts a value for a key that is not yet registered.
// Returns ErrDuplicateKey and leaves the existing value untouched otherwise.
func (r *Registry[K, V]) Add(key K, value V) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return ErrDuplicateKey
	}
	r.entries[key] = value
	r.order = append(r.order, key)
	return nil
}

// Register adds or updates a value in the registry.
// Updating an existing key keeps its original position.
func (r *Registry[K, V]) Register(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; !exists {
		r.order = append(r.order, key)
	}
	r.entries[key] = value
}

// Get returns the value for a key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Has returns true if the key exists in the registry.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Delete removes a key from the registry.
func (r *Registry[K, V]) Delete(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; !exists {
		return
	}
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Keys returns all keys in insertion order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]K, len(r.order))
	copy(keys, r.order)
	return keys
}

// Values returns all values in insertion order.
func (r *Registry[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values := make([]V, 0, len(r.order))
	for _, k := range r.order {
		values = append(values, r.entries[k])
	}
	return values
}

// Len returns the number of entries in the registry.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range iterates over all entries in insertion order.
// If fn returns false, iteration stops.
//
// Range iterates over a snapshot of the registry, so it is safe
// to call Register or Delete during iteration without affecting
// the current iteration.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	r.mu.RLock()
	keys := make([]K, len(r.order))
	copy(keys, r.order)
	snapshot := make(map[K]V, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	for _, k := range keys {
		if !fn(k, snapshot[k]) {
			return
		}
	}
}

// GetOrCreate returns the value for a key, creating it with the factory
// function if it doesn't exist. The factory is called at most once per key,
// even under concurrent access.
func (r *Registry[K, V]) GetOrCreate(key K, factory func() V) V {
	r.mu.RLock()
	v, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return v
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.entries[key]; ok {
		return v
	}

	v = factory()
	r.entries[key] = v
	r.order = append(r.order, key)
	return v
}
