package room

import (
	"fmt"
	"sync"
)

// Ordered is a keyed collection that remembers insertion order.
type Ordered[K comparable, V any] struct {
	mu    sync.RWMutex
	keys  []K
	items map[K]V
}

// NewOrdered creates an empty collection.
func NewOrdered[K comparable, V any]() *Ordered[K, V] {
	return &Ordered[K, V]{items: make(map[K]V)}
}

// Add registers v under key.
func (o *Ordered[K, V]) Add(key K, v V) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.items[key]; ok {
		return fmt.Errorf("%v: %w", key, ErrDuplicateKey)
	}
	o.items[key] = v
	o.keys = append(o.keys, key)
	return nil
}

// Remove unregisters key and returns its value.
func (o *Ordered[K, V]) Remove(key K) (V, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.items[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%v: %w", key, ErrNotFound)
	}
	delete(o.items, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return v, nil
}

// Get returns the value registered under key.
func (o *Ordered[K, V]) Get(key K) (V, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.items[key]
	return v, ok
}

// Contains reports whether key is registered.
func (o *Ordered[K, V]) Contains(key K) bool {
	_, ok := o.Get(key)
	return ok
}

// Keys returns a snapshot of the keys in insertion order.
func (o *Ordered[K, V]) Keys() []K {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]K(nil), o.keys...)
}

// Values returns a snapshot of the values in insertion order.
func (o *Ordered[K, V]) Values() []V {
	o.mu.RLock()
	defer o.mu.RUnlock()
	values := make([]V, 0, len(o.keys))
	for _, k := range o.keys {
		values = append(values, o.items[k])
	}
	return values
}

// Len returns the number of entries.
func (o *Ordered[K, V]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.keys)
}
