package playback

import (
	"github.com/opd-ai/odinbridge/room"
)

// Registry holds the live playbacks by key.
type Registry struct {
	items *room.Ordered[Key, *Playback]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: room.NewOrdered[Key, *Playback]()}
}

// Add registers p under its key.
func (r *Registry) Add(p *Playback) error {
	return r.items.Add(p.Key(), p)
}

// Get returns the playback for key.
func (r *Registry) Get(key Key) (*Playback, bool) {
	return r.items.Get(key)
}

// All returns a snapshot of the playbacks in creation order.
func (r *Registry) All() []*Playback {
	return r.items.Values()
}

// Len returns the number of playbacks.
func (r *Registry) Len() int {
	return r.items.Len()
}

// Destroy stops and removes the playback for key.
func (r *Registry) Destroy(key Key) bool {
	p, err := r.items.Remove(key)
	if err != nil {
		return false
	}
	p.Stop()
	return true
}

// DestroyMatching stops and removes every playback whose key satisfies
// match, and returns how many were removed.
func (r *Registry) DestroyMatching(match func(Key) bool) int {
	n := 0
	for _, key := range r.items.Keys() {
		if match(key) && r.Destroy(key) {
			n++
		}
	}
	return n
}

// DestroyAll stops and removes every playback.
func (r *Registry) DestroyAll() int {
	return r.DestroyMatching(func(Key) bool { return true })
}
