package room

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Collection is the registry of live rooms, keyed by name with a secondary
// index by native pointer for callback routing.
type Collection struct {
	mu    sync.RWMutex
	rooms *Ordered[string, *Room]
	byPtr map[uintptr]*Room
}

// NewCollection creates an empty registry.
func NewCollection() *Collection {
	return &Collection{
		rooms: NewOrdered[string, *Room](),
		byPtr: make(map[uintptr]*Room),
	}
}

// Add registers a room.
func (c *Collection) Add(r *Room) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.rooms.Add(r.Name(), r); err != nil {
		return fmt.Errorf("room %w", err)
	}
	c.byPtr[r.Pointer()] = r
	return nil
}

// Remove unregisters a room without closing it.
func (c *Collection) Remove(name string) (*Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.rooms.Remove(name)
	if err != nil {
		return nil, fmt.Errorf("room %w", err)
	}
	delete(c.byPtr, r.Pointer())
	return r, nil
}

// FreeRoom unregisters r if it is still the room registered under its name
// and tears it down either way.
func (c *Collection) FreeRoom(r *Room) {
	c.mu.Lock()
	if cur, ok := c.rooms.Get(r.Name()); ok && cur == r {
		_, _ = c.rooms.Remove(r.Name())
		delete(c.byPtr, r.Pointer())
	}
	c.mu.Unlock()

	if err := r.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Collection.FreeRoom",
			"room":     r.Name(),
			"error":    err.Error(),
		}).Warn("Room teardown reported an error")
	}
}

// Get returns the room named name.
func (c *Collection) Get(name string) (*Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms.Get(name)
}

// ByPointer returns the room owning a native room pointer.
func (c *Collection) ByPointer(ptr uintptr) (*Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byPtr[ptr]
	return r, ok
}

// Names returns a snapshot of the room names in join order.
func (c *Collection) Names() []string {
	return c.rooms.Keys()
}

// Rooms returns a snapshot of the rooms in join order.
func (c *Collection) Rooms() []*Room {
	return c.rooms.Values()
}

// Len returns the number of registered rooms.
func (c *Collection) Len() int {
	return c.rooms.Len()
}

// Free unregisters a room and tears it down.
func (c *Collection) Free(name string) error {
	r, err := c.Remove(name)
	if err != nil {
		return err
	}
	if err := r.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Collection.Free",
			"room":     name,
			"error":    err.Error(),
		}).Warn("Room teardown reported an error")
	}
	return nil
}

// FreeAll tears down every room registered when it is called. Rooms removed
// concurrently are skipped, never freed twice.
func (c *Collection) FreeAll() {
	for _, name := range c.Names() {
		_ = c.Free(name)
	}
}
