package handle

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ErrDisposed indicates a handle was used after it was released.
var ErrDisposed = errors.New("native handle disposed")

// Destructor releases the native resource behind a handle.
type Destructor func(ptr uintptr)

// The state word packs a closed flag in bit 0 and the reference count in
// the remaining bits. The owner holds one reference from construction until
// Close, so the count can only reach zero after the handle was closed.
const (
	stateClosed uint64 = 1
	refUnit     uint64 = 2
)

// Handle wraps one opaque native pointer together with the function that
// destroys it.
//
// Calls through the handle must hold a Guard obtained from Acquire. Closing
// the handle marks it invalid immediately, while the destructor runs only
// when the last outstanding Guard is released. Borrowed handles never run a
// destructor.
type Handle struct {
	kind  string
	ptr   uintptr
	free  Destructor
	owns  bool
	state atomic.Uint64
	freed atomic.Bool
}

// New creates an owning handle that calls free exactly once.
// A zero pointer produces a handle that is already invalid.
func New(kind string, ptr uintptr, free Destructor) *Handle {
	h := &Handle{
		kind: kind,
		ptr:  ptr,
		free: free,
		owns: free != nil,
	}
	h.state.Store(refUnit)
	if ptr == 0 {
		h.Close()
	}
	return h
}

// NewBorrowed creates a handle for a pointer owned elsewhere.
func NewBorrowed(kind string, ptr uintptr) *Handle {
	return New(kind, ptr, nil)
}

// Kind returns the resource label used in logs and errors.
func (h *Handle) Kind() string {
	return h.kind
}

// Pointer returns the raw wrapped value. It is meant for identity lookups
// only; dereferencing must go through Acquire.
func (h *Handle) Pointer() uintptr {
	return h.ptr
}

// OwnsHandle reports whether closing the handle destroys the resource.
func (h *Handle) OwnsHandle() bool {
	return h.owns
}

// IsClosed reports whether the handle was invalidated.
func (h *Handle) IsClosed() bool {
	return h.state.Load()&stateClosed != 0
}

// Released reports whether the destructor has run (or, for borrowed
// handles, whether the last reference is gone).
func (h *Handle) Released() bool {
	return h.freed.Load()
}

// Acquire takes an in-use reference on the handle.
func (h *Handle) Acquire() (*Guard, error) {
	for {
		s := h.state.Load()
		if s&stateClosed != 0 {
			return nil, fmt.Errorf("%s handle 0x%x: %w", h.kind, h.ptr, ErrDisposed)
		}
		if h.state.CompareAndSwap(s, s+refUnit) {
			return &Guard{h: h}, nil
		}
	}
}

// Do runs fn with the wrapped pointer while holding a reference.
func (h *Handle) Do(fn func(ptr uintptr) error) error {
	g, err := h.Acquire()
	if err != nil {
		return err
	}
	defer g.Release()
	return fn(g.Ptr())
}

// Close invalidates the handle. It is idempotent and safe from any
// goroutine. The destructor runs once the last Guard is released.
func (h *Handle) Close() error {
	for {
		s := h.state.Load()
		if s&stateClosed != 0 {
			return nil
		}
		if h.state.CompareAndSwap(s, s|stateClosed) {
			break
		}
	}
	// drop the owner reference
	h.release()
	return nil
}

// Invalidate is Close without the error result, for deferred teardown.
func (h *Handle) Invalidate() {
	_ = h.Close()
}

func (h *Handle) release() {
	s := h.state.Add(^(refUnit - 1))
	if s>>1 != 0 {
		return
	}
	if !h.freed.CompareAndSwap(false, true) {
		return
	}
	if !h.owns || h.ptr == 0 {
		return
	}
	h.destroy()
}

func (h *Handle) destroy() {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Handle.destroy",
				"kind":     h.kind,
				"pointer":  fmt.Sprintf("0x%x", h.ptr),
				"panic":    r,
			}).Error("Native destructor panicked")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"function": "Handle.destroy",
		"kind":     h.kind,
		"pointer":  fmt.Sprintf("0x%x", h.ptr),
	}).Debug("Destroying native resource")

	h.free(h.ptr)
}

// Guard is an in-use reference on a Handle.
type Guard struct {
	h    *Handle
	done atomic.Bool
}

// Ptr returns the wrapped pointer. It stays valid until Release.
func (g *Guard) Ptr() uintptr {
	return g.h.ptr
}

// Release drops the reference. Calling it more than once has no effect.
func (g *Guard) Release() {
	if g.done.CompareAndSwap(false, true) {
		g.h.release()
	}
}
