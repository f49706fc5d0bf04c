// Package handle provides reference-counted wrappers around opaque native
// pointers.
//
// Every resource the native voice engine hands out (rooms, media streams,
// token generators, the library itself) is wrapped in a [Handle] together
// with the function that destroys it. Native calls acquire a [Guard] for
// their duration:
//
//	g, err := h.Acquire()
//	if err != nil {
//	    return err // handle.ErrDisposed
//	}
//	defer g.Release()
//	nativeCall(g.Ptr())
//
// # Lifetime
//
// [Handle.Close] invalidates the handle immediately so no new guard can be
// taken. The destructor runs exactly once, when the last outstanding guard
// is released, which makes it safe for the native callback goroutine to
// race with a teardown on the host goroutine. Borrowed handles created with
// [NewBorrowed] never run a destructor.
//
// The implementation is lock-free: a single atomic word holds the closed
// flag and the reference count.
package handle
