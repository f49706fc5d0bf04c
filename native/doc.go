// Package native describes the surface of the ODIN voice engine that the
// runtime depends on and binds it to the shared library.
//
// The API interface takes and returns *handle.Handle values for every native
// object (rooms, media streams, token generators), so a call racing with a
// Close either fails with handle.ErrDisposed or completes before the native
// destroy function runs.
//
// On darwin and linux, Load opens libodin with purego and registers a single
// event trampoline created with purego.NewCallback. The engine invokes that
// trampoline from its own worker thread; callers must treat the callback as
// foreign and only copy the event out (DecodeEvent) and enqueue it.
//
//	lib, err := native.Load("")
//	if err != nil {
//	    return err
//	}
//	defer lib.Close()
//
//	if err := lib.Startup(); err != nil {
//	    return err
//	}
//	defer lib.Shutdown()
//
// Tests and tooling that cannot load the library use the pure Go engine in
// package native/sim, which implements the same API.
package native
