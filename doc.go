// Package odinbridge bridges a native, callback-driven voice engine into a
// host application's single-threaded update loop.
//
// The native engine reports room activity from its own worker thread. A
// Client turns those callbacks into queued events without blocking the
// engine, and a Runtime drains them once per host tick, applying each one to
// the room/peer/media registry before any listener sees it. Remote audio is
// pulled into per-stream playback ring buffers that an independent render
// clock (usually a speaker.Device driving a render.Mixer) reads from.
//
// # Getting Started
//
//	cfg := config.Default()
//	if err := cfg.ApplyEnv(); err != nil {
//	    log.Fatal(err)
//	}
//
//	api, err := native.Open(cfg.LibraryPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rt, err := odinbridge.NewRuntime(cfg, api)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	events.Subscribe(rt.Dispatcher(), func(r *room.Room, e events.PeerJoined) {
//	    fmt.Printf("peer %d joined %s\n", e.Peer.ID, r.Name())
//	})
//
//	if err := rt.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	rt.JoinRoom("lobby", nil)
//
//	ticker := time.NewTicker(20 * time.Millisecond)
//	for range ticker.C {
//	    rt.Pump()
//	}
//
// # Threading
//
// Pump, the registry lookups and every listener run on the host goroutine.
// JoinRoom, LeaveRoom and UpdateUserData start background goroutines and
// report their outcome as events on a later tick. Playback flush loops run
// on their own goroutines and only touch their ring buffer.
//
// # Testing
//
// The native/sim package implements the engine in Go. Tests script remote
// peers and media through it and observe the registry after each Pump.
package odinbridge
