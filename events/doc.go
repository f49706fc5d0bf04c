// Package events ferries native-callback events into the host's tick.
//
// The native engine calls back on its own worker thread. That callback only
// decodes the event and calls Bridge.PostNative, which appends to an
// unbounded queue and returns. Once per tick the host calls Bridge.Pump,
// which walks the queue in order: a native event is applied to the room
// registry, then its media side effects run and its generic events reach
// listeners registered with Subscribe:
//
//	events.Subscribe(bridge.Dispatcher(), func(r *room.Room, e events.PeerJoined) {
//	    fmt.Println("peer joined", r.Name(), e.Peer.ID)
//	})
//
//	for range ticker.C {
//	    bridge.Pump()
//	}
//
// Native and host-published events share one FIFO queue, so listeners
// observe them in the order they were enqueued. Events still queued for a
// room that was released are dropped.
package events
