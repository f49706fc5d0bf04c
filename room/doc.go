// Package room is the registry of live rooms, peers and media.
//
// Collection holds rooms by name and by native pointer, so callbacks that
// only carry a room pointer can be routed. Each Room holds its peers in a
// PeerCollection and each Peer its media in a MediaCollection; all of them
// keep insertion order and hand out snapshots for iteration.
//
// Teardown always runs inside-out. Freeing a room frees every peer, which
// closes each media's native stream before the entry is dropped, then the
// microphone and finally the room handle. Bulk teardown iterates a key
// snapshot and swallows individual failures so shutdown always completes.
//
// Room.HandleEvent is the single place where native events mutate the
// registry. It runs on the host's tick goroutine and reports each change to
// a Listener.
package room
