package events

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/media"
	"github.com/opd-ai/odinbridge/native"
	"github.com/opd-ai/odinbridge/room"
)

// NativeEnvelope is a decoded native event together with the room its
// pointer resolved to.
type NativeEnvelope struct {
	Room  *room.Room
	Event native.Event
}

// MediaAddedAction is the reduced payload of the media-added side effect.
type MediaAddedAction struct {
	Room    *room.Room
	PeerID  uint64
	MediaID uint16
	Media   *media.PlaybackStream
}

// MediaRemovedAction is the reduced payload of the media-removed side effect.
type MediaRemovedAction struct {
	Room    *room.Room
	PeerID  uint64
	MediaID uint16
}

// PumpStats counts what one Pump processed.
type PumpStats struct {
	Native       int
	MediaAdded   int
	MediaRemoved int
	Events       int
	Dropped      int
}

type entryKind uint8

const (
	entryNative entryKind = iota
	entryEvent
	entryAdded
	entryRemoved
)

// entry is one slot of the bridge queue.
type entry struct {
	kind    entryKind
	native  NativeEnvelope
	event   Envelope
	added   MediaAddedAction
	removed MediaRemovedAction
}

// Bridge carries events from the native callback thread and from
// background operations to the host tick.
//
// Everything goes through one FIFO queue and Pump handles it in enqueue
// order. A native entry is applied to its room's registry inline, and what
// the registry listener emits while it is applied is handled right after:
// media side effects first, so a playback consumer exists (or is gone)
// before the generic MediaAdded or MediaRemoved listener fires.
type Bridge struct {
	queue      Queue[entry]
	dispatcher *Dispatcher

	mu        sync.RWMutex
	onAdded   func(MediaAddedAction)
	onRemoved func(MediaRemovedAction)

	// emitted collects listener output while Pump applies a native entry.
	emitMu  sync.Mutex
	emitted *[]entry
}

// NewBridge creates a bridge dispatching to d (a new dispatcher when nil).
func NewBridge(d *Dispatcher) *Bridge {
	if d == nil {
		d = NewDispatcher()
	}
	return &Bridge{dispatcher: d}
}

// Dispatcher returns the generic listener registry.
func (b *Bridge) Dispatcher() *Dispatcher {
	return b.dispatcher
}

// PostNative enqueues a native event. It is called from the native worker
// thread and never blocks on the consumer.
func (b *Bridge) PostNative(r *room.Room, ev native.Event) {
	b.queue.Push(entry{kind: entryNative, native: NativeEnvelope{Room: r, Event: ev}})
}

// Publish enqueues a generic event for the next drain.
func (b *Bridge) Publish(origin *room.Room, p Payload) {
	b.queue.Push(eventEntry(origin, p))
}

// Emit is Publish for registry listeners. While Pump applies a native event
// the payload is delivered right after that event; anywhere else it is
// queued like Publish.
func (b *Bridge) Emit(origin *room.Room, p Payload) {
	b.emit(eventEntry(origin, p))
}

// EmitMediaAdded emits the media-added side effect and, when forward is
// set, the generic MediaAdded event.
func (b *Bridge) EmitMediaAdded(r *room.Room, p *room.Peer, m *media.PlaybackStream, forward bool) {
	out := []entry{{kind: entryAdded, added: MediaAddedAction{
		Room:    r,
		PeerID:  m.PeerID(),
		MediaID: m.ID(),
		Media:   m,
	}}}
	if forward {
		out = append(out, eventEntry(r, MediaAdded{PeerID: m.PeerID(), Peer: p, Media: m}))
	}
	b.emit(out...)
}

// EmitMediaRemoved emits the media-removed side effect and, when forward
// is set, the generic MediaRemoved event.
func (b *Bridge) EmitMediaRemoved(r *room.Room, p *room.Peer, peerID uint64, mediaID uint16, forward bool) {
	out := []entry{{kind: entryRemoved, removed: MediaRemovedAction{
		Room:    r,
		PeerID:  peerID,
		MediaID: mediaID,
	}}}
	if forward {
		out = append(out, eventEntry(r, MediaRemoved{PeerID: peerID, MediaID: mediaID, Peer: p}))
	}
	b.emit(out...)
}

func eventEntry(origin *room.Room, p Payload) entry {
	return entry{kind: entryEvent, event: Envelope{Origin: origin, Payload: p}}
}

func (b *Bridge) emit(out ...entry) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	if b.emitted != nil {
		*b.emitted = append(*b.emitted, out...)
		return
	}
	for _, e := range out {
		b.queue.Push(e)
	}
}

// HandleMediaAdded sets the media-added side effect.
func (b *Bridge) HandleMediaAdded(fn func(MediaAddedAction)) {
	b.mu.Lock()
	b.onAdded = fn
	b.mu.Unlock()
}

// HandleMediaRemoved sets the media-removed side effect.
func (b *Bridge) HandleMediaRemoved(fn func(MediaRemovedAction)) {
	b.mu.Lock()
	b.onRemoved = fn
	b.mu.Unlock()
}

// Pending returns the number of queued entries.
func (b *Bridge) Pending() int {
	return b.queue.Len()
}

// Pump is the single consumer, called once per host tick. It drains only
// what was queued when it began, so events published by listeners are
// delivered on the next tick.
func (b *Bridge) Pump() PumpStats {
	var stats PumpStats

	for _, e := range b.queue.Drain() {
		if e.kind != entryNative {
			b.run(e, &stats)
			continue
		}
		stats.Native++
		emitted := b.apply(e.native, &stats)
		for _, out := range emitted {
			if out.kind != entryEvent {
				b.run(out, &stats)
			}
		}
		for _, out := range emitted {
			if out.kind == entryEvent {
				b.run(out, &stats)
			}
		}
	}
	return stats
}

// apply runs HandleEvent on the envelope's room and returns what the
// registry listener emitted meanwhile. Events for a room that was already
// released are dropped.
func (b *Bridge) apply(env NativeEnvelope, stats *PumpStats) []entry {
	if env.Room == nil {
		stats.Dropped++
		return nil
	}

	var emitted []entry
	b.emitMu.Lock()
	b.emitted = &emitted
	b.emitMu.Unlock()

	var err error
	safely("Bridge.Pump", env.Event.Tag.String(), func() {
		err = env.Room.HandleEvent(env.Event)
	})

	b.emitMu.Lock()
	b.emitted = nil
	b.emitMu.Unlock()

	switch {
	case errors.Is(err, room.ErrClosed):
		stats.Dropped++
		logrus.WithFields(logrus.Fields{
			"function": "Bridge.Pump",
			"room":     env.Room.Name(),
			"event":    env.Event.Tag.String(),
		}).Debug("Dropping native event for released room")
	case err != nil:
		logrus.WithFields(logrus.Fields{
			"function": "Bridge.Pump",
			"room":     env.Room.Name(),
			"event":    env.Event.Tag.String(),
			"peer_id":  env.Event.PeerID,
			"error":    err.Error(),
		}).Warn("Failed to apply native event")
	}
	return emitted
}

func (b *Bridge) run(e entry, stats *PumpStats) {
	switch e.kind {
	case entryEvent:
		if err := b.dispatcher.Dispatch(e.event); err != nil {
			stats.Dropped++
			return
		}
		stats.Events++

	case entryAdded:
		stats.MediaAdded++
		b.mu.RLock()
		fn := b.onAdded
		b.mu.RUnlock()
		if fn != nil {
			safely("Bridge.Pump", KindMediaAdded.String(), func() { fn(e.added) })
		}

	case entryRemoved:
		stats.MediaRemoved++
		b.mu.RLock()
		fn := b.onRemoved
		b.mu.RUnlock()
		if fn != nil {
			safely("Bridge.Pump", KindMediaRemoved.String(), func() { fn(e.removed) })
		}
	}
}
