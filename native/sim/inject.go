package sim

import (
	"fmt"

	"github.com/opd-ai/odinbridge/native"
)

// FailNextJoin makes the next RoomJoin return err.
func (e *Engine) FailNextJoin(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.joinErr = err
}

// InjectConnectionState reports a connection state change for a room.
func (e *Engine) InjectConnectionState(roomPtr uintptr, state native.ConnectionState) error {
	return e.inject(roomPtr, native.Event{Tag: native.EventConnectionStateChanged, State: state})
}

// InjectPeerJoined reports a remote peer joining a room.
func (e *Engine) InjectPeerJoined(roomPtr uintptr, peerID uint64, userData []byte) error {
	return e.inject(roomPtr, native.Event{Tag: native.EventPeerJoined, PeerID: peerID, Data: userData})
}

// InjectPeerUserData reports changed user data of a remote peer.
func (e *Engine) InjectPeerUserData(roomPtr uintptr, peerID uint64, userData []byte) error {
	return e.inject(roomPtr, native.Event{Tag: native.EventPeerUserDataChanged, PeerID: peerID, Data: userData})
}

// InjectPeerLeft reports a remote peer leaving a room.
func (e *Engine) InjectPeerLeft(roomPtr uintptr, peerID uint64) error {
	return e.inject(roomPtr, native.Event{Tag: native.EventPeerLeft, PeerID: peerID})
}

// InjectMessage reports a message sent by peerID.
func (e *Engine) InjectMessage(roomPtr uintptr, peerID uint64, data []byte) error {
	return e.inject(roomPtr, native.Event{Tag: native.EventMessageReceived, PeerID: peerID, Data: data})
}

// InjectMediaAdded creates a remote stream for peerID and reports it. The
// returned pointer can be fed with QueueAudio or SetTone.
func (e *Engine) InjectMediaAdded(roomPtr uintptr, peerID uint64, mediaID uint16) (uintptr, error) {
	e.mu.Lock()
	if _, ok := e.rooms[roomPtr]; !ok {
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: room 0x%x", ErrUnknownPointer, roomPtr)
	}
	ptr := e.alloc()
	e.streams[ptr] = &simStream{
		config:  native.AudioStreamConfig{SampleRate: 48000, Channels: 1},
		mediaID: mediaID,
		peerID:  peerID,
		room:    roomPtr,
		remote:  true,
	}
	e.mu.Unlock()

	err := e.inject(roomPtr, native.Event{
		Tag:     native.EventMediaAdded,
		PeerID:  peerID,
		MediaID: mediaID,
		Stream:  ptr,
	})
	return ptr, err
}

// InjectMediaRemoved reports a remote stream going away.
func (e *Engine) InjectMediaRemoved(roomPtr uintptr, peerID uint64, mediaID uint16) error {
	return e.inject(roomPtr, native.Event{Tag: native.EventMediaRemoved, PeerID: peerID, MediaID: mediaID})
}

// InjectRaw delivers an arbitrary event, including malformed ones.
func (e *Engine) InjectRaw(roomPtr uintptr, ev native.Event) error {
	return e.inject(roomPtr, ev)
}

func (e *Engine) inject(roomPtr uintptr, ev native.Event) error {
	if !e.fire(roomPtr, ev) {
		return fmt.Errorf("%w: room 0x%x has no event callback", ErrUnknownPointer, roomPtr)
	}
	return nil
}

// QueueAudio appends decoded samples to a remote stream.
func (e *Engine) QueueAudio(streamPtr uintptr, samples []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.streams[streamPtr]
	if !ok {
		return fmt.Errorf("%w: stream 0x%x", ErrUnknownPointer, streamPtr)
	}
	s.queued = append(s.queued, samples...)
	return nil
}

// SetTone makes a remote stream produce a sine wave forever. DataAvailable
// then always reports at least one 20ms packet.
func (e *Engine) SetTone(streamPtr uintptr, freq float64, amplitude float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.streams[streamPtr]
	if !ok {
		return fmt.Errorf("%w: stream 0x%x", ErrUnknownPointer, streamPtr)
	}
	s.tone = &tone{
		freq:      freq,
		amplitude: amplitude,
		chunk:     int(s.config.SampleRate) / 50,
	}
	return nil
}

// Started reports whether Startup was called without a later Shutdown.
func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Destroyed returns every destroy call in order.
func (e *Engine) Destroyed() []Destroyed {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Destroyed(nil), e.destroyed...)
}

// LiveRooms returns the number of rooms not yet destroyed.
func (e *Engine) LiveRooms() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rooms)
}

// LiveStreams returns the number of media streams not yet destroyed.
func (e *Engine) LiveStreams() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.streams)
}

// Pushed returns the samples pushed into a local stream.
func (e *Engine) Pushed(streamPtr uintptr) []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.streams[streamPtr]; ok {
		return append([]float32(nil), s.pushed...)
	}
	return nil
}

// Sent returns the messages sent through a room.
func (e *Engine) Sent(roomPtr uintptr) []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rooms[roomPtr]; ok {
		return append([]Message(nil), r.sent...)
	}
	return nil
}

// RoomUserData returns the user data last set on a room.
func (e *Engine) RoomUserData(roomPtr uintptr) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rooms[roomPtr]; ok {
		return append([]byte(nil), r.userData...)
	}
	return nil
}

// RoomAPM returns the APM config applied to a room.
func (e *Engine) RoomAPM(roomPtr uintptr) (native.APMConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rooms[roomPtr]; ok {
		return r.apm, true
	}
	return native.APMConfig{}, false
}
