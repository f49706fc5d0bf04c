package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/config"
	"github.com/opd-ai/odinbridge/handle"
	"github.com/opd-ai/odinbridge/native"
	"github.com/opd-ai/odinbridge/token"
)

// Error codes returned inside native.CallError.
const (
	CodeInvalidArgument int32 = -1 << 29
	CodeNotJoined       int32 = -2 << 29
	CodeUnauthorized    int32 = -3 << 29
	CodeUnknownHandle   int32 = -4 << 29
)

// ErrUnknownPointer indicates an inject or inspect call for an object the
// engine never created or already destroyed.
var ErrUnknownPointer = errors.New("sim: unknown pointer")

// Destroyed records one native destroy call.
type Destroyed struct {
	Kind string
	Ptr  uintptr
}

// Message is one RoomSendMessage call.
type Message struct {
	PeerIDs []uint64
	Data    []byte
}

type simRoom struct {
	callback   native.EventCallback
	apm        native.APMConfig
	gatewayURL string
	token      string
	joined     bool
	ownPeerID  uint64
	userData   []byte
	sent       []Message
	nextMedia  uint16
}

type simStream struct {
	config  native.AudioStreamConfig
	mediaID uint16
	peerID  uint64
	room    uintptr
	remote  bool
	pushed  []float32
	queued  []float32
	tone    *tone
}

type tone struct {
	freq      float64
	amplitude float32
	phase     float64
	chunk     int
}

// Engine is an in-memory native.API. Objects are identified by fake
// pointers and remote activity is scripted through the Inject methods, which
// invoke the registered event callback synchronously like the native worker
// thread would.
type Engine struct {
	mu         sync.Mutex
	next       uintptr
	accessKey  string
	started    bool
	nextPeerID uint64
	joinErr    error

	rooms      map[uintptr]*simRoom
	streams    map[uintptr]*simStream
	generators map[uintptr]token.Generator
	events     map[uintptr]native.Event
	destroyed  []Destroyed
}

// Option configures an Engine.
type Option func(*Engine)

// WithAccessKey makes RoomJoin verify tokens against accessKey.
func WithAccessKey(accessKey string) Option {
	return func(e *Engine) {
		e.accessKey = accessKey
	}
}

// WithFirstPeerID sets the id handed to the first joining client.
func WithFirstPeerID(id uint64) Option {
	return func(e *Engine) {
		e.nextPeerID = id
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		next:       0x1000,
		nextPeerID: 1,
		rooms:      make(map[uintptr]*simRoom),
		streams:    make(map[uintptr]*simStream),
		generators: make(map[uintptr]token.Generator),
		events:     make(map[uintptr]native.Event),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ native.API = (*Engine)(nil)

func (e *Engine) alloc() uintptr {
	e.next += 0x10
	return e.next
}

func (e *Engine) destructor(kind string) handle.Destructor {
	return func(ptr uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.destroyed = append(e.destroyed, Destroyed{Kind: kind, Ptr: ptr})
		switch kind {
		case native.KindRoom:
			delete(e.rooms, ptr)
		case native.KindMediaStream:
			delete(e.streams, ptr)
		case native.KindTokenGenerator:
			delete(e.generators, ptr)
		}
	}
}

func callError(op string, code int32, format string, args ...interface{}) error {
	return &native.CallError{Op: op, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Startup implements native.API.
func (e *Engine) Startup() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	return nil
}

// Shutdown implements native.API.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = false
}

// GenerateAccessKey implements native.API.
func (e *Engine) GenerateAccessKey() (string, error) {
	return config.GenerateAccessKey()
}

// TokenGeneratorCreate implements native.API.
func (e *Engine) TokenGeneratorCreate(accessKey string) (*handle.Handle, error) {
	gen, err := token.NewLocalGenerator(accessKey)
	if err != nil {
		return nil, callError("odin_token_generator_create", CodeInvalidArgument, "%v", err)
	}

	e.mu.Lock()
	ptr := e.alloc()
	e.generators[ptr] = gen
	e.mu.Unlock()

	return handle.New(native.KindTokenGenerator, ptr, e.destructor(native.KindTokenGenerator)), nil
}

// TokenGeneratorCreateToken implements native.API.
func (e *Engine) TokenGeneratorCreateToken(generator *handle.Handle, roomID, userID string) (string, error) {
	var tok string
	err := generator.Do(func(ptr uintptr) error {
		e.mu.Lock()
		gen, ok := e.generators[ptr]
		e.mu.Unlock()
		if !ok {
			return callError("odin_token_generator_create_token", CodeUnknownHandle, "unknown generator")
		}
		var err error
		tok, err = gen.CreateToken(roomID, userID)
		return err
	})
	return tok, err
}

// RoomCreate implements native.API.
func (e *Engine) RoomCreate() (*handle.Handle, error) {
	e.mu.Lock()
	ptr := e.alloc()
	e.rooms[ptr] = &simRoom{}
	e.mu.Unlock()

	return handle.New(native.KindRoom, ptr, e.destructor(native.KindRoom)), nil
}

func (e *Engine) withRoom(h *handle.Handle, op string, fn func(ptr uintptr, r *simRoom) error) error {
	return h.Do(func(ptr uintptr) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		r, ok := e.rooms[ptr]
		if !ok {
			return callError(op, CodeUnknownHandle, "unknown room 0x%x", ptr)
		}
		return fn(ptr, r)
	})
}

// RoomConfigureAPM implements native.API.
func (e *Engine) RoomConfigureAPM(room *handle.Handle, cfg native.APMConfig) error {
	return e.withRoom(room, "odin_room_configure_apm", func(_ uintptr, r *simRoom) error {
		r.apm = cfg
		return nil
	})
}

// RoomSetEventCallback implements native.API.
func (e *Engine) RoomSetEventCallback(room *handle.Handle, callback native.EventCallback) error {
	return e.withRoom(room, "odin_room_set_event_callback", func(_ uintptr, r *simRoom) error {
		r.callback = callback
		return nil
	})
}

// RoomJoin implements native.API. A successful join reports the connection
// as connected through the event callback before returning.
func (e *Engine) RoomJoin(room *handle.Handle, gatewayURL, tok string, userData []byte) (uint64, error) {
	const op = "odin_room_join"

	var (
		ownPeerID uint64
		roomPtr   uintptr
	)
	err := e.withRoom(room, op, func(ptr uintptr, r *simRoom) error {
		if e.joinErr != nil {
			err := e.joinErr
			e.joinErr = nil
			return err
		}
		if gatewayURL == "" {
			return callError(op, CodeInvalidArgument, "empty gateway url")
		}
		if e.accessKey != "" {
			if _, err := token.Parse(tok, e.accessKey); err != nil {
				return callError(op, CodeUnauthorized, "%v", err)
			}
		}
		if r.joined {
			return callError(op, CodeInvalidArgument, "room already joined")
		}

		r.gatewayURL = gatewayURL
		r.token = tok
		r.userData = append([]byte(nil), userData...)
		r.joined = true
		r.ownPeerID = e.nextPeerID
		e.nextPeerID++

		ownPeerID = r.ownPeerID
		roomPtr = ptr
		return nil
	})
	if err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Engine.RoomJoin",
		"room":     fmt.Sprintf("0x%x", roomPtr),
		"peer_id":  ownPeerID,
	}).Debug("Simulated room joined")

	e.fire(roomPtr, native.Event{Tag: native.EventConnectionStateChanged, State: native.ConnectionConnected})
	return ownPeerID, nil
}

// RoomUpdateUserData implements native.API.
func (e *Engine) RoomUpdateUserData(room *handle.Handle, userData []byte) error {
	return e.withRoom(room, "odin_room_update_user_data", func(_ uintptr, r *simRoom) error {
		if !r.joined {
			return callError("odin_room_update_user_data", CodeNotJoined, "room not joined")
		}
		r.userData = append([]byte(nil), userData...)
		return nil
	})
}

// RoomSendMessage implements native.API.
func (e *Engine) RoomSendMessage(room *handle.Handle, peerIDs []uint64, data []byte) error {
	return e.withRoom(room, "odin_room_send_message", func(_ uintptr, r *simRoom) error {
		if !r.joined {
			return callError("odin_room_send_message", CodeNotJoined, "room not joined")
		}
		r.sent = append(r.sent, Message{
			PeerIDs: append([]uint64(nil), peerIDs...),
			Data:    append([]byte(nil), data...),
		})
		return nil
	})
}

// RoomAddMedia implements native.API.
func (e *Engine) RoomAddMedia(room, stream *handle.Handle) error {
	const op = "odin_room_add_media"
	return stream.Do(func(streamPtr uintptr) error {
		return e.withRoom(room, op, func(roomPtr uintptr, r *simRoom) error {
			s, ok := e.streams[streamPtr]
			if !ok {
				return callError(op, CodeUnknownHandle, "unknown stream 0x%x", streamPtr)
			}
			if !r.joined {
				return callError(op, CodeNotJoined, "room not joined")
			}
			r.nextMedia++
			s.mediaID = r.nextMedia
			s.peerID = r.ownPeerID
			s.room = roomPtr
			return nil
		})
	})
}

// AudioStreamCreate implements native.API.
func (e *Engine) AudioStreamCreate(cfg native.AudioStreamConfig) (*handle.Handle, error) {
	if cfg.SampleRate == 0 || cfg.Channels == 0 {
		return nil, callError("odin_audio_stream_create", CodeInvalidArgument, "invalid stream config %+v", cfg)
	}
	e.mu.Lock()
	ptr := e.alloc()
	e.streams[ptr] = &simStream{config: cfg}
	e.mu.Unlock()

	return e.MediaStream(ptr), nil
}

// MediaStream implements native.API.
func (e *Engine) MediaStream(ptr uintptr) *handle.Handle {
	return handle.New(native.KindMediaStream, ptr, e.destructor(native.KindMediaStream))
}

func (e *Engine) withStream(h *handle.Handle, op string, fn func(s *simStream) error) error {
	return h.Do(func(ptr uintptr) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		s, ok := e.streams[ptr]
		if !ok {
			return callError(op, CodeUnknownHandle, "unknown stream 0x%x", ptr)
		}
		return fn(s)
	})
}

// MediaStreamMediaID implements native.API.
func (e *Engine) MediaStreamMediaID(stream *handle.Handle) (uint16, error) {
	var id uint16
	err := e.withStream(stream, "odin_media_stream_media_id", func(s *simStream) error {
		id = s.mediaID
		return nil
	})
	return id, err
}

// MediaStreamPeerID implements native.API.
func (e *Engine) MediaStreamPeerID(stream *handle.Handle) (uint64, error) {
	var id uint64
	err := e.withStream(stream, "odin_media_stream_peer_id", func(s *simStream) error {
		id = s.peerID
		return nil
	})
	return id, err
}

// AudioPushData implements native.API.
func (e *Engine) AudioPushData(stream *handle.Handle, samples []float32) error {
	return e.withStream(stream, "odin_audio_push_data", func(s *simStream) error {
		if s.remote {
			return callError("odin_audio_push_data", CodeInvalidArgument, "remote stream is read only")
		}
		s.pushed = append(s.pushed, samples...)
		return nil
	})
}

// AudioDataLen implements native.API.
func (e *Engine) AudioDataLen(stream *handle.Handle) (int, error) {
	var n int
	err := e.withStream(stream, "odin_audio_data_len", func(s *simStream) error {
		n = len(s.queued)
		if s.tone != nil {
			n += s.tone.chunk
		}
		return nil
	})
	return n, err
}

// AudioReadData implements native.API. Queued samples are served first, then
// the tone generator (if any) fills the rest.
func (e *Engine) AudioReadData(stream *handle.Handle, samples []float32) (int, error) {
	var n int
	err := e.withStream(stream, "odin_audio_read_data", func(s *simStream) error {
		n = copy(samples, s.queued)
		s.queued = s.queued[n:]
		if s.tone != nil {
			rate := float64(s.config.SampleRate)
			if rate == 0 {
				rate = config.DefaultSampleRate
			}
			step := 2 * math.Pi * s.tone.freq / rate
			for ; n < len(samples); n++ {
				samples[n] = s.tone.amplitude * float32(math.Sin(s.tone.phase))
				s.tone.phase = math.Mod(s.tone.phase+step, 2*math.Pi)
			}
		}
		return nil
	})
	return n, err
}

// DecodeEvent implements native.API.
func (e *Engine) DecodeEvent(ptr uintptr) (native.Event, error) {
	e.mu.Lock()
	ev, ok := e.events[ptr]
	e.mu.Unlock()
	if !ok {
		return native.Event{}, fmt.Errorf("%w: pointer 0x%x", native.ErrUnknownEvent, ptr)
	}
	ev.Data = append([]byte(nil), ev.Data...)
	return ev, nil
}

// fire invokes the room's callback with an event pointer that is only valid
// for the duration of the call.
func (e *Engine) fire(roomPtr uintptr, ev native.Event) bool {
	e.mu.Lock()
	r, ok := e.rooms[roomPtr]
	if !ok || r.callback == nil {
		e.mu.Unlock()
		return false
	}
	cb := r.callback
	evPtr := e.alloc()
	e.events[evPtr] = ev
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.events, evPtr)
		e.mu.Unlock()
	}()
	cb(roomPtr, evPtr, 0)
	return true
}
