//go:build darwin || linux

package native

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/handle"
)

// Buffer sizes for string-returning calls.
const (
	accessKeyBufferSize = 128
	tokenBufferSize     = 512
	errorBufferSize     = 1024
)

// channel layout passed to odin_audio_read_data
const channelLayoutMono int32 = 0

// symbols holds the bound library functions.
type symbols struct {
	startup                   func()
	shutdown                  func()
	accessKeyGenerate         func(buf unsafe.Pointer, size uintptr) int32
	tokenGeneratorCreate      func(accessKey string) uintptr
	tokenGeneratorDestroy     func(generator uintptr)
	tokenGeneratorCreateToken func(generator uintptr, roomID, userID string, buf unsafe.Pointer, size uintptr) int32
	roomCreate                func() uintptr
	roomDestroy               func(room uintptr)
	roomConfigureAPM          func(room uintptr, lo, hi uint64) int32
	roomSetEventCallback      func(room uintptr, callback uintptr) int32
	roomJoin                  func(room uintptr, gatewayURL, token string, userData unsafe.Pointer, userDataLen uint64, ownPeerID unsafe.Pointer) int32
	roomUpdateUserData        func(room uintptr, userData unsafe.Pointer, userDataLen uint64) int32
	roomSendMessage           func(room uintptr, peerIDs unsafe.Pointer, peerIDsLen uint64, data unsafe.Pointer, dataLen uint64) int32
	roomAddMedia              func(room, stream uintptr) int32
	audioStreamCreate         func(config uint64) uintptr
	mediaStreamDestroy        func(stream uintptr) int32
	mediaStreamMediaID        func(stream uintptr, out unsafe.Pointer) int32
	mediaStreamPeerID         func(stream uintptr, out unsafe.Pointer) int32
	audioPushData             func(stream uintptr, buf unsafe.Pointer, size uintptr) int32
	audioDataLen              func(stream uintptr) int32
	audioReadData             func(stream uintptr, buf unsafe.Pointer, size uintptr, layout int32) int32
	errorFormat               func(code int32, buf unsafe.Pointer, size uintptr) uint32
}

// Library is the API backed by the ODIN shared library loaded with purego.
//
// The library itself is held in a handle: every call acquires it, so Close
// unloads the library only after in-flight calls have returned.
type Library struct {
	lib  *handle.Handle
	path string
	fn   symbols

	trampolineOnce sync.Once
	trampoline     uintptr
	callback       atomic.Pointer[EventCallback]
}

// DefaultLibraryName returns the platform file name of the shared library.
func DefaultLibraryName() string {
	if runtime.GOOS == "darwin" {
		return "libodin.dylib"
	}
	return "libodin.so"
}

// Open loads the native library and returns it as an API.
func Open(path string) (API, error) {
	return Load(path)
}

// Load opens the shared library at path (or the platform default name) and
// binds every symbol the runtime uses.
func Load(path string) (*Library, error) {
	if path == "" {
		path = DefaultLibraryName()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"path":     path,
	}).Info("Loading native voice library")

	dl, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("%w: dlopen %s: %v", ErrLibraryUnavailable, path, err)
	}

	l := &Library{path: path}
	if err := l.bind(dl); err != nil {
		_ = purego.Dlclose(dl)
		return nil, err
	}
	l.lib = handle.New(KindLibrary, dl, func(ptr uintptr) {
		if err := purego.Dlclose(ptr); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Library.Close",
				"path":     path,
				"error":    err.Error(),
			}).Warn("dlclose failed")
		}
	})

	return l, nil
}

func (l *Library) bind(dl uintptr) error {
	bindings := []struct {
		fptr any
		name string
	}{
		{&l.fn.startup, "odin_startup"},
		{&l.fn.shutdown, "odin_shutdown"},
		{&l.fn.accessKeyGenerate, "odin_access_key_generate"},
		{&l.fn.tokenGeneratorCreate, "odin_token_generator_create"},
		{&l.fn.tokenGeneratorDestroy, "odin_token_generator_destroy"},
		{&l.fn.tokenGeneratorCreateToken, "odin_token_generator_create_token"},
		{&l.fn.roomCreate, "odin_room_create"},
		{&l.fn.roomDestroy, "odin_room_destroy"},
		{&l.fn.roomConfigureAPM, "odin_room_configure_apm"},
		{&l.fn.roomSetEventCallback, "odin_room_set_event_callback"},
		{&l.fn.roomJoin, "odin_room_join"},
		{&l.fn.roomUpdateUserData, "odin_room_update_user_data"},
		{&l.fn.roomSendMessage, "odin_room_send_message"},
		{&l.fn.roomAddMedia, "odin_room_add_media"},
		{&l.fn.audioStreamCreate, "odin_audio_stream_create"},
		{&l.fn.mediaStreamDestroy, "odin_media_stream_destroy"},
		{&l.fn.mediaStreamMediaID, "odin_media_stream_media_id"},
		{&l.fn.mediaStreamPeerID, "odin_media_stream_peer_id"},
		{&l.fn.audioPushData, "odin_audio_push_data"},
		{&l.fn.audioDataLen, "odin_audio_data_len"},
		{&l.fn.audioReadData, "odin_audio_read_data"},
		{&l.fn.errorFormat, "odin_error_format"},
	}

	for _, b := range bindings {
		sym, err := purego.Dlsym(dl, b.name)
		if err != nil {
			return fmt.Errorf("%w: missing symbol %s: %v", ErrLibraryUnavailable, b.name, err)
		}
		purego.RegisterFunc(b.fptr, sym)
	}
	return nil
}

// Close unloads the library once in-flight calls have returned.
func (l *Library) Close() error {
	return l.lib.Close()
}

// call runs fn while holding the library reference.
func (l *Library) call(fn func() error) error {
	g, err := l.lib.Acquire()
	if err != nil {
		return err
	}
	defer g.Release()
	return fn()
}

func (l *Library) check(op string, code int32) error {
	if !IsError(code) {
		return nil
	}
	return &CallError{Op: op, Code: code, Message: l.errorMessage(code)}
}

func (l *Library) errorMessage(code int32) string {
	buf := make([]byte, errorBufferSize)
	n := l.fn.errorFormat(code, unsafe.Pointer(&buf[0]), uintptr(len(buf)))
	if int(n) > len(buf) {
		n = uint32(len(buf))
	}
	return string(bytes.TrimRight(buf[:n], "\x00"))
}

// Startup implements API.
func (l *Library) Startup() error {
	return l.call(func() error {
		l.fn.startup()
		return nil
	})
}

// Shutdown implements API.
func (l *Library) Shutdown() {
	_ = l.call(func() error {
		l.fn.shutdown()
		return nil
	})
}

// GenerateAccessKey implements API.
func (l *Library) GenerateAccessKey() (string, error) {
	var key string
	err := l.call(func() error {
		buf := make([]byte, accessKeyBufferSize)
		n := l.fn.accessKeyGenerate(unsafe.Pointer(&buf[0]), uintptr(len(buf)))
		if err := l.check("odin_access_key_generate", n); err != nil {
			return err
		}
		key = string(buf[:clampLen(n, len(buf))])
		return nil
	})
	return key, err
}

// TokenGeneratorCreate implements API.
func (l *Library) TokenGeneratorCreate(accessKey string) (*handle.Handle, error) {
	var h *handle.Handle
	err := l.call(func() error {
		ptr := l.fn.tokenGeneratorCreate(accessKey)
		if ptr == 0 {
			return fmt.Errorf("odin_token_generator_create: %w", ErrNullPointer)
		}
		h = handle.New(KindTokenGenerator, ptr, l.destroyTokenGenerator)
		return nil
	})
	return h, err
}

func (l *Library) destroyTokenGenerator(ptr uintptr) {
	_ = l.call(func() error {
		l.fn.tokenGeneratorDestroy(ptr)
		return nil
	})
}

// TokenGeneratorCreateToken implements API.
func (l *Library) TokenGeneratorCreateToken(generator *handle.Handle, roomID, userID string) (string, error) {
	var token string
	err := l.call(func() error {
		return generator.Do(func(ptr uintptr) error {
			buf := make([]byte, tokenBufferSize)
			n := l.fn.tokenGeneratorCreateToken(ptr, roomID, userID, unsafe.Pointer(&buf[0]), uintptr(len(buf)))
			if err := l.check("odin_token_generator_create_token", n); err != nil {
				return err
			}
			token = string(buf[:clampLen(n, len(buf))])
			return nil
		})
	})
	return token, err
}

// RoomCreate implements API.
func (l *Library) RoomCreate() (*handle.Handle, error) {
	var h *handle.Handle
	err := l.call(func() error {
		ptr := l.fn.roomCreate()
		if ptr == 0 {
			return fmt.Errorf("odin_room_create: %w", ErrNullPointer)
		}
		h = handle.New(KindRoom, ptr, l.destroyRoom)
		return nil
	})
	return h, err
}

func (l *Library) destroyRoom(ptr uintptr) {
	_ = l.call(func() error {
		l.fn.roomDestroy(ptr)
		return nil
	})
}

// RoomConfigureAPM implements API.
func (l *Library) RoomConfigureAPM(room *handle.Handle, config APMConfig) error {
	lo, hi := config.words()
	return l.call(func() error {
		return room.Do(func(ptr uintptr) error {
			return l.check("odin_room_configure_apm", l.fn.roomConfigureAPM(ptr, lo, hi))
		})
	})
}

// RoomSetEventCallback implements API. The library exposes one process-wide
// trampoline; the most recently registered callback receives every event.
func (l *Library) RoomSetEventCallback(room *handle.Handle, callback EventCallback) error {
	l.callback.Store(&callback)
	l.trampolineOnce.Do(func() {
		l.trampoline = purego.NewCallback(func(roomPtr, eventPtr, userData uintptr) uintptr {
			if cb := l.callback.Load(); cb != nil && *cb != nil {
				(*cb)(roomPtr, eventPtr, userData)
			}
			return 0
		})
	})
	return l.call(func() error {
		return room.Do(func(ptr uintptr) error {
			return l.check("odin_room_set_event_callback", l.fn.roomSetEventCallback(ptr, l.trampoline))
		})
	})
}

// RoomJoin implements API.
func (l *Library) RoomJoin(room *handle.Handle, gatewayURL, token string, userData []byte) (uint64, error) {
	var ownPeerID uint64
	err := l.call(func() error {
		return room.Do(func(ptr uintptr) error {
			data, n := bytesArg(userData)
			code := l.fn.roomJoin(ptr, gatewayURL, token, data, uint64(n), unsafe.Pointer(&ownPeerID))
			runtime.KeepAlive(userData)
			return l.check("odin_room_join", code)
		})
	})
	return ownPeerID, err
}

// RoomUpdateUserData implements API.
func (l *Library) RoomUpdateUserData(room *handle.Handle, userData []byte) error {
	return l.call(func() error {
		return room.Do(func(ptr uintptr) error {
			data, n := bytesArg(userData)
			code := l.fn.roomUpdateUserData(ptr, data, uint64(n))
			runtime.KeepAlive(userData)
			return l.check("odin_room_update_user_data", code)
		})
	})
}

// RoomSendMessage implements API. A nil peer list broadcasts to the room.
func (l *Library) RoomSendMessage(room *handle.Handle, peerIDs []uint64, data []byte) error {
	return l.call(func() error {
		return room.Do(func(ptr uintptr) error {
			var ids unsafe.Pointer
			if len(peerIDs) > 0 {
				ids = unsafe.Pointer(&peerIDs[0])
			}
			payload, n := bytesArg(data)
			code := l.fn.roomSendMessage(ptr, ids, uint64(len(peerIDs)), payload, uint64(n))
			runtime.KeepAlive(peerIDs)
			runtime.KeepAlive(data)
			return l.check("odin_room_send_message", code)
		})
	})
}

// RoomAddMedia implements API.
func (l *Library) RoomAddMedia(room, stream *handle.Handle) error {
	return l.call(func() error {
		return room.Do(func(roomPtr uintptr) error {
			return stream.Do(func(streamPtr uintptr) error {
				return l.check("odin_room_add_media", l.fn.roomAddMedia(roomPtr, streamPtr))
			})
		})
	})
}

// AudioStreamCreate implements API.
func (l *Library) AudioStreamCreate(config AudioStreamConfig) (*handle.Handle, error) {
	var h *handle.Handle
	err := l.call(func() error {
		ptr := l.fn.audioStreamCreate(config.word())
		if ptr == 0 {
			return fmt.Errorf("odin_audio_stream_create: %w", ErrNullPointer)
		}
		h = l.MediaStream(ptr)
		return nil
	})
	return h, err
}

// MediaStream implements API.
func (l *Library) MediaStream(ptr uintptr) *handle.Handle {
	return handle.New(KindMediaStream, ptr, l.destroyMediaStream)
}

func (l *Library) destroyMediaStream(ptr uintptr) {
	_ = l.call(func() error {
		if code := l.fn.mediaStreamDestroy(ptr); IsError(code) {
			logrus.WithFields(logrus.Fields{
				"function": "Library.destroyMediaStream",
				"error":    l.errorMessage(code),
			}).Warn("Media stream destroy reported an error")
		}
		return nil
	})
}

// MediaStreamMediaID implements API.
func (l *Library) MediaStreamMediaID(stream *handle.Handle) (uint16, error) {
	var id uint16
	err := l.call(func() error {
		return stream.Do(func(ptr uintptr) error {
			return l.check("odin_media_stream_media_id", l.fn.mediaStreamMediaID(ptr, unsafe.Pointer(&id)))
		})
	})
	return id, err
}

// MediaStreamPeerID implements API.
func (l *Library) MediaStreamPeerID(stream *handle.Handle) (uint64, error) {
	var id uint64
	err := l.call(func() error {
		return stream.Do(func(ptr uintptr) error {
			return l.check("odin_media_stream_peer_id", l.fn.mediaStreamPeerID(ptr, unsafe.Pointer(&id)))
		})
	})
	return id, err
}

// AudioPushData implements API.
func (l *Library) AudioPushData(stream *handle.Handle, samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	return l.call(func() error {
		return stream.Do(func(ptr uintptr) error {
			code := l.fn.audioPushData(ptr, unsafe.Pointer(&samples[0]), uintptr(len(samples)))
			runtime.KeepAlive(samples)
			return l.check("odin_audio_push_data", code)
		})
	})
}

// AudioDataLen implements API.
func (l *Library) AudioDataLen(stream *handle.Handle) (int, error) {
	var n int
	err := l.call(func() error {
		return stream.Do(func(ptr uintptr) error {
			code := l.fn.audioDataLen(ptr)
			if err := l.check("odin_audio_data_len", code); err != nil {
				return err
			}
			n = int(code)
			return nil
		})
	})
	return n, err
}

// AudioReadData implements API.
func (l *Library) AudioReadData(stream *handle.Handle, samples []float32) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	var n int
	err := l.call(func() error {
		return stream.Do(func(ptr uintptr) error {
			code := l.fn.audioReadData(ptr, unsafe.Pointer(&samples[0]), uintptr(len(samples)), channelLayoutMono)
			runtime.KeepAlive(samples)
			if err := l.check("odin_audio_read_data", code); err != nil {
				return err
			}
			n = int(code)
			return nil
		})
	})
	return n, err
}

// Native event layout: a uint32 tag followed by a union at offset 8.
//
//	ConnectionStateChanged  { uint32 state }
//	PeerJoined              { uint64 peer_id; const uint8_t *user_data; size_t len }
//	PeerLeft                { uint64 peer_id }
//	PeerUserDataChanged     { uint64 peer_id; const uint8_t *user_data; size_t len }
//	MediaAdded              { uint64 peer_id; OdinMediaStream *stream; uint16 media_id }
//	MediaRemoved            { uint64 peer_id; uint16 media_id }
//	MessageReceived         { uint64 peer_id; const uint8_t *data; size_t len }
const (
	eventUnionOffset = 8
	eventWord        = 8
)

// DecodeEvent implements API.
func (l *Library) DecodeEvent(ptr uintptr) (Event, error) {
	if ptr == 0 {
		return Event{}, fmt.Errorf("%w: null event pointer", ErrUnknownEvent)
	}
	base := unsafe.Pointer(ptr)
	field := func(off uintptr) unsafe.Pointer {
		return unsafe.Add(base, eventUnionOffset+off)
	}

	ev := Event{Tag: EventTag(*(*uint32)(base))}
	switch ev.Tag {
	case EventConnectionStateChanged:
		ev.State = ConnectionState(*(*uint32)(field(0)))
	case EventPeerJoined, EventPeerUserDataChanged, EventMessageReceived:
		ev.PeerID = *(*uint64)(field(0))
		ev.Data = copyBytes(*(*unsafe.Pointer)(field(eventWord)), *(*uintptr)(field(2 * eventWord)))
	case EventPeerLeft:
		ev.PeerID = *(*uint64)(field(0))
	case EventMediaAdded:
		ev.PeerID = *(*uint64)(field(0))
		ev.Stream = *(*uintptr)(field(eventWord))
		ev.MediaID = *(*uint16)(field(2 * eventWord))
	case EventMediaRemoved:
		ev.PeerID = *(*uint64)(field(0))
		ev.MediaID = *(*uint16)(field(eventWord))
	default:
		return ev, fmt.Errorf("%w: tag %d", ErrUnknownEvent, uint32(ev.Tag))
	}
	return ev, nil
}

func copyBytes(p unsafe.Pointer, n uintptr) []byte {
	if p == nil || n == 0 {
		return nil
	}
	return bytes.Clone(unsafe.Slice((*byte)(p), n))
}

func bytesArg(b []byte) (unsafe.Pointer, int) {
	if len(b) == 0 {
		return nil, 0
	}
	return unsafe.Pointer(&b[0]), len(b)
}

func clampLen(n int32, max int) int {
	if n < 0 {
		return 0
	}
	if int(n) > max {
		return max
	}
	return int(n)
}
