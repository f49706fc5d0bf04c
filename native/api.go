package native

import "github.com/opd-ai/odinbridge/handle"

// Handle kinds used for logging and error context.
const (
	KindLibrary        = "library"
	KindRoom           = "room"
	KindMediaStream    = "media_stream"
	KindTokenGenerator = "token_generator"
)

// API is the surface of the native voice engine the runtime depends on.
//
// Implementations must acquire every *handle.Handle argument for the whole
// duration of the underlying call, so a handle closed concurrently is either
// rejected with handle.ErrDisposed or destroyed after the call returns.
// Constructors return owning handles whose destructor is the matching native
// destroy function.
type API interface {
	// Startup starts the engine's worker threads.
	Startup() error
	// Shutdown stops the worker threads started by Startup.
	Shutdown()

	GenerateAccessKey() (string, error)

	TokenGeneratorCreate(accessKey string) (*handle.Handle, error)
	TokenGeneratorCreateToken(generator *handle.Handle, roomID, userID string) (string, error)

	RoomCreate() (*handle.Handle, error)
	RoomConfigureAPM(room *handle.Handle, config APMConfig) error
	RoomSetEventCallback(room *handle.Handle, callback EventCallback) error
	// RoomJoin blocks on network I/O and returns the local peer id.
	RoomJoin(room *handle.Handle, gatewayURL, token string, userData []byte) (uint64, error)
	RoomUpdateUserData(room *handle.Handle, userData []byte) error
	RoomSendMessage(room *handle.Handle, peerIDs []uint64, data []byte) error
	RoomAddMedia(room, stream *handle.Handle) error

	AudioStreamCreate(config AudioStreamConfig) (*handle.Handle, error)
	// MediaStream wraps a stream pointer delivered by a MediaAdded event.
	MediaStream(ptr uintptr) *handle.Handle
	MediaStreamMediaID(stream *handle.Handle) (uint16, error)
	MediaStreamPeerID(stream *handle.Handle) (uint64, error)

	AudioPushData(stream *handle.Handle, samples []float32) error
	AudioDataLen(stream *handle.Handle) (int, error)
	AudioReadData(stream *handle.Handle, samples []float32) (int, error)

	// DecodeEvent copies the event behind ptr into Go memory. It is only
	// valid inside the EventCallback that received ptr.
	DecodeEvent(ptr uintptr) (Event, error)
}
