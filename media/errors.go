package media

import "errors"

var (
	// ErrUnsupportedOperation indicates a write to a playback stream or a
	// read from a microphone stream.
	ErrUnsupportedOperation = errors.New("unsupported media operation")

	// ErrNotAttached indicates a microphone that was not added to a room.
	ErrNotAttached = errors.New("media stream not attached to a room")
)
