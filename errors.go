package odinbridge

import (
	"errors"

	"github.com/opd-ai/odinbridge/config"
	"github.com/opd-ai/odinbridge/events"
	"github.com/opd-ai/odinbridge/handle"
	"github.com/opd-ai/odinbridge/limits"
	"github.com/opd-ai/odinbridge/media"
	"github.com/opd-ai/odinbridge/native"
	"github.com/opd-ai/odinbridge/room"
)

// Error taxonomy. Every error returned by this module matches one of these
// with errors.Is.
var (
	ErrDisposed             = handle.ErrDisposed
	ErrDuplicateKey         = room.ErrDuplicateKey
	ErrNotFound             = room.ErrNotFound
	ErrNotJoined            = room.ErrNotJoined
	ErrRoomClosed           = room.ErrClosed
	ErrNativeCallFailed     = native.ErrNativeCallFailed
	ErrUnsupportedOperation = media.ErrUnsupportedOperation
	ErrMalformedEvent       = events.ErrMalformedEvent
	ErrEmpty                = limits.ErrEmpty
	ErrTooLarge             = limits.ErrTooLarge
	ErrInvalidAccessKey     = config.ErrInvalidAccessKey
	ErrInvalidConfig        = config.ErrInvalidConfig
)

// Runtime errors.
var (
	// ErrNotStarted is returned by runtime operations before Start.
	ErrNotStarted = errors.New("runtime not started")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("runtime closed")
)
