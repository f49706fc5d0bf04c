package room

import "errors"

// Registry errors.
var (
	// ErrDuplicateKey indicates an entity with the same key is already registered.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound indicates no entity is registered under the key.
	ErrNotFound = errors.New("not found")

	// ErrNotJoined indicates an operation that needs a joined room.
	ErrNotJoined = errors.New("room not joined")

	// ErrClosed indicates a room that was already released.
	ErrClosed = errors.New("room closed")
)
