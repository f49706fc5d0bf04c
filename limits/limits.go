// Package limits provides centralized size limits for room names, peer user
// data and room messages, so the registry and the runtime reject oversize
// input before it reaches the native layer.
package limits

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxRoomName is the longest accepted room name in bytes
	MaxRoomName = 128

	// MaxUserData is the largest user data blob attached to a peer
	MaxUserData = 4096

	// MaxMessage is the largest payload accepted by SendMessage
	MaxMessage = 16384

	// MaxMessageRecipients bounds the explicit peer list of one message
	MaxMessageRecipients = 1024

	// MaxProcessingBuffer is the absolute maximum for any payload copied out
	// of a native event (1MB limit)
	MaxProcessingBuffer = 1024 * 1024
)

var (
	// ErrEmpty indicates an empty value where one is required
	ErrEmpty = errors.New("empty value")

	// ErrTooLarge indicates a value exceeds its maximum size
	ErrTooLarge = errors.New("value too large")

	// ErrInvalidName indicates a room name that is not valid UTF-8
	ErrInvalidName = errors.New("invalid room name")
)

// ValidateSize validates data against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateRoomName checks a room name is non-empty UTF-8 within MaxRoomName.
func ValidateRoomName(name string) error {
	if name == "" {
		return fmt.Errorf("room name: %w", ErrEmpty)
	}
	if len(name) > MaxRoomName {
		return fmt.Errorf("%w: room name size %d exceeds limit %d", ErrTooLarge, len(name), MaxRoomName)
	}
	if !utf8.ValidString(name) {
		return ErrInvalidName
	}
	return nil
}

// ValidateUserData checks peer user data. Empty user data is allowed.
func ValidateUserData(data []byte) error {
	if len(data) > MaxUserData {
		return fmt.Errorf("%w: user data size %d exceeds limit %d", ErrTooLarge, len(data), MaxUserData)
	}
	return nil
}

// ValidateMessage checks a room message payload and its recipient list.
// A nil recipient list means broadcast.
func ValidateMessage(data []byte, recipients []uint64) error {
	if len(data) == 0 {
		return fmt.Errorf("message: %w", ErrEmpty)
	}
	if len(data) > MaxMessage {
		return fmt.Errorf("%w: message size %d exceeds limit %d", ErrTooLarge, len(data), MaxMessage)
	}
	if len(recipients) > MaxMessageRecipients {
		return fmt.Errorf("%w: %d recipients exceeds limit %d", ErrTooLarge, len(recipients), MaxMessageRecipients)
	}
	return nil
}

// ValidateProcessingBuffer validates data against the absolute maximum (MaxProcessingBuffer).
// Use it for every payload delivered by the native callback.
func ValidateProcessingBuffer(data []byte) error {
	if len(data) > MaxProcessingBuffer {
		return fmt.Errorf("%w: buffer size %d exceeds limit %d", ErrTooLarge, len(data), MaxProcessingBuffer)
	}
	return nil
}
