package native

import (
	"errors"
	"fmt"
)

// Sentinel errors for native operations.
var (
	// ErrNativeCallFailed indicates the native layer returned an error code.
	ErrNativeCallFailed = errors.New("native call failed")

	// ErrLibraryUnavailable indicates the shared library could not be loaded
	// on this platform or path.
	ErrLibraryUnavailable = errors.New("native library unavailable")

	// ErrNullPointer indicates a native constructor returned a null pointer.
	ErrNullPointer = errors.New("native call returned null pointer")

	// ErrUnknownEvent indicates an event pointer could not be decoded.
	ErrUnknownEvent = errors.New("unknown native event")
)

// CallError carries the error code of a failed native call together with the
// message produced by the library's error formatter.
type CallError struct {
	Op      string
	Code    int32
	Message string
}

func (e *CallError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: native error 0x%08x", e.Op, uint32(e.Code))
	}
	return fmt.Sprintf("%s: %s (0x%08x)", e.Op, e.Message, uint32(e.Code))
}

// Is makes every CallError match ErrNativeCallFailed.
func (e *CallError) Is(target error) bool {
	return target == ErrNativeCallFailed
}

// IsError reports whether a native return code is in the error range.
// The library reserves the top three bits of a return code for errors.
func IsError(code int32) bool {
	return uint32(code)>>29 > 0
}
