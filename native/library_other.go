//go:build !darwin && !linux

package native

import (
	"fmt"
	"runtime"
)

// DefaultLibraryName returns the platform file name of the shared library.
func DefaultLibraryName() string {
	return "odin.dll"
}

// Open reports that the purego binding is not available on this platform.
// Use the sim engine instead.
func Open(path string) (API, error) {
	return nil, fmt.Errorf("%w: unsupported platform %s/%s", ErrLibraryUnavailable, runtime.GOOS, runtime.GOARCH)
}
