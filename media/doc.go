// Package media wraps native audio streams.
//
// A MicrophoneStream is the local input pushed into a room; a PlaybackStream
// is a remote peer's decoded output. Each direction rejects the other's
// operations with ErrUnsupportedOperation. Muted streams make no native
// calls. Every stream carries its own context: Cancel aborts that stream's
// pending async pushes and reads without touching other streams, and Close
// cancels before releasing the native handle.
package media
