// Package render mixes playback rings into a device buffer.
//
// The Mixer is the render clock's only entry point: the audio device calls
// Mix from its own thread once per buffer, and each registered Reader (a
// playback ring) advances its read cursor by exactly one buffer. Readers
// may be added or removed from any goroutine while the device is running.
package render
