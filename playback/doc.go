// Package playback streams decoded remote audio into a fixed-size circular
// buffer read by an independent render clock.
//
// A Playback owns one Ring. Its flush step runs on a ticker and keeps the
// ring filled Lookahead samples ahead of the render cursor:
//
//	newIndex  = renderCursor + Lookahead
//	requested = (newIndex - writeCursor) mod BufferLength
//
// The requested samples are pulled from the source in reads of at most
// PacketSize samples, each written at (writeCursor + offset) mod
// BufferLength and split at the end of the buffer; the write cursor then
// moves to newIndex mod BufferLength. The render clock only reads and
// advances the render cursor, so writer and reader never share a lock.
//
// Redirection follows Idle -> Redirecting -> Stopped. Enable and Disable only
// record the request; Update applies it, and entering Stopped silences the
// ring and rewinds the write cursor.
//
// UpdatePlayingStatus reports whether the stream currently produces audio
// and fires OnPlayingStatusChanged only when that value flips. A missing,
// muted or already freed source is not an error: flush writes nothing and
// the stream reports not playing.
package playback
