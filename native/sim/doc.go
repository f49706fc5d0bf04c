// Package sim provides an in-memory implementation of native.API.
//
// Engine hands out fake pointers, keeps rooms and streams in maps and records
// every destroy call, which makes teardown order observable. Remote activity
// (peers, media, messages, decoded audio) is scripted with the Inject*,
// QueueAudio and SetTone methods. Inject calls run the registered event
// callback synchronously on the calling goroutine, standing in for the
// engine's worker thread.
package sim
