package media

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/handle"
	"github.com/opd-ai/odinbridge/native"
)

// Config is the sample format of a stream.
type Config struct {
	SampleRate uint32
	Channels   uint8
}

// DefaultConfig is 48 kHz mono.
func DefaultConfig() Config {
	return Config{SampleRate: 48000, Channels: 1}
}

func (c Config) native() native.AudioStreamConfig {
	return native.AudioStreamConfig{SampleRate: c.SampleRate, Channels: c.Channels}
}

// ReadResult is delivered by ReadDataAsync.
type ReadResult struct {
	N   int
	Err error
}

// Media is a native audio stream owned by a peer.
type Media interface {
	ID() uint16
	PeerID() uint64
	Config() Config
	Handle() *handle.Handle

	IsMuted() bool
	SetMute(muted bool)
	ToggleMute() bool

	PushData(samples []float32) error
	PushDataAsync(ctx context.Context, samples []float32) <-chan error
	ReadData(samples []float32) (int, error)
	ReadDataAsync(ctx context.Context, samples []float32) <-chan ReadResult
	DataAvailable() (int, error)

	// Context is canceled by Cancel or Close.
	Context() context.Context
	Cancel()
	Close() error
}

// stream holds what both stream directions share.
type stream struct {
	api    native.API
	h      *handle.Handle
	cfg    Config
	id     atomic.Uint32
	peerID atomic.Uint64
	muted  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *stream) init(api native.API, h *handle.Handle, cfg Config) {
	s.api = api
	s.h = h
	s.cfg = cfg
	s.ctx, s.cancel = context.WithCancel(context.Background())
}

func (s *stream) ID() uint16 {
	return uint16(s.id.Load())
}

func (s *stream) PeerID() uint64 {
	return s.peerID.Load()
}

func (s *stream) Config() Config {
	return s.cfg
}

func (s *stream) Handle() *handle.Handle {
	return s.h
}

func (s *stream) IsMuted() bool {
	return s.muted.Load()
}

func (s *stream) SetMute(muted bool) {
	s.muted.Store(muted)
}

// ToggleMute flips the mute flag and returns the new value.
func (s *stream) ToggleMute() bool {
	for {
		old := s.muted.Load()
		if s.muted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (s *stream) Context() context.Context {
	return s.ctx
}

func (s *stream) Cancel() {
	s.cancel()
}

// Close cancels pending async work and releases the native stream.
func (s *stream) Close() error {
	s.cancel()
	return s.h.Close()
}

// merge returns a context canceled when either ctx or the stream is.
func (s *stream) merge(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

func unsupported(kind, op string) error {
	logrus.WithFields(logrus.Fields{
		"function": op,
		"stream":   kind,
	}).Warn("Unsupported media operation")
	return fmt.Errorf("%s %s: %w", kind, op, ErrUnsupportedOperation)
}
