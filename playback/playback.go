package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/handle"
)

// State is the redirection state of a Playback.
type State int32

const (
	// StateIdle means redirection never started.
	StateIdle State = iota
	// StateRedirecting means the flush loop copies native audio into the ring.
	StateRedirecting
	// StateStopped means redirection was turned off and the ring silenced.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRedirecting:
		return "redirecting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Source is the pull side of a remote media stream.
type Source interface {
	IsMuted() bool
	DataAvailable() (int, error)
	ReadData(samples []float32) (int, error)
}

// Key identifies a playback by room, peer and media.
type Key struct {
	Room    string
	PeerID  uint64
	MediaID uint16
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%d", k.Room, k.PeerID, k.MediaID)
}

// Config sizes the ring and schedules the flush and status loops.
type Config struct {
	// PacketSize bounds each native read.
	PacketSize int
	// Lookahead is how far ahead of the render cursor the writer fills. It
	// must exceed one render-engine pull.
	Lookahead int
	// BufferLength is the ring length in samples.
	BufferLength int

	FlushDelay    time.Duration
	FlushInterval time.Duration

	// CheckStatus enables the periodic UpdatePlayingStatus poll in Run.
	CheckStatus    bool
	StatusDelay    time.Duration
	StatusInterval time.Duration
}

// Default sizes: 20ms packets at 48 kHz, 80ms lookahead, a 320ms ring.
const (
	DefaultPacketSize     = 960
	DefaultLookahead      = 3840
	DefaultBufferLength   = DefaultLookahead * 4
	DefaultFlushDelay     = 500 * time.Millisecond
	DefaultFlushInterval  = 20 * time.Millisecond
	DefaultStatusInterval = 200 * time.Millisecond
)

// DefaultConfig returns the default sizes with status polling enabled.
func DefaultConfig() Config {
	return Config{
		PacketSize:     DefaultPacketSize,
		Lookahead:      DefaultLookahead,
		BufferLength:   DefaultBufferLength,
		FlushDelay:     DefaultFlushDelay,
		FlushInterval:  DefaultFlushInterval,
		CheckStatus:    true,
		StatusInterval: DefaultStatusInterval,
	}
}

// StatusCallback is called when the playing status flips.
type StatusCallback func(p *Playback, playing bool)

// Playback pulls a remote stream into a ring buffer read by the render clock.
type Playback struct {
	key  Key
	cfg  Config
	ring *Ring

	redirect atomic.Bool
	state    atomic.Int32
	playing  atomic.Bool

	mu       sync.Mutex
	source   Source
	onStatus StatusCallback

	// writer side, guarded by flushMu
	flushMu sync.Mutex
	write   int
	scratch []float32

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle playback for src. Redirection is requested but only
// takes effect on the next Update.
func New(key Key, src Source, cfg Config) *Playback {
	if cfg.PacketSize <= 0 {
		cfg.PacketSize = DefaultPacketSize
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.BufferLength <= 0 {
		cfg.BufferLength = cfg.Lookahead * 4
	}
	p := &Playback{
		key:     key,
		cfg:     cfg,
		ring:    NewRing(cfg.BufferLength),
		source:  src,
		scratch: make([]float32, cfg.PacketSize),
	}
	p.redirect.Store(true)
	return p
}

// Key returns the playback's identity.
func (p *Playback) Key() Key {
	return p.key
}

// Ring exposes the circular buffer to the render clock.
func (p *Playback) Ring() *Ring {
	return p.ring
}

// State returns the current redirection state.
func (p *Playback) State() State {
	return State(p.state.Load())
}

// Source returns the current source, or nil.
func (p *Playback) Source() Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// SetSource replaces the source. A nil source turns flush into a no-op.
func (p *Playback) SetSource(src Source) {
	p.mu.Lock()
	p.source = src
	p.mu.Unlock()
}

// OnPlayingStatusChanged sets the edge-triggered status callback.
func (p *Playback) OnPlayingStatusChanged(fn StatusCallback) {
	p.mu.Lock()
	p.onStatus = fn
	p.mu.Unlock()
}

// Enable requests redirection.
func (p *Playback) Enable() {
	p.redirect.Store(true)
}

// Disable requests that redirection stop.
func (p *Playback) Disable() {
	p.redirect.Store(false)
}

// Update applies a pending Enable or Disable. Entering StateStopped silences
// the ring and resets the write cursor.
func (p *Playback) Update() State {
	want := p.redirect.Load()
	cur := p.State()

	switch {
	case want && cur != StateRedirecting:
		p.state.Store(int32(StateRedirecting))
	case !want && cur == StateRedirecting:
		p.flushMu.Lock()
		p.state.Store(int32(StateStopped))
		p.ring.Clear()
		p.write = 0
		p.flushMu.Unlock()
	}
	return p.State()
}

// WriteCursor returns the ring index the next flush writes at.
func (p *Playback) WriteCursor() int {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	return p.write
}

// Flush tops the ring up to Lookahead samples ahead of the render cursor,
// pulling at most PacketSize samples per native read. It returns the number
// of samples written. A missing, muted or torn-down source writes nothing,
// and a closed or canceled source is not reported as a failure.
func (p *Playback) Flush() int {
	if p.State() != StateRedirecting {
		return 0
	}
	src := p.Source()
	if src == nil || src.IsMuted() {
		return 0
	}

	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	length := p.ring.Len()
	newIndex := p.ring.Cursor() + p.cfg.Lookahead
	requested := requestedSamples(newIndex, p.write, length)

	written := 0
	for written < requested {
		n := min(p.cfg.PacketSize, requested-written)
		buf := p.scratch[:n]
		clear(buf)
		if _, err := src.ReadData(buf); err != nil {
			if !errors.Is(err, handle.ErrDisposed) && !errors.Is(err, context.Canceled) {
				logrus.WithFields(logrus.Fields{
					"function": "Playback.Flush",
					"playback": p.key.String(),
					"error":    err.Error(),
				}).Warn("Failed to read playback data")
			}
			return written
		}
		p.ring.WriteAt(buf, p.write+written)
		written += n
	}

	p.write = newIndex % length
	return written
}

// requestedSamples is newIndex - write normalized into [0, length).
func requestedSamples(newIndex, write, length int) int {
	return ((newIndex-write)%length + length) % length
}

// IsPlaying returns the last observed playing status.
func (p *Playback) IsPlaying() bool {
	return p.playing.Load()
}

// UpdatePlayingStatus polls whether the stream currently produces audio: it
// has an unmuted source, is redirecting and the source reports buffered
// samples. The status callback fires only when the value changes.
func (p *Playback) UpdatePlayingStatus() bool {
	playing := false
	if src := p.Source(); src != nil && !src.IsMuted() && p.State() == StateRedirecting {
		n, err := src.DataAvailable()
		playing = err == nil && n > 0
	}

	if p.playing.Swap(playing) != playing {
		p.mu.Lock()
		fn := p.onStatus
		p.mu.Unlock()
		if fn != nil {
			fn(p, playing)
		}
	}
	return playing
}

// ReadAudio is the render clock's pull: it fills dst from the ring and
// returns the number of samples written. Outside StateRedirecting it writes
// silence and returns 0.
func (p *Playback) ReadAudio(dst []float32) int {
	if p.State() != StateRedirecting {
		clear(dst)
		return 0
	}
	return p.ring.Read(dst)
}

// DataAvailable reports the source's buffered sample count, or 0 without a
// usable source.
func (p *Playback) DataAvailable() int {
	src := p.Source()
	if src == nil || src.IsMuted() {
		return 0
	}
	n, err := src.DataAvailable()
	if err != nil {
		return 0
	}
	return n
}

// Run drives the playback until ctx is done: the flush starts after
// FlushDelay and repeats every FlushInterval, and when CheckStatus is set the
// playing status is polled every StatusInterval after StatusDelay.
func (p *Playback) Run(ctx context.Context) {
	p.Update()

	flushDelay := time.NewTimer(p.cfg.FlushDelay)
	defer flushDelay.Stop()
	var flushTick <-chan time.Time

	var statusDelay <-chan time.Time
	var statusTick <-chan time.Time
	if p.cfg.CheckStatus {
		t := time.NewTimer(p.cfg.StatusDelay)
		defer t.Stop()
		statusDelay = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushDelay.C:
			ticker := time.NewTicker(p.cfg.FlushInterval)
			defer ticker.Stop()
			flushTick = ticker.C
		case <-flushTick:
			p.Update()
			p.Flush()
		case <-statusDelay:
			ticker := time.NewTicker(p.cfg.StatusInterval)
			defer ticker.Stop()
			statusTick = ticker.C
			statusDelay = nil
			p.UpdatePlayingStatus()
		case <-statusTick:
			p.UpdatePlayingStatus()
		}
	}
}

// Start runs the playback on its own goroutine. Calling it while running
// has no effect.
func (p *Playback) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}
	p.Enable()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
}

// Stop disables redirection, waits for the loop to exit and silences the
// ring. It is idempotent.
func (p *Playback) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()

	p.Disable()
	if cancel != nil {
		cancel()
		<-done
	}
	p.Update()
	if p.playing.Load() {
		p.UpdatePlayingStatus()
	}
}
