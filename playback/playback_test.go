package playback

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/odinbridge/handle"
	"github.com/opd-ai/odinbridge/media"
	"github.com/opd-ai/odinbridge/native/sim"
)

// countingSource hands out 1, 2, 3, ... so ring contents reveal which pull
// wrote where.
type countingSource struct {
	mu        sync.Mutex
	muted     bool
	next      float32
	reads     []int
	available []int
	err       error
}

func (s *countingSource) IsMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *countingSource) DataAvailable() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.available) == 0 {
		return 0, s.err
	}
	n := s.available[0]
	if len(s.available) > 1 {
		s.available = s.available[1:]
	}
	return n, s.err
}

func (s *countingSource) ReadData(buf []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.reads = append(s.reads, len(buf))
	for i := range buf {
		s.next++
		buf[i] = s.next
	}
	return len(buf), nil
}

func (s *countingSource) readSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.reads...)
}

func redirecting(t *testing.T, src Source, cfg Config) *Playback {
	t.Helper()
	p := New(Key{Room: "lobby", PeerID: 42, MediaID: 7}, src, cfg)
	require.Equal(t, StateRedirecting, p.Update())
	return p
}

func TestFlushScenarioFromIdleWriteCursor(t *testing.T) {
	src := &countingSource{}
	p := redirecting(t, src, Config{PacketSize: 960, Lookahead: 3840, BufferLength: 3840})
	p.Ring().SetCursor(3000)

	written := p.Flush()

	assert.Equal(t, 3000, written)
	assert.Equal(t, []int{960, 960, 960, 120}, src.readSizes())
	assert.Equal(t, 3000, p.WriteCursor(), "write cursor is newIndex mod length")
	for i := 0; i < 3000; i++ {
		require.Equal(t, float32(i+1), p.Ring().At(i), "index %d", i)
	}
	assert.Equal(t, float32(0), p.Ring().At(3000))
}

func TestFlushSplitsWriteAtBufferEnd(t *testing.T) {
	src := &countingSource{}
	p := redirecting(t, src, Config{PacketSize: 960, Lookahead: 1000, BufferLength: 3840})
	p.write = 3500
	p.Ring().SetCursor(3000)

	written := p.Flush()

	assert.Equal(t, 500, written)
	assert.Equal(t, []int{500}, src.readSizes())
	assert.Equal(t, float32(1), p.Ring().At(3500))
	assert.Equal(t, float32(340), p.Ring().At(3839))
	assert.Equal(t, float32(341), p.Ring().At(0), "write continues at index zero")
	assert.Equal(t, float32(500), p.Ring().At(159))
	assert.Equal(t, float32(0), p.Ring().At(160))
	assert.Equal(t, 160, p.WriteCursor())
}

func TestFlushCoversRequestedExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const sentinel = float32(-1)

	for round := 0; round < 100; round++ {
		length := 960 * (1 + rng.Intn(8))
		packet := 1 + rng.Intn(1200)
		lookahead := 1 + rng.Intn(length)
		write := rng.Intn(length)
		cursor := rng.Intn(length)

		name := fmt.Sprintf("L=%d packet=%d lookahead=%d write=%d cursor=%d", length, packet, lookahead, write, cursor)
		src := &countingSource{}
		p := redirecting(t, src, Config{PacketSize: packet, Lookahead: lookahead, BufferLength: length})

		fill := make([]float32, length)
		for i := range fill {
			fill[i] = sentinel
		}
		p.Ring().WriteAt(fill, 0)
		p.write = write
		p.Ring().SetCursor(cursor)

		requested := ((cursor+lookahead-write)%length + length) % length
		written := p.Flush()
		require.Equal(t, requested, written, name)

		total := 0
		for _, n := range src.readSizes() {
			require.LessOrEqual(t, n, packet, name)
			total += n
		}
		require.Equal(t, requested, total, name)

		for off := 0; off < length; off++ {
			got := p.Ring().At(write + off)
			if off < requested {
				require.Equal(t, float32(off+1), got, "%s: gap or overlap at offset %d", name, off)
			} else {
				require.Equal(t, sentinel, got, "%s: wrote past requested at offset %d", name, off)
			}
		}
		require.Equal(t, (cursor+lookahead)%length, p.WriteCursor(), name)
	}
}

func TestFlushNoOps(t *testing.T) {
	cfg := Config{PacketSize: 960, Lookahead: 3840, BufferLength: 15360}

	t.Run("idle", func(t *testing.T) {
		src := &countingSource{}
		p := New(Key{}, src, cfg)
		assert.Equal(t, StateIdle, p.State())
		assert.Zero(t, p.Flush())
		assert.Empty(t, src.readSizes())
	})

	t.Run("no source", func(t *testing.T) {
		p := redirecting(t, nil, cfg)
		assert.Zero(t, p.Flush())
		assert.Zero(t, p.WriteCursor())
	})

	t.Run("muted", func(t *testing.T) {
		src := &countingSource{muted: true}
		p := redirecting(t, src, cfg)
		assert.Zero(t, p.Flush())
		assert.Empty(t, src.readSizes())
		assert.Zero(t, p.WriteCursor())
	})

	t.Run("disposed", func(t *testing.T) {
		src := &countingSource{err: fmt.Errorf("media_stream handle 0x10: %w", handle.ErrDisposed)}
		p := redirecting(t, src, cfg)
		assert.Zero(t, p.Flush())
		assert.Zero(t, p.WriteCursor())
		assert.False(t, p.UpdatePlayingStatus())
	})
}

// simStream returns a remote media stream backed by the simulated engine.
func simStream(t *testing.T) (*media.PlaybackStream, *sim.Engine) {
	t.Helper()
	engine := sim.New()
	room, err := engine.RoomCreate()
	require.NoError(t, err)
	require.NoError(t, engine.RoomSetEventCallback(room, func(_, _, _ uintptr) {}))
	_, err = engine.RoomJoin(room, "https://gateway.test", "token", nil)
	require.NoError(t, err)

	ptr, err := engine.InjectMediaAdded(room.Pointer(), 42, 7)
	require.NoError(t, err)
	require.NoError(t, engine.SetTone(ptr, 440, 0.5))
	return media.NewPlaybackStream(engine, engine.MediaStream(ptr), 42, 7, media.DefaultConfig()), engine
}

func warnings(hook *logtest.Hook) []string {
	var msgs []string
	for _, e := range hook.AllEntries() {
		if e.Level <= logrus.WarnLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func TestFlushTornDownMediaIsSilent(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	t.Run("closed", func(t *testing.T) {
		stream, _ := simStream(t)
		p := New(Key{Room: "lobby", PeerID: 42, MediaID: 7}, stream, DefaultConfig())
		p.Update()
		require.Positive(t, p.Flush(), "live stream fills the ring")

		require.NoError(t, stream.Close())
		hook.Reset()
		for range 3 {
			p.ReadAudio(make([]float32, DefaultPacketSize))
			assert.Zero(t, p.Flush())
		}
		assert.Empty(t, warnings(hook))
	})

	t.Run("canceled", func(t *testing.T) {
		stream, _ := simStream(t)
		stream.Cancel()
		p := New(Key{Room: "lobby", PeerID: 42, MediaID: 7}, stream, DefaultConfig())
		p.Update()

		hook.Reset()
		for range 3 {
			assert.Zero(t, p.Flush())
		}
		assert.Empty(t, warnings(hook))
	})
}

func TestStateMachine(t *testing.T) {
	src := &countingSource{}
	p := New(Key{}, src, Config{PacketSize: 960, Lookahead: 1920, BufferLength: 3840})
	assert.Equal(t, StateIdle, p.State())

	p.Enable()
	assert.Equal(t, StateRedirecting, p.Update())
	require.Equal(t, 1920, p.Flush())

	out := make([]float32, 4)
	assert.Equal(t, 4, p.ReadAudio(out))
	assert.Equal(t, []float32{1, 2, 3, 4}, out)

	p.Disable()
	assert.Equal(t, StateRedirecting, p.State(), "disable only takes effect on update")
	assert.Equal(t, StateStopped, p.Update())
	assert.Zero(t, p.WriteCursor())
	assert.Zero(t, p.Ring().Cursor())
	assert.Zero(t, p.Flush())

	assert.Equal(t, 0, p.ReadAudio(out))
	assert.Equal(t, []float32{0, 0, 0, 0}, out)
	for i := 0; i < 1920; i++ {
		require.Zero(t, p.Ring().At(i))
	}

	p.Enable()
	assert.Equal(t, StateRedirecting, p.Update())
}

func TestPlayingStatusIsEdgeTriggered(t *testing.T) {
	src := &countingSource{available: []int{960, 960, 0, 0, 960}}
	p := redirecting(t, src, DefaultConfig())

	var notes []bool
	p.OnPlayingStatusChanged(func(_ *Playback, playing bool) {
		notes = append(notes, playing)
	})

	// the first poll establishes the baseline against "not playing"
	assert.True(t, p.UpdatePlayingStatus())
	require.Equal(t, []bool{true}, notes)
	notes = nil

	// replay true, true, false, false, true from a playing baseline
	src.mu.Lock()
	src.available = []int{960, 960, 0, 0, 960}
	src.mu.Unlock()
	for i := 0; i < 5; i++ {
		p.UpdatePlayingStatus()
	}
	assert.Equal(t, []bool{false, true}, notes, "exactly two boundary crossings")
}

func TestPlayingStatusFalseWhenNotLive(t *testing.T) {
	src := &countingSource{available: []int{960}}
	p := New(Key{}, src, DefaultConfig())
	assert.False(t, p.UpdatePlayingStatus(), "idle playback is not playing")

	p.Update()
	assert.True(t, p.UpdatePlayingStatus())

	src.mu.Lock()
	src.muted = true
	src.mu.Unlock()
	assert.False(t, p.UpdatePlayingStatus())
	assert.Zero(t, p.DataAvailable())

	src.mu.Lock()
	src.muted = false
	src.mu.Unlock()
	p.SetSource(nil)
	assert.False(t, p.UpdatePlayingStatus())
}

func TestRingReadWraps(t *testing.T) {
	r := NewRing(8)
	r.WriteAt([]float32{1, 2, 3, 4, 5, 6, 7, 8}, 0)
	r.SetCursor(6)

	out := make([]float32, 4)
	assert.Equal(t, 4, r.Read(out))
	assert.Equal(t, []float32{7, 8, 1, 2}, out)
	assert.Equal(t, 2, r.Cursor())

	r.SetCursor(-1)
	assert.Equal(t, 7, r.Cursor())

	r.WriteAt([]float32{9, 10, 11}, 15)
	assert.Equal(t, float32(9), r.At(7))
	assert.Equal(t, float32(10), r.At(0))
	assert.Equal(t, float32(11), r.At(1))

	r.Clear()
	assert.Zero(t, r.At(7))
	assert.Zero(t, r.Cursor())
}

func TestRunFlushesAndReportsStatus(t *testing.T) {
	src := &countingSource{available: []int{960}}
	p := New(Key{Room: "lobby"}, src, Config{
		PacketSize:     960,
		Lookahead:      1920,
		BufferLength:   7680,
		FlushDelay:     time.Millisecond,
		FlushInterval:  2 * time.Millisecond,
		CheckStatus:    true,
		StatusInterval: 2 * time.Millisecond,
	})

	statuses := make(chan bool, 8)
	p.OnPlayingStatusChanged(func(_ *Playback, playing bool) {
		statuses <- playing
	})

	p.Start(context.Background())
	p.Start(context.Background())

	require.Eventually(t, func() bool {
		return p.WriteCursor() == 1920
	}, time.Second, time.Millisecond)
	assert.True(t, <-statuses)

	p.Stop()
	p.Stop()
	assert.Equal(t, StateStopped, p.State())
	assert.False(t, <-statuses)
	assert.Zero(t, p.WriteCursor())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	a := New(Key{Room: "lobby", PeerID: 1, MediaID: 1}, nil, DefaultConfig())
	b := New(Key{Room: "lobby", PeerID: 2, MediaID: 1}, nil, DefaultConfig())
	c := New(Key{Room: "other", PeerID: 1, MediaID: 1}, nil, DefaultConfig())
	for _, p := range []*Playback{a, b, c} {
		require.NoError(t, reg.Add(p))
	}
	assert.Error(t, reg.Add(a))

	got, ok := reg.Get(b.Key())
	require.True(t, ok)
	assert.Same(t, b, got)

	n := reg.DestroyMatching(func(k Key) bool { return k.Room == "lobby" && k.PeerID == 2 })
	assert.Equal(t, 1, n)
	assert.False(t, reg.Destroy(b.Key()))

	assert.Equal(t, 2, reg.DestroyAll())
	assert.Zero(t, reg.Len())
}
