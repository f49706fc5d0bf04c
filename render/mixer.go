package render

import (
	"sync"
	"sync/atomic"
)

// Reader is a source the render clock pulls from. ReadAudio fills dst and
// returns how many samples carry audio; the rest must be silence.
type Reader interface {
	ReadAudio(dst []float32) int
}

// Mixer sums its readers into one buffer, clamped to [-1, 1].
type Mixer struct {
	mu      sync.Mutex
	readers atomic.Pointer[[]Reader]

	// scratch is only touched by Mix, which the device calls serially.
	scratch []float32
}

// NewMixer creates a mixer with no readers.
func NewMixer() *Mixer {
	m := &Mixer{}
	m.readers.Store(&[]Reader{})
	return m
}

// Add registers r. Adding the same reader twice has no effect.
func (m *Mixer) Add(r Reader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := *m.readers.Load()
	for _, x := range cur {
		if x == r {
			return
		}
	}
	next := make([]Reader, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, r)
	m.readers.Store(&next)
}

// Remove unregisters r and reports whether it was registered.
func (m *Mixer) Remove(r Reader) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := *m.readers.Load()
	for i, x := range cur {
		if x == r {
			next := make([]Reader, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			m.readers.Store(&next)
			return true
		}
	}
	return false
}

// Len returns the number of registered readers.
func (m *Mixer) Len() int {
	return len(*m.readers.Load())
}

// Mix overwrites out with the clamped sum of every reader and returns the
// number of readers that produced audio.
func (m *Mixer) Mix(out []float32) int {
	clear(out)
	if cap(m.scratch) < len(out) {
		m.scratch = make([]float32, len(out))
	}
	buf := m.scratch[:len(out)]

	active := 0
	for _, r := range *m.readers.Load() {
		if r.ReadAudio(buf) == 0 {
			continue
		}
		active++
		for i, v := range buf {
			out[i] += v
		}
	}

	if active > 0 {
		for i, v := range out {
			out[i] = clamp(v)
		}
	}
	return active
}

func clamp(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
