package playback

import (
	"math"
	"sync/atomic"
)

// Ring is a fixed-length circular sample buffer shared by one writer (the
// flush loop) and one reader (the render clock). Samples are stored as
// atomic float bits and the read cursor is atomic, so neither side locks.
type Ring struct {
	samples []atomic.Uint32
	cursor  atomic.Int64
}

// NewRing creates a silent ring of length samples.
func NewRing(length int) *Ring {
	if length <= 0 {
		panic("playback: ring length must be positive")
	}
	return &Ring{samples: make([]atomic.Uint32, length)}
}

// Len returns the buffer length in samples.
func (r *Ring) Len() int {
	return len(r.samples)
}

// Cursor returns the index of the next sample the render clock reads.
func (r *Ring) Cursor() int {
	return int(r.cursor.Load())
}

// SetCursor moves the render cursor, wrapping it into range.
func (r *Ring) SetCursor(i int) {
	r.cursor.Store(int64(r.wrap(i)))
}

// Read copies len(dst) samples starting at the render cursor, wrapping at
// the end of the buffer, and advances the cursor past them.
func (r *Ring) Read(dst []float32) int {
	start := r.Cursor()
	for i := range dst {
		dst[i] = math.Float32frombits(r.samples[(start+i)%len(r.samples)].Load())
	}
	r.cursor.Store(int64(r.wrap(start + len(dst))))
	return len(dst)
}

// WriteAt stores src starting at offset (taken modulo the length). A write
// that crosses the end of the buffer is split and continues at index zero.
func (r *Ring) WriteAt(src []float32, offset int) {
	if len(src) > len(r.samples) {
		src = src[len(src)-len(r.samples):]
	}
	offset = r.wrap(offset)
	head := min(len(src), len(r.samples)-offset)
	r.store(src[:head], offset)
	r.store(src[head:], 0)
}

// Clear silences the buffer and rewinds the render cursor.
func (r *Ring) Clear() {
	for i := range r.samples {
		r.samples[i].Store(0)
	}
	r.cursor.Store(0)
}

// At returns the sample at index i (modulo the length).
func (r *Ring) At(i int) float32 {
	return math.Float32frombits(r.samples[r.wrap(i)].Load())
}

func (r *Ring) store(src []float32, offset int) {
	for i, v := range src {
		r.samples[offset+i].Store(math.Float32bits(v))
	}
}

func (r *Ring) wrap(i int) int {
	n := len(r.samples)
	return (i%n + n) % n
}
