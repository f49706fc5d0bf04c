package media

import (
	"context"
	"fmt"

	"github.com/opd-ai/odinbridge/handle"
	"github.com/opd-ai/odinbridge/native"
)

// PlaybackStream is a remote peer's decoded, read-only stream.
type PlaybackStream struct {
	stream
}

var _ Media = (*PlaybackStream)(nil)

// NewPlaybackStream wraps a remote stream handle delivered by a media-added
// event. The stream takes ownership of h.
func NewPlaybackStream(api native.API, h *handle.Handle, peerID uint64, mediaID uint16, cfg Config) *PlaybackStream {
	p := &PlaybackStream{}
	p.init(api, h, cfg)
	p.id.Store(uint32(mediaID))
	p.peerID.Store(peerID)
	return p
}

// PushData is not supported on a playback stream.
func (p *PlaybackStream) PushData(samples []float32) error {
	return unsupported("playback", "PushData")
}

// PushDataAsync is not supported on a playback stream.
func (p *PlaybackStream) PushDataAsync(ctx context.Context, samples []float32) <-chan error {
	done := make(chan error, 1)
	done <- unsupported("playback", "PushDataAsync")
	return done
}

// ReadData fills samples with decoded audio and returns how many were
// written. Muted streams read nothing and a closed stream reports
// handle.ErrDisposed.
func (p *PlaybackStream) ReadData(samples []float32) (int, error) {
	if p.IsMuted() || len(samples) == 0 {
		return 0, nil
	}
	if p.h.IsClosed() {
		return 0, fmt.Errorf("read playback media %d: %w", p.ID(), handle.ErrDisposed)
	}
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	return p.api.AudioReadData(p.h, samples)
}

// ReadDataAsync reads on a background goroutine.
func (p *PlaybackStream) ReadDataAsync(ctx context.Context, samples []float32) <-chan ReadResult {
	done := make(chan ReadResult, 1)
	ctx, cancel := p.merge(ctx)
	go func() {
		defer cancel()
		if err := ctx.Err(); err != nil {
			done <- ReadResult{Err: err}
			return
		}
		n, err := p.ReadData(samples)
		done <- ReadResult{N: n, Err: err}
	}()
	return done
}

// DataAvailable returns the number of decoded samples ready to read.
func (p *PlaybackStream) DataAvailable() (int, error) {
	if p.IsMuted() {
		return 0, nil
	}
	return p.api.AudioDataLen(p.h)
}
