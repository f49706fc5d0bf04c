package media

import (
	"context"
	"fmt"

	"github.com/opd-ai/odinbridge/handle"
	"github.com/opd-ai/odinbridge/native"
)

// MicrophoneStream is the local, write-only stream a client sends into a room.
type MicrophoneStream struct {
	stream
}

var _ Media = (*MicrophoneStream)(nil)

// NewMicrophone creates a native input stream.
func NewMicrophone(api native.API, cfg Config) (*MicrophoneStream, error) {
	h, err := api.AudioStreamCreate(cfg.native())
	if err != nil {
		return nil, fmt.Errorf("create microphone stream: %w", err)
	}
	m := &MicrophoneStream{}
	m.init(api, h, cfg)
	return m, nil
}

// AddToRoom attaches the stream to a joined room and records the ids the
// engine assigned to it.
func (m *MicrophoneStream) AddToRoom(room *handle.Handle) error {
	if err := m.api.RoomAddMedia(room, m.h); err != nil {
		return fmt.Errorf("add microphone to room: %w", err)
	}
	id, err := m.api.MediaStreamMediaID(m.h)
	if err != nil {
		return fmt.Errorf("query microphone media id: %w", err)
	}
	peerID, err := m.api.MediaStreamPeerID(m.h)
	if err != nil {
		return fmt.Errorf("query microphone peer id: %w", err)
	}
	m.id.Store(uint32(id))
	m.peerID.Store(peerID)
	return nil
}

// PushData sends samples to the engine. Muted streams drop them.
func (m *MicrophoneStream) PushData(samples []float32) error {
	if m.IsMuted() || len(samples) == 0 {
		return nil
	}
	if err := m.ctx.Err(); err != nil {
		return err
	}
	return m.api.AudioPushData(m.h, samples)
}

// PushDataAsync pushes on a background goroutine. The push is skipped when
// ctx or the stream is canceled first.
func (m *MicrophoneStream) PushDataAsync(ctx context.Context, samples []float32) <-chan error {
	done := make(chan error, 1)
	ctx, cancel := m.merge(ctx)
	go func() {
		defer cancel()
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- m.PushData(samples)
	}()
	return done
}

// ReadData is not supported on a microphone.
func (m *MicrophoneStream) ReadData(samples []float32) (int, error) {
	return 0, unsupported("microphone", "ReadData")
}

// ReadDataAsync is not supported on a microphone.
func (m *MicrophoneStream) ReadDataAsync(ctx context.Context, samples []float32) <-chan ReadResult {
	done := make(chan ReadResult, 1)
	done <- ReadResult{Err: unsupported("microphone", "ReadDataAsync")}
	return done
}

// DataAvailable is always zero for a microphone.
func (m *MicrophoneStream) DataAvailable() (int, error) {
	return 0, nil
}
