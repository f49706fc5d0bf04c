package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/odinbridge/handle"
	"github.com/opd-ai/odinbridge/native/sim"
)

func joinedRoom(t *testing.T, engine *sim.Engine) *handle.Handle {
	t.Helper()
	room, err := engine.RoomCreate()
	require.NoError(t, err)
	require.NoError(t, engine.RoomSetEventCallback(room, func(_, _, _ uintptr) {}))
	_, err = engine.RoomJoin(room, "https://gateway.test", "token", nil)
	require.NoError(t, err)
	return room
}

func remoteStream(t *testing.T, engine *sim.Engine, room *handle.Handle) (*PlaybackStream, uintptr) {
	t.Helper()
	ptr, err := engine.InjectMediaAdded(room.Pointer(), 42, 7)
	require.NoError(t, err)
	return NewPlaybackStream(engine, engine.MediaStream(ptr), 42, 7, DefaultConfig()), ptr
}

func TestMicrophonePushAndMute(t *testing.T) {
	engine := sim.New()
	room := joinedRoom(t, engine)

	mic, err := NewMicrophone(engine, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, mic.AddToRoom(room))
	assert.Equal(t, uint16(1), mic.ID())
	assert.Equal(t, uint64(1), mic.PeerID())

	require.NoError(t, mic.PushData([]float32{0.5, -0.5}))

	assert.True(t, mic.ToggleMute())
	require.NoError(t, mic.PushData([]float32{0.9}))
	assert.False(t, mic.ToggleMute())

	assert.Equal(t, []float32{0.5, -0.5}, engine.Pushed(mic.Handle().Pointer()), "muted push reached the engine")
}

func TestDirectionMisuse(t *testing.T) {
	engine := sim.New()
	room := joinedRoom(t, engine)

	mic, err := NewMicrophone(engine, DefaultConfig())
	require.NoError(t, err)
	_, err = mic.ReadData(make([]float32, 4))
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	res := <-mic.ReadDataAsync(context.Background(), make([]float32, 4))
	assert.ErrorIs(t, res.Err, ErrUnsupportedOperation)
	n, err := mic.DataAvailable()
	assert.NoError(t, err)
	assert.Zero(t, n)

	playback, _ := remoteStream(t, engine, room)
	assert.ErrorIs(t, playback.PushData([]float32{1}), ErrUnsupportedOperation)
	assert.ErrorIs(t, <-playback.PushDataAsync(context.Background(), []float32{1}), ErrUnsupportedOperation)
}

func TestPlaybackRead(t *testing.T) {
	engine := sim.New()
	room := joinedRoom(t, engine)
	playback, ptr := remoteStream(t, engine, room)

	require.NoError(t, engine.QueueAudio(ptr, []float32{0.1, 0.2, 0.3}))

	n, err := playback.DataAvailable()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	playback.SetMute(true)
	n, err = playback.DataAvailable()
	require.NoError(t, err)
	assert.Zero(t, n, "muted stream reports nothing")
	n, err = playback.ReadData(make([]float32, 3))
	require.NoError(t, err)
	assert.Zero(t, n)
	playback.SetMute(false)

	buf := make([]float32, 3)
	res := <-playback.ReadDataAsync(context.Background(), buf)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.N)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, buf)
}

func TestCancelIsPerStream(t *testing.T) {
	engine := sim.New()
	room := joinedRoom(t, engine)

	a, err := NewMicrophone(engine, DefaultConfig())
	require.NoError(t, err)
	b, err := NewMicrophone(engine, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, a.AddToRoom(room))
	require.NoError(t, b.AddToRoom(room))

	a.Cancel()
	select {
	case <-a.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("stream context not canceled")
	}

	assert.ErrorIs(t, <-a.PushDataAsync(context.Background(), []float32{1}), context.Canceled)
	assert.NoError(t, <-b.PushDataAsync(context.Background(), []float32{1}))
	assert.Empty(t, engine.Pushed(a.Handle().Pointer()))
	assert.Equal(t, []float32{1}, engine.Pushed(b.Handle().Pointer()))
}

func TestAsyncHonorsCallerContext(t *testing.T) {
	engine := sim.New()
	room := joinedRoom(t, engine)
	playback, ptr := remoteStream(t, engine, room)
	require.NoError(t, engine.QueueAudio(ptr, []float32{1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := <-playback.ReadDataAsync(ctx, make([]float32, 1))
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.NoError(t, playback.Context().Err(), "caller cancel must not cancel the stream")
}

func TestCloseReleasesHandle(t *testing.T) {
	engine := sim.New()
	room := joinedRoom(t, engine)
	playback, _ := remoteStream(t, engine, room)

	require.NoError(t, playback.Close())
	assert.True(t, playback.Handle().Released())
	assert.Error(t, playback.Context().Err())

	_, err := playback.DataAvailable()
	assert.ErrorIs(t, err, handle.ErrDisposed)
	_, err = playback.ReadData(make([]float32, 4))
	assert.ErrorIs(t, err, handle.ErrDisposed)
	assert.NoError(t, playback.Close(), "close is idempotent")
}
