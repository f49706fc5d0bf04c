package odinbridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/odinbridge/config"
	"github.com/opd-ai/odinbridge/events"
	"github.com/opd-ai/odinbridge/native"
	"github.com/opd-ai/odinbridge/native/sim"
	"github.com/opd-ai/odinbridge/room"
	"github.com/opd-ai/odinbridge/token"
)

func newTestClient(t *testing.T) (*Client, *sim.Engine) {
	t.Helper()
	key, err := config.GenerateAccessKey()
	require.NoError(t, err)
	gen, err := token.NewLocalGenerator(key)
	require.NoError(t, err)

	engine := sim.New(sim.WithAccessKey(key))
	c, err := NewClient(engine, nil, ClientOptions{
		Endpoint:               config.DefaultServer,
		AccessKey:              key,
		UserData:               []byte("default"),
		Tokens:                 gen,
		ForwardConnectionState: true,
	})
	require.NoError(t, err)
	require.NoError(t, c.Startup())
	t.Cleanup(func() { _ = c.Close() })
	return c, engine
}

func TestNewClientRequiresCollaborators(t *testing.T) {
	_, err := NewClient(nil, nil, ClientOptions{})
	assert.Error(t, err)
	_, err = NewClient(sim.New(), nil, ClientOptions{})
	assert.Error(t, err)
}

func TestClientJoinUsesDefaultUserData(t *testing.T) {
	c, engine := newTestClient(t)

	var setupRan bool
	r, err := c.JoinRoom(context.Background(), "lobby", "alice", nil, func(r *room.Room) error {
		setupRan = true
		assert.False(t, r.IsJoined())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, setupRan)
	assert.Equal(t, []byte("default"), engine.RoomUserData(r.Pointer()))

	got, ok := c.Rooms().ByPointer(r.Pointer())
	require.True(t, ok)
	assert.Same(t, r, got)
}

func TestClientJoinRejectsBadToken(t *testing.T) {
	c, _ := newTestClient(t)
	other, err := config.GenerateAccessKey()
	require.NoError(t, err)

	// tokens signed with a foreign key are refused by the gateway
	c.opts.Tokens, err = token.NewLocalGenerator(other)
	require.NoError(t, err)

	_, err = c.JoinRoom(context.Background(), "lobby", "alice", nil, nil)
	assert.ErrorIs(t, err, ErrNativeCallFailed)
	assert.Zero(t, c.Rooms().Len())
}

func TestClientJoinHonorsCanceledContext(t *testing.T) {
	c, engine := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.JoinRoom(ctx, "lobby", "alice", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, engine.LiveRooms())
}

func TestOnEventReceivedRouting(t *testing.T) {
	c, engine := newTestClient(t)
	r, err := c.JoinRoom(context.Background(), "lobby", "alice", nil, nil)
	require.NoError(t, err)

	// the join reported Connected through the trampoline
	assert.Equal(t, native.ConnectionConnected, c.ConnectionState())
	assert.Equal(t, 1, c.Bridge().Pending())

	require.NoError(t, engine.InjectConnectionState(r.Pointer(), native.ConnectionConnected))
	assert.Equal(t, 1, c.Bridge().Pending(), "unchanged state is not republished")

	require.NoError(t, engine.InjectPeerJoined(r.Pointer(), 42, nil))
	assert.Equal(t, 2, c.Bridge().Pending())

	// a pointer no room owns is dropped on the worker thread
	c.OnEventReceived(0xdead, 0xbeef, 0)
	assert.Equal(t, 2, c.Bridge().Pending())

	var states []native.ConnectionState
	events.Subscribe(c.Bridge().Dispatcher(), func(_ *room.Room, e events.ConnectionStateChanged) {
		states = append(states, e.State)
	})
	stats := c.Bridge().Pump()
	assert.Equal(t, 1, stats.Native)
	assert.Equal(t, []native.ConnectionState{native.ConnectionConnected}, states)
	_, ok := r.Peer(42)
	assert.True(t, ok)
}

func TestClientUpdateUserDataSkipsUnjoined(t *testing.T) {
	c, engine := newTestClient(t)
	r, err := c.JoinRoom(context.Background(), "lobby", "alice", nil, nil)
	require.NoError(t, err)

	require.NoError(t, c.UpdateUserData(context.Background(), []byte("v2")))
	assert.Equal(t, []byte("v2"), engine.RoomUserData(r.Pointer()))
	assert.Equal(t, []byte("v2"), c.UserData())

	require.NoError(t, c.LeaveRoom(context.Background(), "lobby"))
	assert.ErrorIs(t, c.LeaveRoom(context.Background(), "lobby"), ErrNotFound)
}
