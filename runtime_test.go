package odinbridge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/odinbridge/config"
	"github.com/opd-ai/odinbridge/events"
	"github.com/opd-ai/odinbridge/native"
	"github.com/opd-ai/odinbridge/native/sim"
	"github.com/opd-ai/odinbridge/playback"
	"github.com/opd-ai/odinbridge/render"
	"github.com/opd-ai/odinbridge/room"
)

func newTestRuntime(t *testing.T, mutate func(*config.Config), opts ...Option) (*Runtime, *sim.Engine) {
	t.Helper()

	key, err := config.GenerateAccessKey()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.AccessKey = key
	cfg.Playback.FlushDelay = time.Millisecond
	cfg.Playback.FlushInterval = 2 * time.Millisecond
	cfg.Playback.StatusInterval = 2 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	engine := sim.New(sim.WithAccessKey(key))
	rt, err := NewRuntime(cfg, engine, opts...)
	require.NoError(t, err)
	require.NoError(t, rt.Start())
	t.Cleanup(func() { _ = rt.Close() })
	return rt, engine
}

func joinRoom(t *testing.T, rt *Runtime, name string) *room.Room {
	t.Helper()
	require.NoError(t, rt.JoinRoom(name, nil))
	rt.Wait()
	r := rt.Room(name)
	require.NotNil(t, r, "room %q was not joined", name)
	require.True(t, r.IsJoined())
	return r
}

// recorder collects every dispatched payload kind in order.
type recorder struct {
	kinds    []events.Kind
	payloads []events.Payload
}

func record(rt *Runtime) *recorder {
	rec := &recorder{}
	for k := events.KindRoomJoinRequested; k <= events.KindConnectionStateChanged; k++ {
		rt.Dispatcher().On(k, func(_ *room.Room, p events.Payload) {
			rec.kinds = append(rec.kinds, p.Kind())
			rec.payloads = append(rec.payloads, p)
		})
	}
	return rec
}

func (r *recorder) reset() {
	r.kinds = nil
	r.payloads = nil
}

func TestRuntimeLobbyScenario(t *testing.T) {
	rt, engine := newTestRuntime(t, nil)
	rec := record(rt)

	var created []playback.Key
	rt.OnCreatedMediaObject(func(roomName string, peerID uint64, mediaID uint16) {
		created = append(created, playback.Key{Room: roomName, PeerID: peerID, MediaID: mediaID})
	})

	lobby := joinRoom(t, rt, "lobby")
	assert.Equal(t, uint64(1), lobby.OwnID())

	rt.Pump()
	assert.Equal(t, []events.Kind{
		events.KindRoomJoinRequested,
		events.KindConnectionStateChanged,
		events.KindRoomJoined,
	}, rec.kinds)
	assert.Equal(t, native.ConnectionConnected, rt.ConnectionState())
	assert.NotNil(t, lobby.Microphone(), "microphone attached on join")
	rec.reset()

	require.NoError(t, engine.InjectPeerJoined(lobby.Pointer(), 42, []byte("bob")))
	streamPtr, err := engine.InjectMediaAdded(lobby.Pointer(), 42, 7)
	require.NoError(t, err)
	require.NoError(t, engine.SetTone(streamPtr, 440, 0.5))

	assert.Nil(t, rt.Peer("lobby", 42), "registry only changes inside Pump")

	var playbackSeenByListener bool
	events.Subscribe(rt.Dispatcher(), func(_ *room.Room, e events.MediaAdded) {
		playbackSeenByListener = rt.Playback("lobby", e.PeerID, e.Media.ID()) != nil
	})

	stats := rt.Pump()
	assert.Equal(t, 2, stats.Native)
	assert.Equal(t, 1, stats.MediaAdded)
	assert.Equal(t, []events.Kind{events.KindPeerJoined, events.KindMediaAdded}, rec.kinds)
	assert.True(t, playbackSeenByListener, "playback exists before the generic listener runs")
	assert.Equal(t, []playback.Key{{Room: "lobby", PeerID: 42, MediaID: 7}}, created)

	peer := rt.Peer("lobby", 42)
	require.NotNil(t, peer)
	assert.Equal(t, []byte("bob"), peer.UserData())
	require.NotNil(t, rt.Media("lobby", 42, 7))

	p := rt.Playback("lobby", 42, 7)
	require.NotNil(t, p)
	require.Eventually(t, func() bool {
		return p.IsPlaying() && p.WriteCursor() != 0
	}, time.Second, time.Millisecond)
	rec.reset()

	var playbackGoneForListener bool
	events.Subscribe(rt.Dispatcher(), func(_ *room.Room, e events.MediaRemoved) {
		playbackGoneForListener = rt.Playback("lobby", e.PeerID, e.MediaID) == nil
	})

	require.NoError(t, engine.InjectPeerLeft(lobby.Pointer(), 42))
	rt.Pump()
	assert.Equal(t, []events.Kind{events.KindMediaRemoved, events.KindPeerLeft}, rec.kinds)
	assert.True(t, playbackGoneForListener)
	assert.Nil(t, rt.Peer("lobby", 42))
	assert.Empty(t, rt.Playbacks())
}

func TestOwnMediaGetsNoPlayback(t *testing.T) {
	rt, engine := newTestRuntime(t, nil)
	lobby := joinRoom(t, rt, "lobby")

	_, err := engine.InjectMediaAdded(lobby.Pointer(), lobby.OwnID(), 3)
	require.NoError(t, err)
	rt.Pump()

	assert.NotNil(t, rt.Media("lobby", lobby.OwnID(), 3))
	assert.Nil(t, rt.Playback("lobby", lobby.OwnID(), 3))
}

func TestPlaybackCreationDisabled(t *testing.T) {
	rt, engine := newTestRuntime(t, func(c *config.Config) {
		c.Playback.Create = false
	})
	lobby := joinRoom(t, rt, "lobby")

	require.NoError(t, engine.InjectPeerJoined(lobby.Pointer(), 42, nil))
	_, err := engine.InjectMediaAdded(lobby.Pointer(), 42, 7)
	require.NoError(t, err)
	rt.Pump()

	assert.Empty(t, rt.Playbacks())
}

func TestPlaybackAddedBeforeMediaPicksUpStream(t *testing.T) {
	rt, engine := newTestRuntime(t, func(c *config.Config) {
		c.Playback.Create = false
	})
	lobby := joinRoom(t, rt, "lobby")

	p, err := rt.AddPlayback("lobby", 42, 7)
	require.NoError(t, err)
	assert.Nil(t, p.Source())

	_, err = rt.AddPlayback("lobby", 42, 7)
	assert.ErrorIs(t, err, ErrDuplicateKey)
	_, err = rt.AddPlayback("nowhere", 42, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, engine.InjectPeerJoined(lobby.Pointer(), 42, nil))
	_, err = engine.InjectMediaAdded(lobby.Pointer(), 42, 7)
	require.NoError(t, err)
	rt.Pump()

	assert.NotNil(t, p.Source())
	assert.Len(t, rt.Playbacks(), 1)
}

func TestEventTogglesKeepSideEffects(t *testing.T) {
	rt, engine := newTestRuntime(t, func(c *config.Config) {
		c.Events.PeerJoined = false
		c.Events.MediaAdded = false
	})
	rec := record(rt)
	lobby := joinRoom(t, rt, "lobby")
	rt.Pump()
	rec.reset()

	require.NoError(t, engine.InjectPeerJoined(lobby.Pointer(), 42, nil))
	_, err := engine.InjectMediaAdded(lobby.Pointer(), 42, 7)
	require.NoError(t, err)
	stats := rt.Pump()

	assert.Empty(t, rec.kinds)
	assert.Equal(t, 1, stats.MediaAdded)
	assert.NotNil(t, rt.Playback("lobby", 42, 7))
}

func TestJoinFailureLeavesNoRoom(t *testing.T) {
	rt, engine := newTestRuntime(t, nil)
	rec := record(rt)

	engine.FailNextJoin(errors.New("gateway unreachable"))
	require.NoError(t, rt.JoinRoom("lobby", nil))
	rt.Wait()

	assert.Nil(t, rt.Room("lobby"))
	assert.Zero(t, engine.LiveRooms())
	rt.Pump()
	assert.Equal(t, []events.Kind{events.KindRoomJoinRequested}, rec.kinds)

	joinRoom(t, rt, "lobby")
}

func TestJoinValidation(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	joinRoom(t, rt, "lobby")

	assert.ErrorIs(t, rt.JoinRoom("lobby", nil), ErrDuplicateKey)
	assert.ErrorIs(t, rt.JoinRoom("", nil), ErrEmpty)
}

func TestLeaveRoom(t *testing.T) {
	rt, engine := newTestRuntime(t, nil)
	rec := record(rt)
	lobby := joinRoom(t, rt, "lobby")

	require.NoError(t, engine.InjectPeerJoined(lobby.Pointer(), 42, nil))
	_, err := engine.InjectMediaAdded(lobby.Pointer(), 42, 7)
	require.NoError(t, err)
	rt.Pump()
	require.Len(t, rt.Playbacks(), 1)
	rec.reset()

	require.NoError(t, rt.LeaveRoom("lobby"))
	assert.Empty(t, rt.Playbacks(), "playbacks stop before the room is freed")
	rt.Wait()
	rt.Pump()

	assert.Equal(t, []events.Kind{events.KindRoomLeaveRequested, events.KindRoomLeft}, rec.kinds)
	assert.Equal(t, "lobby", rec.payloads[1].(events.RoomLeft).Name)
	assert.Nil(t, rt.Room("lobby"))
	assert.Zero(t, engine.LiveRooms())
	assert.Zero(t, engine.LiveStreams())

	assert.ErrorIs(t, rt.LeaveRoom("lobby"), ErrNotFound)
}

func TestEventsQueuedBeforeLeaveAreDropped(t *testing.T) {
	rt, engine := newTestRuntime(t, nil)
	rec := record(rt)
	lobby := joinRoom(t, rt, "lobby")
	rt.Pump()
	rec.reset()

	require.NoError(t, engine.InjectPeerJoined(lobby.Pointer(), 42, nil))
	_, err := engine.InjectMediaAdded(lobby.Pointer(), 42, 7)
	require.NoError(t, err)

	require.NoError(t, rt.LeaveRoom("lobby"))
	assert.True(t, lobby.IsClosed())
	rt.Wait()
	stats := rt.Pump()

	assert.Equal(t, 2, stats.Dropped)
	assert.Equal(t, []events.Kind{events.KindRoomLeaveRequested, events.KindRoomLeft}, rec.kinds)
	assert.Zero(t, lobby.Peers.Len(), "no peer outlives its room")
	assert.Empty(t, rt.Playbacks())
	assert.Zero(t, engine.LiveStreams(), "stream of the dropped media is freed")
	assert.Zero(t, engine.LiveRooms())
}

func TestHostEventsKeepOrderWithNativeEvents(t *testing.T) {
	rt, engine := newTestRuntime(t, nil)
	rec := record(rt)
	lobby := joinRoom(t, rt, "lobby")
	rt.Pump()
	rec.reset()

	require.NoError(t, engine.InjectPeerJoined(lobby.Pointer(), 42, nil))
	rt.Bridge().Publish(lobby, events.RoomLeaveRequested{Room: lobby})
	require.NoError(t, engine.InjectMessage(lobby.Pointer(), 42, []byte("hi")))
	rt.Pump()

	assert.Equal(t, []events.Kind{
		events.KindPeerJoined,
		events.KindRoomLeaveRequested,
		events.KindMessageReceived,
	}, rec.kinds)
}

func TestSecondJoinForSameNameFailsImmediately(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)

	require.NoError(t, rt.JoinRoom("lobby", nil))
	assert.ErrorIs(t, rt.JoinRoom("lobby", nil), ErrDuplicateKey)
	rt.Wait()

	assert.Len(t, rt.Rooms(), 1)
	assert.True(t, rt.Room("lobby").IsJoined())
}

func TestPlaybackStatusFollowsConfig(t *testing.T) {
	rt, engine := newTestRuntime(t, func(cfg *config.Config) {
		cfg.Playback.CheckStatus = false
		cfg.Playback.StatusDelay = 3 * time.Second
	})
	assert.False(t, rt.playbackConfig().CheckStatus)
	assert.Equal(t, 3*time.Second, rt.playbackConfig().StatusDelay)

	lobby := joinRoom(t, rt, "lobby")
	require.NoError(t, engine.InjectPeerJoined(lobby.Pointer(), 42, nil))
	ptr, err := engine.InjectMediaAdded(lobby.Pointer(), 42, 7)
	require.NoError(t, err)
	require.NoError(t, engine.SetTone(ptr, 440, 0.5))
	rt.Pump()

	p := rt.Playback("lobby", 42, 7)
	require.NotNil(t, p)
	require.Eventually(t, func() bool { return p.WriteCursor() != 0 }, time.Second, time.Millisecond)
	assert.Never(t, p.IsPlaying, 50*time.Millisecond, 5*time.Millisecond, "status is not polled")
}

func TestUpdateUserDataReachesEveryRoom(t *testing.T) {
	rt, engine := newTestRuntime(t, nil)
	rec := record(rt)
	lobby := joinRoom(t, rt, "lobby")
	arena := joinRoom(t, rt, "arena")
	rt.Pump()
	rec.reset()

	require.NoError(t, rt.UpdateUserData([]byte(`{"name":"alice"}`)))
	rt.Wait()

	for _, r := range []*room.Room{lobby, arena} {
		assert.Equal(t, []byte(`{"name":"alice"}`), engine.RoomUserData(r.Pointer()))
		own, ok := r.Peer(r.OwnID())
		require.True(t, ok)
		assert.Equal(t, []byte(`{"name":"alice"}`), own.UserData())
	}

	rt.Pump()
	assert.Equal(t, []events.Kind{events.KindPeerUpdated, events.KindPeerUpdated}, rec.kinds)
	assert.Equal(t, []byte(`{"name":"alice"}`), rt.Client().UserData())
}

func TestMessages(t *testing.T) {
	rt, engine := newTestRuntime(t, nil)
	lobby := joinRoom(t, rt, "lobby")

	require.NoError(t, rt.BroadcastMessage("lobby", []byte("hello")))
	require.NoError(t, rt.SendMessage("lobby", []uint64{42}, []byte("psst")))
	assert.ErrorIs(t, rt.BroadcastMessage("arena", []byte("hello")), ErrNotFound)

	sent := engine.Sent(lobby.Pointer())
	require.Len(t, sent, 2)
	assert.Empty(t, sent[0].PeerIDs)
	assert.Equal(t, []byte("hello"), sent[0].Data)
	assert.Equal(t, []uint64{42}, sent[1].PeerIDs)

	var got []byte
	events.Subscribe(rt.Dispatcher(), func(_ *room.Room, e events.MessageReceived) {
		got = e.Data
	})
	require.NoError(t, engine.InjectMessage(lobby.Pointer(), 42, []byte("hi")))
	rt.Pump()
	assert.Equal(t, []byte("hi"), got)
}

func TestMixerTracksPlaybacks(t *testing.T) {
	mixer := render.NewMixer()
	rt, engine := newTestRuntime(t, nil, WithMixer(mixer))
	lobby := joinRoom(t, rt, "lobby")

	require.NoError(t, engine.InjectPeerJoined(lobby.Pointer(), 42, nil))
	_, err := engine.InjectMediaAdded(lobby.Pointer(), 42, 7)
	require.NoError(t, err)
	rt.Pump()
	assert.Equal(t, 1, mixer.Len())

	var deleted []uint16
	rt.OnDeleteMediaObject(func(_ string, _ uint64, mediaID uint16) {
		deleted = append(deleted, mediaID)
		assert.NotNil(t, rt.Playback("lobby", 42, mediaID), "hook runs before the playback is destroyed")
	})
	require.NoError(t, engine.InjectMediaRemoved(lobby.Pointer(), 42, 7))
	rt.Pump()
	assert.Zero(t, mixer.Len())
	assert.Equal(t, []uint16{7}, deleted)
}

func TestRuntimeLifecycle(t *testing.T) {
	engine := sim.New()
	rt, err := NewRuntime(nil, engine)
	require.NoError(t, err)

	assert.ErrorIs(t, rt.JoinRoom("lobby", nil), ErrNotStarted)
	assert.Equal(t, events.PumpStats{}, rt.Pump())

	require.NoError(t, rt.Start(), "missing access key is generated")
	require.NoError(t, rt.Start())
	assert.NoError(t, config.ValidateAccessKey(rt.Config().AccessKey))
	assert.NotEmpty(t, rt.Config().ClientID)
	assert.True(t, engine.Started())

	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	assert.False(t, engine.Started())
	assert.ErrorIs(t, rt.JoinRoom("lobby", nil), ErrClosed)
	assert.ErrorIs(t, rt.Start(), ErrClosed)
}

func TestCloseTearsDownInsideOut(t *testing.T) {
	rt, engine := newTestRuntime(t, nil)
	lobby := joinRoom(t, rt, "lobby")
	require.NoError(t, engine.InjectPeerJoined(lobby.Pointer(), 42, nil))
	_, err := engine.InjectMediaAdded(lobby.Pointer(), 42, 7)
	require.NoError(t, err)
	rt.Pump()

	require.NoError(t, rt.Close())

	last := map[string]int{}
	for i, d := range engine.Destroyed() {
		last[d.Kind] = i
	}
	require.Contains(t, last, native.KindMediaStream)
	require.Contains(t, last, native.KindRoom)
	require.Contains(t, last, native.KindTokenGenerator)
	assert.Less(t, last[native.KindMediaStream], last[native.KindRoom])
	assert.Less(t, last[native.KindRoom], last[native.KindTokenGenerator])
	assert.Zero(t, engine.LiveRooms())
	assert.Zero(t, engine.LiveStreams())
	assert.Empty(t, rt.Playbacks())
}
