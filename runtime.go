package odinbridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/config"
	"github.com/opd-ai/odinbridge/events"
	"github.com/opd-ai/odinbridge/limits"
	"github.com/opd-ai/odinbridge/media"
	"github.com/opd-ai/odinbridge/native"
	"github.com/opd-ai/odinbridge/playback"
	"github.com/opd-ai/odinbridge/render"
	"github.com/opd-ai/odinbridge/room"
	"github.com/opd-ai/odinbridge/token"
)

// MediaObjectHook is notified when the runtime handles a media side effect.
type MediaObjectHook func(roomName string, peerID uint64, mediaID uint16)

// Option configures a Runtime.
type Option func(*Runtime)

// WithTokenGenerator replaces the native token generator.
func WithTokenGenerator(g token.Generator) Option {
	return func(rt *Runtime) {
		rt.tokens = g
	}
}

// WithMixer registers every playback the runtime creates with m.
func WithMixer(m *render.Mixer) Option {
	return func(rt *Runtime) {
		rt.mixer = m
	}
}

// WithDispatcher uses d for generic listeners.
func WithDispatcher(d *events.Dispatcher) Option {
	return func(rt *Runtime) {
		rt.bridge = events.NewBridge(d)
	}
}

// Runtime glues a Client to a host loop: the host calls Pump once per tick
// and receives every engine event through the dispatcher on its own
// goroutine. Blocking engine operations run in the background and report
// back through events.
type Runtime struct {
	cfg       *config.Config
	api       native.API
	bridge    *events.Bridge
	client    *Client
	tokens    token.Generator
	mixer     *render.Mixer
	playbacks *playback.Registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	hooksMu   sync.RWMutex
	onCreated MediaObjectHook
	onDeleted MediaObjectHook

	// joining holds room names with a join in flight.
	joinMu  sync.Mutex
	joining map[string]struct{}

	startMu sync.Mutex
	started atomic.Bool
	closed  atomic.Bool
}

// NewRuntime creates a runtime for api. A nil cfg uses config.Default.
func NewRuntime(cfg *config.Config, api native.API, opts ...Option) (*Runtime, error) {
	if api == nil {
		return nil, fmt.Errorf("odinbridge: nil native api")
	}
	if cfg == nil {
		cfg = config.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		cfg:       cfg,
		api:       api,
		bridge:    events.NewBridge(nil),
		playbacks: playback.NewRegistry(),
		joining:   make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.bridge.HandleMediaAdded(rt.onMediaAdded)
	rt.bridge.HandleMediaRemoved(rt.onMediaRemoved)
	return rt, nil
}

// Start validates the configuration, creates the token generator and starts
// the engine. A missing access key is generated locally, which is only
// suitable for testing. Calling Start twice has no effect.
func (rt *Runtime) Start() error {
	rt.startMu.Lock()
	defer rt.startMu.Unlock()

	if rt.closed.Load() {
		return ErrClosed
	}
	if rt.started.Load() {
		return nil
	}

	if rt.cfg.AccessKey == "" {
		key, err := config.GenerateAccessKey()
		if err != nil {
			return err
		}
		rt.cfg.AccessKey = key
		logrus.WithFields(logrus.Fields{
			"function": "Runtime.Start",
		}).Warn("No access key configured, generated a temporary one for testing")
	}
	rt.cfg.EnsureClientID()
	if err := rt.cfg.Validate(); err != nil {
		return err
	}

	if rt.tokens == nil {
		gen, err := token.NewNativeGenerator(rt.api, rt.cfg.AccessKey)
		if err != nil {
			return err
		}
		rt.tokens = gen
	}

	client, err := NewClient(rt.api, rt.bridge, ClientOptions{
		Endpoint:  rt.cfg.Server,
		AccessKey: rt.cfg.AccessKey,
		UserData:  []byte(rt.cfg.UserData),
		Tokens:    rt.tokens,
		Listener:  listener{rt: rt},
		Microphone: media.Config{
			SampleRate: rt.cfg.Audio.DeviceSampleRate,
			Channels:   rt.cfg.Audio.DeviceChannels,
		},
		Playback: media.Config{
			SampleRate: rt.cfg.Audio.RemoteSampleRate,
			Channels:   rt.cfg.Audio.RemoteChannels,
		},
		ForwardConnectionState: rt.cfg.Events.ConnectionStateChanged,
	})
	if err != nil {
		_ = rt.tokens.Close()
		return err
	}
	if err := client.Startup(); err != nil {
		_ = rt.tokens.Close()
		return err
	}
	rt.client = client
	rt.started.Store(true)

	logrus.WithFields(logrus.Fields{
		"function":  "Runtime.Start",
		"client_id": rt.cfg.ClientID,
		"server":    rt.cfg.Server,
	}).Info("Runtime started")
	return nil
}

func (rt *Runtime) ready() error {
	switch {
	case rt.closed.Load():
		return ErrClosed
	case !rt.started.Load():
		return ErrNotStarted
	}
	return nil
}

// Config returns the runtime configuration.
func (rt *Runtime) Config() *config.Config {
	return rt.cfg
}

// Client returns the client, or nil before Start.
func (rt *Runtime) Client() *Client {
	return rt.client
}

// Bridge returns the event bridge.
func (rt *Runtime) Bridge() *events.Bridge {
	return rt.bridge
}

// Dispatcher returns the generic listener registry.
func (rt *Runtime) Dispatcher() *events.Dispatcher {
	return rt.bridge.Dispatcher()
}

// Mixer returns the mixer playbacks are registered with, or nil.
func (rt *Runtime) Mixer() *render.Mixer {
	return rt.mixer
}

// ConnectionState returns the process-wide connection state.
func (rt *Runtime) ConnectionState() native.ConnectionState {
	if rt.client == nil {
		return native.ConnectionDisconnected
	}
	return rt.client.ConnectionState()
}

// Pump drains the bridge. Call it once per host tick from the host
// goroutine; every listener runs inside it.
func (rt *Runtime) Pump() events.PumpStats {
	if rt.ready() != nil {
		return events.PumpStats{}
	}
	return rt.bridge.Pump()
}

// Wait blocks until every background join, leave and user data update has
// finished.
func (rt *Runtime) Wait() {
	rt.wg.Wait()
}

// JoinRoom joins a room in the background. RoomJoinRequested is published
// once the room exists, RoomJoined after the native join succeeded and the
// microphone was attached. A failed join only logs; the room stays absent.
// The name is reserved until the join finishes, so a second join for it
// fails right away. nil userData uses the configured default.
func (rt *Runtime) JoinRoom(name string, userData []byte) error {
	if err := rt.ready(); err != nil {
		return err
	}
	if err := limits.ValidateRoomName(name); err != nil {
		return err
	}
	if err := rt.reserve(name); err != nil {
		return err
	}

	setup := func(r *room.Room) error {
		if err := r.SetAPMConfig(rt.cfg.NativeAPM()); err != nil {
			return err
		}
		rt.bridge.Publish(r, events.RoomJoinRequested{Name: name})
		return nil
	}

	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		defer rt.unreserve(name)

		r, err := rt.client.JoinRoom(rt.ctx, name, rt.cfg.ClientID, userData, setup)
		if err != nil {
			return
		}
		if _, err := r.CreateMicrophone(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Runtime.JoinRoom",
				"room":     name,
				"error":    err.Error(),
			}).Warn("Failed to attach microphone")
		}
		if !r.IsClosed() {
			rt.bridge.Publish(r, events.RoomJoined{Room: r})
		}
	}()
	return nil
}

func (rt *Runtime) reserve(name string) error {
	rt.joinMu.Lock()
	defer rt.joinMu.Unlock()
	if _, ok := rt.joining[name]; ok {
		return fmt.Errorf("room %q: join in progress: %w", name, ErrDuplicateKey)
	}
	if _, ok := rt.client.Rooms().Get(name); ok {
		return fmt.Errorf("room %q: %w", name, ErrDuplicateKey)
	}
	rt.joining[name] = struct{}{}
	return nil
}

func (rt *Runtime) unreserve(name string) {
	rt.joinMu.Lock()
	delete(rt.joining, name)
	rt.joinMu.Unlock()
}

// LeaveRoom stops the room's playbacks and releases its peers and media on
// the calling goroutine, which should be the host tick. Native events still
// queued for the room are dropped. The native room is freed in the
// background. RoomLeaveRequested is published right away and RoomLeft once
// the native room is gone.
func (rt *Runtime) LeaveRoom(name string) error {
	if err := rt.ready(); err != nil {
		return err
	}
	r, ok := rt.client.Rooms().Get(name)
	if !ok {
		return fmt.Errorf("room %q: %w", name, ErrNotFound)
	}

	rt.bridge.Publish(r, events.RoomLeaveRequested{Room: r})
	if _, err := rt.client.DetachRoom(name); err != nil {
		return err
	}
	rt.DestroyRoomPlaybacks(name)

	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		if err := r.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Runtime.LeaveRoom",
				"room":     name,
				"error":    err.Error(),
			}).Warn("Failed to free native room")
		}
		rt.bridge.Publish(nil, events.RoomLeft{Name: name})
	}()
	return nil
}

// UpdateUserData replaces the local user data in every joined room in the
// background. Each updated room reports a PeerUpdated for the own peer.
func (rt *Runtime) UpdateUserData(data []byte) error {
	if err := rt.ready(); err != nil {
		return err
	}
	if err := limits.ValidateUserData(data); err != nil {
		return err
	}
	data = append([]byte(nil), data...)

	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		if err := rt.client.UpdateUserData(rt.ctx, data); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Runtime.UpdateUserData",
				"error":    err.Error(),
			}).Warn("Failed to update user data")
		}
		if !rt.cfg.Events.PeerUpdated {
			return
		}
		for _, r := range rt.client.Rooms().Rooms() {
			if r.IsJoined() {
				rt.bridge.Publish(r, events.PeerUpdated{PeerID: r.OwnID(), UserData: data})
			}
		}
	}()
	return nil
}

// SendMessage sends data to the given peers of a room.
func (rt *Runtime) SendMessage(roomName string, peerIDs []uint64, data []byte) error {
	r, err := rt.lookup(roomName)
	if err != nil {
		return err
	}
	return r.SendMessage(peerIDs, data)
}

// BroadcastMessage sends data to every peer of a room.
func (rt *Runtime) BroadcastMessage(roomName string, data []byte) error {
	r, err := rt.lookup(roomName)
	if err != nil {
		return err
	}
	return r.BroadcastMessage(data)
}

func (rt *Runtime) lookup(name string) (*room.Room, error) {
	if err := rt.ready(); err != nil {
		return nil, err
	}
	r, ok := rt.client.Rooms().Get(name)
	if !ok {
		return nil, fmt.Errorf("room %q: %w", name, ErrNotFound)
	}
	return r, nil
}

// Room returns a room by name, or nil.
func (rt *Runtime) Room(name string) *room.Room {
	r, _ := rt.lookup(name)
	return r
}

// Rooms returns the joined rooms in join order.
func (rt *Runtime) Rooms() []*room.Room {
	if rt.ready() != nil {
		return nil
	}
	return rt.client.Rooms().Rooms()
}

// Peer returns a peer of a room, or nil.
func (rt *Runtime) Peer(roomName string, peerID uint64) *room.Peer {
	r := rt.Room(roomName)
	if r == nil {
		return nil
	}
	p, _ := r.Peer(peerID)
	return p
}

// Peers returns the peers of a room, including the local peer.
func (rt *Runtime) Peers(roomName string) []*room.Peer {
	r := rt.Room(roomName)
	if r == nil {
		return nil
	}
	return r.Peers.Values()
}

// Media returns a remote stream, or nil.
func (rt *Runtime) Media(roomName string, peerID uint64, mediaID uint16) *media.PlaybackStream {
	r := rt.Room(roomName)
	if r == nil {
		return nil
	}
	return r.PlaybackMedia(peerID, mediaID)
}

// MicrophoneStream returns the room's microphone, creating it if needed.
func (rt *Runtime) MicrophoneStream(roomName string) (*media.MicrophoneStream, error) {
	r, err := rt.lookup(roomName)
	if err != nil {
		return nil, err
	}
	return r.CreateMicrophone()
}

// OnCreatedMediaObject sets the hook run after every media-added side effect.
func (rt *Runtime) OnCreatedMediaObject(fn MediaObjectHook) {
	rt.hooksMu.Lock()
	rt.onCreated = fn
	rt.hooksMu.Unlock()
}

// OnDeleteMediaObject sets the hook run before every media-removed side effect.
func (rt *Runtime) OnDeleteMediaObject(fn MediaObjectHook) {
	rt.hooksMu.Lock()
	rt.onDeleted = fn
	rt.hooksMu.Unlock()
}

func (rt *Runtime) hooks() (created, deleted MediaObjectHook) {
	rt.hooksMu.RLock()
	defer rt.hooksMu.RUnlock()
	return rt.onCreated, rt.onDeleted
}

// Close stops every playback, waits for background operations, frees all
// rooms and shuts the engine down. It is idempotent.
func (rt *Runtime) Close() error {
	if rt.closed.Swap(true) {
		return nil
	}
	rt.DestroyAllPlaybacks()
	rt.cancel()
	rt.wg.Wait()

	if rt.client == nil {
		if rt.tokens != nil {
			return rt.tokens.Close()
		}
		return nil
	}
	err := rt.client.Close()
	logrus.WithFields(logrus.Fields{
		"function": "Runtime.Close",
	}).Info("Runtime closed")
	return err
}

// trace logs registry activity at info level when verbose is configured.
func (rt *Runtime) trace(fields logrus.Fields, msg string) {
	entry := logrus.WithFields(fields)
	if rt.cfg.Verbose {
		entry.Info(msg)
		return
	}
	entry.Debug(msg)
}

// listener forwards registry changes to the bridge, honoring the per-event
// toggles. Media side effects are emitted regardless of the toggles.
type listener struct {
	rt *Runtime
}

func (l listener) OnPeerJoined(r *room.Room, p *room.Peer) {
	l.rt.trace(logrus.Fields{"function": "OnPeerJoined", "room": r.Name(), "peer_id": p.ID}, "Peer joined")
	if l.rt.cfg.Events.PeerJoined {
		l.rt.bridge.Emit(r, events.PeerJoined{Peer: p})
	}
}

func (l listener) OnPeerUpdated(r *room.Room, peerID uint64, userData []byte) {
	l.rt.trace(logrus.Fields{"function": "OnPeerUpdated", "room": r.Name(), "peer_id": peerID}, "Peer updated user data")
	if l.rt.cfg.Events.PeerUpdated {
		l.rt.bridge.Emit(r, events.PeerUpdated{PeerID: peerID, UserData: userData})
	}
}

func (l listener) OnPeerLeft(r *room.Room, peerID uint64) {
	l.rt.trace(logrus.Fields{"function": "OnPeerLeft", "room": r.Name(), "peer_id": peerID}, "Peer left")
	if l.rt.cfg.Events.PeerLeft {
		l.rt.bridge.Emit(r, events.PeerLeft{PeerID: peerID})
	}
}

func (l listener) OnMediaAdded(r *room.Room, p *room.Peer, m *media.PlaybackStream) {
	l.rt.trace(logrus.Fields{"function": "OnMediaAdded", "room": r.Name(), "peer_id": p.ID, "media_id": m.ID()}, "Media added")
	l.rt.bridge.EmitMediaAdded(r, p, m, l.rt.cfg.Events.MediaAdded)
}

func (l listener) OnMediaRemoved(r *room.Room, p *room.Peer, mediaID uint16) {
	l.rt.trace(logrus.Fields{"function": "OnMediaRemoved", "room": r.Name(), "peer_id": p.ID, "media_id": mediaID}, "Media removed")
	l.rt.bridge.EmitMediaRemoved(r, p, p.ID, mediaID, l.rt.cfg.Events.MediaRemoved)
}

func (l listener) OnMessageReceived(r *room.Room, peerID uint64, data []byte) {
	l.rt.trace(logrus.Fields{"function": "OnMessageReceived", "room": r.Name(), "peer_id": peerID}, "Message received")
	if l.rt.cfg.Events.MessageReceived {
		l.rt.bridge.Emit(r, events.MessageReceived{PeerID: peerID, Data: data})
	}
}
