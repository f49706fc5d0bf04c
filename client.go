package odinbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/events"
	"github.com/opd-ai/odinbridge/limits"
	"github.com/opd-ai/odinbridge/media"
	"github.com/opd-ai/odinbridge/native"
	"github.com/opd-ai/odinbridge/room"
	"github.com/opd-ai/odinbridge/token"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// Endpoint is the gateway URL rooms connect to.
	Endpoint string
	// AccessKey is copied into every room's config snapshot.
	AccessKey string
	// UserData is the default local peer user data.
	UserData []byte
	// Tokens signs room tokens. Required.
	Tokens token.Generator
	// Listener receives registry changes of every room.
	Listener room.Listener

	Microphone media.Config
	Playback   media.Config

	// ForwardConnectionState publishes ConnectionStateChanged events.
	ForwardConnectionState bool
}

// Client owns the room registry of one native engine and routes the
// engine's callbacks into an event bridge.
type Client struct {
	api    native.API
	bridge *events.Bridge
	rooms  *room.Collection
	opts   ClientOptions

	mu       sync.Mutex
	userData []byte

	state   atomic.Uint32
	started atomic.Bool
	closed  atomic.Bool
}

// NewClient creates a client. The engine is not started yet.
func NewClient(api native.API, bridge *events.Bridge, opts ClientOptions) (*Client, error) {
	if api == nil {
		return nil, errors.New("odinbridge: nil native api")
	}
	if opts.Tokens == nil {
		return nil, errors.New("odinbridge: nil token generator")
	}
	if bridge == nil {
		bridge = events.NewBridge(nil)
	}
	if opts.Microphone == (media.Config{}) {
		opts.Microphone = media.DefaultConfig()
	}
	if opts.Playback == (media.Config{}) {
		opts.Playback = media.DefaultConfig()
	}

	c := &Client{
		api:      api,
		bridge:   bridge,
		rooms:    room.NewCollection(),
		opts:     opts,
		userData: append([]byte(nil), opts.UserData...),
	}
	c.state.Store(uint32(native.ConnectionDisconnected))
	return c, nil
}

// Startup starts the native engine. Calling it twice has no effect.
func (c *Client) Startup() error {
	if c.started.Load() {
		return nil
	}
	if err := c.api.Startup(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	c.started.Store(true)
	return nil
}

// Shutdown stops the native engine. Rooms are not freed; use Close for a
// full teardown.
func (c *Client) Shutdown() {
	if c.started.Swap(false) {
		c.api.Shutdown()
	}
}

// Bridge returns the event bridge the client posts to.
func (c *Client) Bridge() *events.Bridge {
	return c.bridge
}

// Rooms returns the room registry.
func (c *Client) Rooms() *room.Collection {
	return c.rooms
}

// ConnectionState returns the last process-wide state the engine reported.
func (c *Client) ConnectionState() native.ConnectionState {
	return native.ConnectionState(c.state.Load())
}

// UserData returns the default local peer user data.
func (c *Client) UserData() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.userData...)
}

// JoinRoom creates, configures and joins a room. It blocks on the native
// join. setup runs after the room exists and before the join starts; a
// setup error aborts the join. nil userData uses the client default.
//
// The room is registered before the join so that callbacks fired during
// the join resolve to it. On any failure it is unregistered and freed.
func (c *Client) JoinRoom(ctx context.Context, name, userID string, userData []byte, setup func(*room.Room) error) (*room.Room, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := limits.ValidateRoomName(name); err != nil {
		return nil, err
	}
	if _, ok := c.rooms.Get(name); ok {
		return nil, fmt.Errorf("room %q: %w", name, ErrDuplicateKey)
	}
	if userData == nil {
		userData = c.UserData()
	}

	r, err := room.New(c.api, room.Config{
		Name:       name,
		GatewayURL: c.opts.Endpoint,
		AccessKey:  c.opts.AccessKey,
		Microphone: c.opts.Microphone,
		Playback:   c.opts.Playback,
	}, c.opts.Listener)
	if err != nil {
		return nil, err
	}
	if err := c.rooms.Add(r); err != nil {
		_ = r.Close()
		return nil, err
	}

	fail := func(err error) (*room.Room, error) {
		c.rooms.FreeRoom(r)
		logrus.WithFields(logrus.Fields{
			"function": "Client.JoinRoom",
			"room":     name,
			"error":    err.Error(),
		}).Error("Room join failed")
		return nil, err
	}

	if err := r.SetEventCallback(c.OnEventReceived); err != nil {
		return fail(fmt.Errorf("set event callback for %q: %w", name, err))
	}
	if setup != nil {
		if err := setup(r); err != nil {
			return fail(fmt.Errorf("set up room %q: %w", name, err))
		}
	}

	tok, err := c.opts.Tokens.CreateToken(name, userID)
	if err != nil {
		return fail(err)
	}
	if err := r.Join(tok, userData); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	return r, nil
}

// LeaveRoom unregisters and tears down a room.
func (c *Client) LeaveRoom(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.rooms.Free(name)
}

// DetachRoom unregisters a room and releases its registry. Callbacks stop
// resolving to it and events still queued for it are dropped. The native
// room stays open until the caller closes the returned room.
func (c *Client) DetachRoom(name string) (*room.Room, error) {
	r, err := c.rooms.Remove(name)
	if err != nil {
		return nil, err
	}
	r.Release()
	return r, nil
}

// UpdateUserData replaces the default user data and pushes it to every
// joined room. Rooms that fail are reported together.
func (c *Client) UpdateUserData(ctx context.Context, data []byte) error {
	if err := limits.ValidateUserData(data); err != nil {
		return err
	}
	c.mu.Lock()
	c.userData = append([]byte(nil), data...)
	c.mu.Unlock()

	var errs []error
	for _, r := range c.rooms.Rooms() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.IsJoined() {
			continue
		}
		if err := r.UpdateUserData(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnEventReceived is the native event trampoline. It runs on the engine's
// worker thread, so it only decodes the event and hands it to the bridge.
func (c *Client) OnEventReceived(roomPtr, eventPtr, userDataPtr uintptr) {
	ev, err := c.api.DecodeEvent(eventPtr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.OnEventReceived",
			"room_ptr": fmt.Sprintf("0x%x", roomPtr),
			"error":    err.Error(),
		}).Warn("Dropping undecodable native event")
		return
	}

	if ev.Tag == native.EventConnectionStateChanged {
		prev := native.ConnectionState(c.state.Swap(uint32(ev.State)))
		logrus.WithFields(logrus.Fields{
			"function": "Client.OnEventReceived",
			"from":     prev.String(),
			"to":       ev.State.String(),
		}).Debug("Connection state changed")
		if c.opts.ForwardConnectionState && prev != ev.State {
			c.bridge.Publish(nil, events.ConnectionStateChanged{State: ev.State})
		}
		return
	}

	r, ok := c.rooms.ByPointer(roomPtr)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Client.OnEventReceived",
			"room_ptr": fmt.Sprintf("0x%x", roomPtr),
			"event":    ev.Tag.String(),
		}).Debug("Dropping event for unknown room")
		return
	}
	c.bridge.PostNative(r, ev)
}

// Close frees every room, releases the token generator and stops the
// engine. It is idempotent.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.rooms.FreeAll()
	err := c.opts.Tokens.Close()
	c.Shutdown()
	return err
}
