package room

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/handle"
	"github.com/opd-ai/odinbridge/limits"
	"github.com/opd-ai/odinbridge/media"
	"github.com/opd-ai/odinbridge/native"
)

// Config is the snapshot a room copies from the client configuration when
// the join is requested.
type Config struct {
	Name       string
	GatewayURL string
	AccessKey  string
	APM        native.APMConfig

	// Microphone is the format of the local input stream.
	Microphone media.Config
	// Playback is the format remote streams are decoded to.
	Playback media.Config
}

// Listener is notified of registry changes made by HandleEvent. Calls happen
// on the goroutine that runs HandleEvent.
type Listener interface {
	OnPeerJoined(r *Room, p *Peer)
	OnPeerUpdated(r *Room, peerID uint64, userData []byte)
	OnPeerLeft(r *Room, peerID uint64)
	OnMediaAdded(r *Room, p *Peer, m *media.PlaybackStream)
	OnMediaRemoved(r *Room, p *Peer, mediaID uint16)
	OnMessageReceived(r *Room, peerID uint64, data []byte)
}

// NopListener ignores every notification. Embed it to implement a subset.
type NopListener struct{}

func (NopListener) OnPeerJoined(*Room, *Peer)                        {}
func (NopListener) OnPeerUpdated(*Room, uint64, []byte)              {}
func (NopListener) OnPeerLeft(*Room, uint64)                         {}
func (NopListener) OnMediaAdded(*Room, *Peer, *media.PlaybackStream) {}
func (NopListener) OnMediaRemoved(*Room, *Peer, uint16)              {}
func (NopListener) OnMessageReceived(*Room, uint64, []byte)          {}

// Room is one joined (or joining) ODIN room and everything live in it.
type Room struct {
	api    native.API
	cfg    Config
	h      *handle.Handle
	joined atomic.Bool
	closed atomic.Bool
	ownID  atomic.Uint64

	// regMu serializes registry mutation by HandleEvent, Join and Release.
	regMu sync.Mutex

	// Peers holds remote peers and the local client's own entry.
	Peers *PeerCollection

	mu       sync.Mutex
	mic      *media.MicrophoneStream
	listener Listener
}

// New creates the native room. The room is not joined yet.
func New(api native.API, cfg Config, listener Listener) (*Room, error) {
	if err := limits.ValidateRoomName(cfg.Name); err != nil {
		return nil, err
	}
	h, err := api.RoomCreate()
	if err != nil {
		return nil, fmt.Errorf("create room %q: %w", cfg.Name, err)
	}
	if listener == nil {
		listener = NopListener{}
	}
	return &Room{
		api:      api,
		cfg:      cfg,
		h:        h,
		Peers:    NewPeerCollection(),
		listener: listener,
	}, nil
}

// Name returns the room's primary key.
func (r *Room) Name() string {
	return r.cfg.Name
}

// Config returns the configuration snapshot.
func (r *Room) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Handle returns the native room handle.
func (r *Room) Handle() *handle.Handle {
	return r.h
}

// Pointer returns the native pointer used to route callbacks to this room.
func (r *Room) Pointer() uintptr {
	return r.h.Pointer()
}

// IsJoined reports whether the native join succeeded and the room is open.
func (r *Room) IsJoined() bool {
	return r.joined.Load()
}

// IsClosed reports whether the room was released.
func (r *Room) IsClosed() bool {
	return r.closed.Load()
}

// OwnID returns the local peer id assigned on join.
func (r *Room) OwnID() uint64 {
	return r.ownID.Load()
}

// SetListener replaces the registry listener.
func (r *Room) SetListener(l Listener) {
	if l == nil {
		l = NopListener{}
	}
	r.mu.Lock()
	r.listener = l
	r.mu.Unlock()
}

func (r *Room) notify() Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listener
}

// SetAPMConfig applies audio processing settings to the native room.
func (r *Room) SetAPMConfig(cfg native.APMConfig) error {
	if err := r.api.RoomConfigureAPM(r.h, cfg); err != nil {
		return fmt.Errorf("configure apm for room %q: %w", r.cfg.Name, err)
	}
	r.mu.Lock()
	r.cfg.APM = cfg
	r.mu.Unlock()
	return nil
}

// SetEventCallback registers the native event trampoline for this room.
func (r *Room) SetEventCallback(cb native.EventCallback) error {
	return r.api.RoomSetEventCallback(r.h, cb)
}

// Join connects the room. It blocks on network I/O and must not run on the
// tick goroutine. On success the local client's own peer entry is created.
func (r *Room) Join(token string, userData []byte) error {
	if err := limits.ValidateUserData(userData); err != nil {
		return err
	}
	if r.IsClosed() {
		return fmt.Errorf("join room %q: %w", r.cfg.Name, ErrClosed)
	}
	ownID, err := r.api.RoomJoin(r.h, r.cfg.GatewayURL, token, userData)
	if err != nil {
		return fmt.Errorf("join room %q: %w", r.cfg.Name, err)
	}

	r.regMu.Lock()
	if r.IsClosed() {
		r.regMu.Unlock()
		return fmt.Errorf("join room %q: %w", r.cfg.Name, ErrClosed)
	}
	r.ownID.Store(ownID)
	if !r.Peers.Contains(ownID) {
		_ = r.Peers.Add(ownID, NewPeer(r.cfg.Name, ownID, userData))
	}
	r.joined.Store(true)
	r.regMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Room.Join",
		"room":     r.cfg.Name,
		"own_id":   ownID,
	}).Info("Joined room")
	return nil
}

// CreateMicrophone creates the room's local input stream, or returns the
// existing one.
func (r *Room) CreateMicrophone() (*media.MicrophoneStream, error) {
	if !r.IsJoined() {
		return nil, fmt.Errorf("create microphone in %q: %w", r.cfg.Name, ErrNotJoined)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mic != nil {
		return r.mic, nil
	}

	mic, err := media.NewMicrophone(r.api, r.cfg.Microphone)
	if err != nil {
		return nil, err
	}
	if err := mic.AddToRoom(r.h); err != nil {
		_ = mic.Close()
		return nil, err
	}
	r.mic = mic
	return mic, nil
}

// Microphone returns the local input stream, or nil.
func (r *Room) Microphone() *media.MicrophoneStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mic
}

// UpdateUserData replaces the local peer's user data.
func (r *Room) UpdateUserData(data []byte) error {
	if err := limits.ValidateUserData(data); err != nil {
		return err
	}
	if !r.IsJoined() {
		return fmt.Errorf("update user data in %q: %w", r.cfg.Name, ErrNotJoined)
	}
	if err := r.api.RoomUpdateUserData(r.h, data); err != nil {
		return fmt.Errorf("update user data in %q: %w", r.cfg.Name, err)
	}
	if p, ok := r.Peers.Get(r.OwnID()); ok {
		p.SetUserData(data)
	}
	return nil
}

// SendMessage sends data to the given peers.
func (r *Room) SendMessage(peerIDs []uint64, data []byte) error {
	if err := limits.ValidateMessage(data, peerIDs); err != nil {
		return err
	}
	if !r.IsJoined() {
		return fmt.Errorf("send message in %q: %w", r.cfg.Name, ErrNotJoined)
	}
	if err := r.api.RoomSendMessage(r.h, peerIDs, data); err != nil {
		return fmt.Errorf("send message in %q: %w", r.cfg.Name, err)
	}
	return nil
}

// BroadcastMessage sends data to every peer in the room.
func (r *Room) BroadcastMessage(data []byte) error {
	return r.SendMessage(nil, data)
}

// Peer returns a registered peer.
func (r *Room) Peer(id uint64) (*Peer, bool) {
	return r.Peers.Get(id)
}

// PlaybackMedia looks up a remote stream. It returns nil both when the peer
// or media does not exist yet and when the id names a non-playback stream.
func (r *Room) PlaybackMedia(peerID uint64, mediaID uint16) *media.PlaybackStream {
	p, ok := r.Peers.Get(peerID)
	if !ok {
		return nil
	}
	m, ok := p.Media.Get(mediaID)
	if !ok {
		return nil
	}
	pb, _ := m.(*media.PlaybackStream)
	return pb
}

// HandleEvent applies a native event to the registry and notifies the
// listener. It must run on the tick goroutine. A released room rejects every
// event with ErrClosed and frees the stream a MediaAdded carries.
func (r *Room) HandleEvent(ev native.Event) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	if r.IsClosed() {
		if ev.Tag == native.EventMediaAdded && ev.Stream != 0 {
			_ = r.api.MediaStream(ev.Stream).Close()
		}
		return fmt.Errorf("%s event for %q: %w", ev.Tag, r.cfg.Name, ErrClosed)
	}
	if err := limits.ValidateProcessingBuffer(ev.Data); err != nil {
		return fmt.Errorf("%s event: %w", ev.Tag, err)
	}
	l := r.notify()

	switch ev.Tag {
	case native.EventPeerJoined:
		if p, ok := r.Peers.Get(ev.PeerID); ok {
			p.SetUserData(ev.Data)
			return nil
		}
		p := NewPeer(r.cfg.Name, ev.PeerID, ev.Data)
		if err := r.Peers.Add(ev.PeerID, p); err != nil {
			return err
		}
		l.OnPeerJoined(r, p)

	case native.EventPeerUserDataChanged:
		p, ok := r.Peers.Get(ev.PeerID)
		if !ok {
			return fmt.Errorf("user data for peer %d: %w", ev.PeerID, ErrNotFound)
		}
		p.SetUserData(ev.Data)
		l.OnPeerUpdated(r, ev.PeerID, p.UserData())

	case native.EventPeerLeft:
		p, err := r.Peers.Remove(ev.PeerID)
		if err != nil {
			return err
		}
		for _, id := range p.Media.Keys() {
			_ = p.Media.Free(id)
			l.OnMediaRemoved(r, p, id)
		}
		l.OnPeerLeft(r, ev.PeerID)

	case native.EventMediaAdded:
		h := r.api.MediaStream(ev.Stream)
		p, ok := r.Peers.Get(ev.PeerID)
		if !ok {
			_ = h.Close()
			return fmt.Errorf("media %d of peer %d: %w", ev.MediaID, ev.PeerID, ErrNotFound)
		}
		stream := media.NewPlaybackStream(r.api, h, ev.PeerID, ev.MediaID, r.cfg.Playback)
		if err := p.Media.Add(ev.MediaID, stream); err != nil {
			_ = stream.Close()
			return err
		}
		l.OnMediaAdded(r, p, stream)

	case native.EventMediaRemoved:
		p, ok := r.Peers.Get(ev.PeerID)
		if !ok {
			return fmt.Errorf("media %d of peer %d: %w", ev.MediaID, ev.PeerID, ErrNotFound)
		}
		if err := p.Media.Free(ev.MediaID); err != nil {
			return err
		}
		l.OnMediaRemoved(r, p, ev.MediaID)

	case native.EventMessageReceived:
		l.OnMessageReceived(r, ev.PeerID, ev.Data)

	case native.EventConnectionStateChanged:
		// process-wide, handled by the client

	default:
		return fmt.Errorf("%w: tag %d", native.ErrUnknownEvent, uint32(ev.Tag))
	}
	return nil
}

// Release marks the room closed and frees its registry inside-out: every
// peer's media, the peers and the microphone. The native room stays open
// until Close. Release is idempotent.
func (r *Room) Release() {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	if r.closed.Swap(true) {
		return
	}
	r.joined.Store(false)
	r.Peers.FreeAll()

	r.mu.Lock()
	mic := r.mic
	r.mic = nil
	r.mu.Unlock()
	if mic != nil {
		if err := mic.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Room.Release",
				"room":     r.cfg.Name,
				"error":    err.Error(),
			}).Warn("Failed to close microphone")
		}
	}
}

// Close releases the room and then frees the native room. It is idempotent.
func (r *Room) Close() error {
	r.Release()
	return r.h.Close()
}
