package room

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/media"
)

// Peer is a participant of a room, including the local client's own entry.
type Peer struct {
	ID       uint64
	RoomName string
	Media    *MediaCollection

	mu       sync.RWMutex
	userData []byte
}

// NewPeer creates a peer with a copy of userData.
func NewPeer(roomName string, id uint64, userData []byte) *Peer {
	return &Peer{
		ID:       id,
		RoomName: roomName,
		Media:    NewMediaCollection(),
		userData: append([]byte(nil), userData...),
	}
}

// UserData returns a copy of the peer's user data.
func (p *Peer) UserData() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]byte(nil), p.userData...)
}

// SetUserData replaces the peer's user data.
func (p *Peer) SetUserData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userData = append([]byte(nil), data...)
}

// Close frees every media the peer owns.
func (p *Peer) Close() {
	p.Media.FreeAll()
}

// PeerCollection holds the peers of one room by id.
type PeerCollection struct {
	*Ordered[uint64, *Peer]
}

// NewPeerCollection creates an empty collection.
func NewPeerCollection() *PeerCollection {
	return &PeerCollection{Ordered: NewOrdered[uint64, *Peer]()}
}

// Free removes a peer after freeing its media.
func (c *PeerCollection) Free(id uint64) error {
	p, err := c.Remove(id)
	if err != nil {
		return err
	}
	p.Close()
	return nil
}

// FreeAll frees every peer present when it is called.
func (c *PeerCollection) FreeAll() {
	for _, id := range c.Keys() {
		_ = c.Free(id)
	}
}

// MediaCollection holds the media of one peer by media id.
type MediaCollection struct {
	*Ordered[uint16, media.Media]
}

// NewMediaCollection creates an empty collection.
func NewMediaCollection() *MediaCollection {
	return &MediaCollection{Ordered: NewOrdered[uint16, media.Media]()}
}

// Free closes a media's native stream, then drops the entry.
func (c *MediaCollection) Free(id uint16) error {
	m, ok := c.Get(id)
	if !ok {
		_, err := c.Remove(id)
		return err
	}
	if err := m.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "MediaCollection.Free",
			"media_id": id,
			"error":    err.Error(),
		}).Warn("Failed to close media stream")
	}
	_, err := c.Remove(id)
	return err
}

// FreeAll frees every media present when it is called.
func (c *MediaCollection) FreeAll() {
	for _, id := range c.Keys() {
		_ = c.Free(id)
	}
}
