package odinbridge

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/events"
	"github.com/opd-ai/odinbridge/playback"
)

func (rt *Runtime) playbackConfig() playback.Config {
	p := rt.cfg.Playback
	return playback.Config{
		PacketSize:     p.PacketSize,
		Lookahead:      p.Lookahead,
		BufferLength:   p.BufferLength,
		FlushDelay:     p.FlushDelay,
		FlushInterval:  p.FlushInterval,
		CheckStatus:    p.CheckStatus,
		StatusDelay:    p.StatusDelay,
		StatusInterval: p.StatusInterval,
	}
}

// AddPlayback creates and starts a playback for a remote stream. The stream
// does not have to exist yet: the playback stays silent until the matching
// media is added.
func (rt *Runtime) AddPlayback(roomName string, peerID uint64, mediaID uint16) (*playback.Playback, error) {
	r, err := rt.lookup(roomName)
	if err != nil {
		return nil, err
	}
	key := playback.Key{Room: roomName, PeerID: peerID, MediaID: mediaID}

	var src playback.Source
	if m := r.PlaybackMedia(peerID, mediaID); m != nil {
		src = m
	}
	return rt.startPlayback(key, src)
}

func (rt *Runtime) startPlayback(key playback.Key, src playback.Source) (*playback.Playback, error) {
	p := playback.New(key, src, rt.playbackConfig())
	p.OnPlayingStatusChanged(func(p *playback.Playback, playing bool) {
		rt.trace(logrus.Fields{
			"function": "Playback.Status",
			"playback": p.Key().String(),
			"playing":  playing,
		}, "Playback status changed")
	})
	if err := rt.playbacks.Add(p); err != nil {
		return nil, fmt.Errorf("playback %s: %w", key, err)
	}
	p.Start(rt.ctx)
	if rt.mixer != nil {
		rt.mixer.Add(p)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Runtime.startPlayback",
		"playback": key.String(),
	}).Info("Playback created")
	return p, nil
}

// Playback returns the playback of a remote stream, or nil.
func (rt *Runtime) Playback(roomName string, peerID uint64, mediaID uint16) *playback.Playback {
	p, _ := rt.playbacks.Get(playback.Key{Room: roomName, PeerID: peerID, MediaID: mediaID})
	return p
}

// Playbacks returns every live playback in creation order.
func (rt *Runtime) Playbacks() []*playback.Playback {
	return rt.playbacks.All()
}

// DestroyPlayback stops and removes one playback.
func (rt *Runtime) DestroyPlayback(roomName string, peerID uint64, mediaID uint16) bool {
	return rt.destroyPlaybacks(func(k playback.Key) bool {
		return k.Room == roomName && k.PeerID == peerID && k.MediaID == mediaID
	}) > 0
}

// DestroyPeerPlaybacks stops and removes every playback of a peer.
func (rt *Runtime) DestroyPeerPlaybacks(roomName string, peerID uint64) int {
	return rt.destroyPlaybacks(func(k playback.Key) bool {
		return k.Room == roomName && k.PeerID == peerID
	})
}

// DestroyRoomPlaybacks stops and removes every playback of a room.
func (rt *Runtime) DestroyRoomPlaybacks(roomName string) int {
	return rt.destroyPlaybacks(func(k playback.Key) bool {
		return k.Room == roomName
	})
}

// DestroyAllPlaybacks stops and removes every playback.
func (rt *Runtime) DestroyAllPlaybacks() int {
	return rt.destroyPlaybacks(func(playback.Key) bool { return true })
}

func (rt *Runtime) destroyPlaybacks(match func(playback.Key) bool) int {
	if rt.mixer != nil {
		for _, p := range rt.playbacks.All() {
			if match(p.Key()) {
				rt.mixer.Remove(p)
			}
		}
	}
	return rt.playbacks.DestroyMatching(match)
}

// onMediaAdded runs on the tick goroutine before generic listeners. A
// playback added ahead of the media picks up the new stream; otherwise one
// is created for remote media when configured.
func (rt *Runtime) onMediaAdded(a events.MediaAddedAction) {
	key := playback.Key{Room: a.Room.Name(), PeerID: a.PeerID, MediaID: a.MediaID}
	if a.Room.IsClosed() {
		return
	}

	switch p, ok := rt.playbacks.Get(key); {
	case ok:
		p.SetSource(a.Media)
	case rt.cfg.Playback.Create && a.PeerID != a.Room.OwnID():
		if _, err := rt.startPlayback(key, a.Media); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Runtime.onMediaAdded",
				"playback": key.String(),
				"error":    err.Error(),
			}).Warn("Failed to create playback")
		}
	default:
		rt.trace(logrus.Fields{
			"function": "Runtime.onMediaAdded",
			"playback": key.String(),
		}, "No playback consumer for media")
	}

	if created, _ := rt.hooks(); created != nil {
		created(key.Room, key.PeerID, key.MediaID)
	}
}

// onMediaRemoved runs on the tick goroutine before generic listeners.
func (rt *Runtime) onMediaRemoved(a events.MediaRemovedAction) {
	key := playback.Key{Room: a.Room.Name(), PeerID: a.PeerID, MediaID: a.MediaID}

	if _, deleted := rt.hooks(); deleted != nil {
		deleted(key.Room, key.PeerID, key.MediaID)
	}
	if !rt.DestroyPlayback(key.Room, key.PeerID, key.MediaID) && rt.cfg.Playback.Create {
		rt.trace(logrus.Fields{
			"function": "Runtime.onMediaRemoved",
			"playback": key.String(),
		}, "No playback to destroy for media")
	}
}
