package events

import (
	"fmt"

	"github.com/opd-ai/odinbridge/media"
	"github.com/opd-ai/odinbridge/native"
	"github.com/opd-ai/odinbridge/room"
)

// Kind identifies a payload variant.
type Kind uint8

const (
	KindRoomJoinRequested Kind = iota + 1
	KindRoomJoined
	KindRoomLeaveRequested
	KindRoomLeft
	KindPeerJoined
	KindPeerUpdated
	KindPeerLeft
	KindMediaAdded
	KindMediaRemoved
	KindMessageReceived
	KindConnectionStateChanged
)

var kindNames = map[Kind]string{
	KindRoomJoinRequested:      "RoomJoinRequested",
	KindRoomJoined:             "RoomJoined",
	KindRoomLeaveRequested:     "RoomLeaveRequested",
	KindRoomLeft:               "RoomLeft",
	KindPeerJoined:             "PeerJoined",
	KindPeerUpdated:            "PeerUpdated",
	KindPeerLeft:               "PeerLeft",
	KindMediaAdded:             "MediaAdded",
	KindMediaRemoved:           "MediaRemoved",
	KindMessageReceived:        "MessageReceived",
	KindConnectionStateChanged: "ConnectionStateChanged",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is a known payload kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Payload is one typed event.
type Payload interface {
	Kind() Kind
}

// Envelope pairs a payload with the room it concerns. Origin is nil for
// process-wide events.
type Envelope struct {
	Origin  *room.Room
	Payload Payload
}

// RoomJoinRequested is published before the native join starts.
type RoomJoinRequested struct {
	Name string
}

// RoomJoined is published after the native join succeeded.
type RoomJoined struct {
	Room *room.Room
}

// RoomLeaveRequested is published before a room is torn down.
type RoomLeaveRequested struct {
	Room *room.Room
}

// RoomLeft is published after a room was torn down. The room object is gone,
// only its name remains.
type RoomLeft struct {
	Name string
}

// PeerJoined reports a new remote peer.
type PeerJoined struct {
	Peer *room.Peer
}

// PeerUpdated reports changed peer user data.
type PeerUpdated struct {
	PeerID   uint64
	UserData []byte
}

// PeerLeft reports a peer that left; its media were removed before.
type PeerLeft struct {
	PeerID uint64
}

// MediaAdded reports a new remote stream.
type MediaAdded struct {
	PeerID uint64
	Peer   *room.Peer
	Media  *media.PlaybackStream
}

// MediaRemoved reports a stream that is gone.
type MediaRemoved struct {
	PeerID  uint64
	MediaID uint16
	Peer    *room.Peer
}

// MessageReceived carries an arbitrary room message.
type MessageReceived struct {
	PeerID uint64
	Data   []byte
}

// ConnectionStateChanged reports the process-wide connection state.
type ConnectionStateChanged struct {
	State native.ConnectionState
}

func (RoomJoinRequested) Kind() Kind      { return KindRoomJoinRequested }
func (RoomJoined) Kind() Kind             { return KindRoomJoined }
func (RoomLeaveRequested) Kind() Kind     { return KindRoomLeaveRequested }
func (RoomLeft) Kind() Kind               { return KindRoomLeft }
func (PeerJoined) Kind() Kind             { return KindPeerJoined }
func (PeerUpdated) Kind() Kind            { return KindPeerUpdated }
func (PeerLeft) Kind() Kind               { return KindPeerLeft }
func (MediaAdded) Kind() Kind             { return KindMediaAdded }
func (MediaRemoved) Kind() Kind           { return KindMediaRemoved }
func (MessageReceived) Kind() Kind        { return KindMessageReceived }
func (ConnectionStateChanged) Kind() Kind { return KindConnectionStateChanged }
