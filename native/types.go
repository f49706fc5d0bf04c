package native

import (
	"fmt"
	"strings"
)

// ConnectionState is the process-wide state of the native gateway connection.
type ConnectionState uint32

const (
	// ConnectionConnecting indicates a connection attempt is in progress
	ConnectionConnecting ConnectionState = iota
	// ConnectionConnected indicates the engine is connected
	ConnectionConnected
	// ConnectionDisconnecting indicates the engine is shutting a connection down
	ConnectionDisconnecting
	// ConnectionDisconnected indicates there is no connection
	ConnectionDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnecting:
		return "disconnecting"
	case ConnectionDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// EventTag identifies the variant of a native event.
type EventTag uint32

const (
	EventConnectionStateChanged EventTag = iota
	EventPeerJoined
	EventPeerLeft
	EventPeerUserDataChanged
	EventMediaAdded
	EventMediaRemoved
	EventMessageReceived
)

func (t EventTag) String() string {
	switch t {
	case EventConnectionStateChanged:
		return "ConnectionStateChanged"
	case EventPeerJoined:
		return "PeerJoined"
	case EventPeerLeft:
		return "PeerLeft"
	case EventPeerUserDataChanged:
		return "PeerUserDataChanged"
	case EventMediaAdded:
		return "MediaAdded"
	case EventMediaRemoved:
		return "MediaRemoved"
	case EventMessageReceived:
		return "MessageReceived"
	default:
		return fmt.Sprintf("EventTag(%d)", uint32(t))
	}
}

// Event is a native event after it was copied out of native memory.
// Byte slices are owned by the Go side and stay valid after the callback
// returns.
type Event struct {
	Tag EventTag

	// ConnectionStateChanged
	State ConnectionState

	// Peer and media events
	PeerID  uint64
	MediaID uint16

	// Stream is the native media stream pointer carried by MediaAdded.
	Stream uintptr

	// UserData for PeerJoined / PeerUserDataChanged, payload for MessageReceived.
	Data []byte
}

// EventCallback is the fixed-signature trampoline the engine invokes from its
// worker thread: (room pointer, event pointer, user data pointer).
type EventCallback func(room, event, userData uintptr)

// NoiseSuppressionLevel selects the strength of the native noise suppressor.
type NoiseSuppressionLevel int32

const (
	NoiseSuppressionNone NoiseSuppressionLevel = iota
	NoiseSuppressionLow
	NoiseSuppressionModerate
	NoiseSuppressionHigh
	NoiseSuppressionVeryHigh
)

func (l NoiseSuppressionLevel) String() string {
	switch l {
	case NoiseSuppressionNone:
		return "none"
	case NoiseSuppressionLow:
		return "low"
	case NoiseSuppressionModerate:
		return "moderate"
	case NoiseSuppressionHigh:
		return "high"
	case NoiseSuppressionVeryHigh:
		return "very_high"
	default:
		return fmt.Sprintf("NoiseSuppressionLevel(%d)", int32(l))
	}
}

// ParseNoiseSuppressionLevel accepts the names produced by String.
// An empty string maps to NoiseSuppressionNone.
func ParseNoiseSuppressionLevel(s string) (NoiseSuppressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return NoiseSuppressionNone, nil
	case "low":
		return NoiseSuppressionLow, nil
	case "moderate":
		return NoiseSuppressionModerate, nil
	case "high":
		return NoiseSuppressionHigh, nil
	case "very_high", "veryhigh":
		return NoiseSuppressionVeryHigh, nil
	default:
		return NoiseSuppressionNone, fmt.Errorf("unknown noise suppression level %q", s)
	}
}

// APMConfig toggles the engine's audio processing module for a room.
type APMConfig struct {
	VoiceActivityDetection bool
	EchoCanceller          bool
	HighPassFilter         bool
	PreAmplifier           bool
	NoiseSuppression       NoiseSuppressionLevel
	TransientSuppressor    bool
}

// words lays the config out as the 12-byte C struct
// {bool, bool, bool, bool, int32, bool} and returns it as the two
// eightbytes used to pass it by value.
func (c APMConfig) words() (lo, hi uint64) {
	lo = boolByte(c.VoiceActivityDetection) |
		boolByte(c.EchoCanceller)<<8 |
		boolByte(c.HighPassFilter)<<16 |
		boolByte(c.PreAmplifier)<<24 |
		uint64(uint32(c.NoiseSuppression))<<32
	hi = boolByte(c.TransientSuppressor)
	return lo, hi
}

// AudioStreamConfig describes a native audio stream.
type AudioStreamConfig struct {
	SampleRate uint32
	Channels   uint8
}

// word lays the config out as the C struct {uint32, uint8}.
func (c AudioStreamConfig) word() uint64 {
	return uint64(c.SampleRate) | uint64(c.Channels)<<32
}

func boolByte(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
