package native

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsError(t *testing.T) {
	tests := []struct {
		name string
		code int32
		want bool
	}{
		{"zero", 0, false},
		{"positive count", 960, false},
		{"largest non error", 1<<29 - 1, false},
		{"error bit", 1 << 29, true},
		{"negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsError(tt.code); got != tt.want {
				t.Errorf("IsError(%d) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestCallErrorMatchesSentinel(t *testing.T) {
	var err error = &CallError{Op: "odin_room_join", Code: -1, Message: "invalid token"}
	wrapped := fmt.Errorf("join lobby: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNativeCallFailed))
	assert.Contains(t, err.Error(), "invalid token")
	assert.Contains(t, err.Error(), "0xffffffff")

	var callErr *CallError
	require.True(t, errors.As(wrapped, &callErr))
	assert.Equal(t, "odin_room_join", callErr.Op)

	bare := &CallError{Op: "odin_audio_read_data", Code: 1 << 29}
	assert.Equal(t, "odin_audio_read_data: native error 0x20000000", bare.Error())
}

func TestParseNoiseSuppressionLevel(t *testing.T) {
	for _, level := range []NoiseSuppressionLevel{
		NoiseSuppressionNone,
		NoiseSuppressionLow,
		NoiseSuppressionModerate,
		NoiseSuppressionHigh,
		NoiseSuppressionVeryHigh,
	} {
		parsed, err := ParseNoiseSuppressionLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, parsed)
	}

	parsed, err := ParseNoiseSuppressionLevel("  HIGH ")
	require.NoError(t, err)
	assert.Equal(t, NoiseSuppressionHigh, parsed)

	_, err = ParseNoiseSuppressionLevel("extreme")
	assert.Error(t, err)
}

func TestAPMConfigWords(t *testing.T) {
	cfg := APMConfig{
		VoiceActivityDetection: true,
		EchoCanceller:          false,
		HighPassFilter:         true,
		PreAmplifier:           false,
		NoiseSuppression:       NoiseSuppressionHigh,
		TransientSuppressor:    true,
	}

	lo, hi := cfg.words()
	assert.Equal(t, uint64(0x0000_0003_0001_0001), lo)
	assert.Equal(t, uint64(1), hi)

	lo, hi = APMConfig{}.words()
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func TestAudioStreamConfigWord(t *testing.T) {
	w := AudioStreamConfig{SampleRate: 48000, Channels: 2}.word()
	assert.Equal(t, uint64(48000)|uint64(2)<<32, w)
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "connected", ConnectionConnected.String())
	assert.Equal(t, "unknown(9)", ConnectionState(9).String())
	assert.Equal(t, "MediaAdded", EventMediaAdded.String())
	assert.Equal(t, "EventTag(42)", EventTag(42).String())
}
