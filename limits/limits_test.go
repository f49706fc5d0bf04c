package limits

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSize(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		max     int
		wantErr error
	}{
		{"empty", nil, 10, ErrEmpty},
		{"within", []byte("abc"), 10, nil},
		{"exact", make([]byte, 10), 10, nil},
		{"over", make([]byte, 11), 10, ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSize(tt.data, tt.max)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateSize() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSize() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRoomName(t *testing.T) {
	assert.NoError(t, ValidateRoomName("lobby"))
	assert.ErrorIs(t, ValidateRoomName(""), ErrEmpty)
	assert.ErrorIs(t, ValidateRoomName(strings.Repeat("r", MaxRoomName+1)), ErrTooLarge)
	assert.ErrorIs(t, ValidateRoomName("bad\xff"), ErrInvalidName)
}

func TestValidateUserData(t *testing.T) {
	assert.NoError(t, ValidateUserData(nil), "empty user data is allowed")
	assert.NoError(t, ValidateUserData(make([]byte, MaxUserData)))
	assert.ErrorIs(t, ValidateUserData(make([]byte, MaxUserData+1)), ErrTooLarge)
}

func TestValidateMessage(t *testing.T) {
	assert.NoError(t, ValidateMessage([]byte("hi"), nil))
	assert.ErrorIs(t, ValidateMessage(nil, nil), ErrEmpty)
	assert.ErrorIs(t, ValidateMessage(make([]byte, MaxMessage+1), nil), ErrTooLarge)
	assert.ErrorIs(t, ValidateMessage([]byte("hi"), make([]uint64, MaxMessageRecipients+1)), ErrTooLarge)
}

func TestValidateProcessingBuffer(t *testing.T) {
	assert.NoError(t, ValidateProcessingBuffer(nil))
	assert.ErrorIs(t, ValidateProcessingBuffer(make([]byte, MaxProcessingBuffer+1)), ErrTooLarge)
}
