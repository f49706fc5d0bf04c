package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// An access key is base64 of 33 bytes: a version byte, 31 random bytes and a
// CRC-8 over the random bytes.
const (
	AccessKeyVersion = 0x01
	AccessKeyLength  = 33

	crcPolynomial = 0x31
	crcInit       = 0xff
)

// GenerateAccessKey creates a new random access key.
func GenerateAccessKey() (string, error) {
	key := make([]byte, AccessKeyLength)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate access key: %w", err)
	}
	key[0] = AccessKeyVersion
	key[AccessKeyLength-1] = crc8(key[1 : AccessKeyLength-1])
	return base64.StdEncoding.EncodeToString(key), nil
}

// DecodeAccessKey returns the raw bytes of a valid access key.
func DecodeAccessKey(accessKey string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(accessKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessKey, err)
	}
	if len(key) != AccessKeyLength {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrInvalidAccessKey, len(key), AccessKeyLength)
	}
	if key[0] != AccessKeyVersion {
		return nil, fmt.Errorf("%w: unknown version 0x%02x", ErrInvalidAccessKey, key[0])
	}
	if sum := crc8(key[1 : AccessKeyLength-1]); sum != key[AccessKeyLength-1] {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidAccessKey)
	}
	return key, nil
}

// ValidateAccessKey reports whether accessKey is well formed.
func ValidateAccessKey(accessKey string) error {
	_, err := DecodeAccessKey(accessKey)
	return err
}

func crc8(data []byte) byte {
	crc := byte(crcInit)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
