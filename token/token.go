package token

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/config"
	"github.com/opd-ai/odinbridge/handle"
	"github.com/opd-ai/odinbridge/native"
)

// ErrInvalidToken indicates a token that failed verification.
var ErrInvalidToken = errors.New("invalid room token")

// Generator creates room tokens for a user.
type Generator interface {
	CreateToken(roomID, userID string) (string, error)
	Close() error
}

// Claims are the room token claims: the room and user ids plus the standard
// registered claims.
type Claims struct {
	RoomID string `json:"rid"`
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// NativeGenerator creates tokens through the engine's token generator.
type NativeGenerator struct {
	api native.API
	gen *handle.Handle
}

// NewNativeGenerator creates a native token generator for accessKey.
func NewNativeGenerator(api native.API, accessKey string) (*NativeGenerator, error) {
	gen, err := api.TokenGeneratorCreate(accessKey)
	if err != nil {
		return nil, fmt.Errorf("create token generator: %w", err)
	}
	return &NativeGenerator{api: api, gen: gen}, nil
}

// CreateToken implements Generator.
func (g *NativeGenerator) CreateToken(roomID, userID string) (string, error) {
	tok, err := g.api.TokenGeneratorCreateToken(g.gen, roomID, userID)
	if err != nil {
		return "", fmt.Errorf("create token for room %q: %w", roomID, err)
	}
	return tok, nil
}

// Close releases the native generator.
func (g *NativeGenerator) Close() error {
	return g.gen.Close()
}

// LocalGenerator signs EdDSA room tokens in process from the access key.
type LocalGenerator struct {
	key      ed25519.PrivateKey
	keyID    string
	lifetime time.Duration
	audience string
	now      func() time.Time
}

// Option configures a LocalGenerator.
type Option func(*LocalGenerator)

// WithLifetime sets how long issued tokens stay valid.
func WithLifetime(d time.Duration) Option {
	return func(g *LocalGenerator) {
		g.lifetime = d
	}
}

// WithAudience sets the aud claim.
func WithAudience(aud string) Option {
	return func(g *LocalGenerator) {
		g.audience = aud
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *LocalGenerator) {
		g.now = now
	}
}

// NewLocalGenerator derives a signing key from accessKey.
func NewLocalGenerator(accessKey string, opts ...Option) (*LocalGenerator, error) {
	key, err := signingKey(accessKey)
	if err != nil {
		return nil, err
	}

	g := &LocalGenerator{
		key:      key,
		keyID:    keyID(key.Public().(ed25519.PublicKey)),
		lifetime: config.DefaultTokenLifetime,
		audience: "gateway",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// KeyID identifies the public key that verifies this generator's tokens.
func (g *LocalGenerator) KeyID() string {
	return g.keyID
}

// CreateToken implements Generator.
func (g *LocalGenerator) CreateToken(roomID, userID string) (string, error) {
	now := g.now()
	claims := Claims{
		RoomID: roomID,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "connect",
			Audience:  jwt.ClaimStrings{g.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.lifetime)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = g.keyID

	signed, err := tok.SignedString(g.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "LocalGenerator.CreateToken",
		"room":     roomID,
		"user":     userID,
		"expires":  claims.ExpiresAt.Time,
	}).Debug("Created room token")

	return signed, nil
}

// Close implements Generator.
func (g *LocalGenerator) Close() error {
	return nil
}

// Parse verifies a token issued for accessKey and returns its claims.
func Parse(tokenString, accessKey string, opts ...jwt.ParserOption) (*Claims, error) {
	key, err := signingKey(accessKey)
	if err != nil {
		return nil, err
	}
	pub := key.Public().(ed25519.PublicKey)

	opts = append([]jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()})}, opts...)
	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if kid, ok := t.Header["kid"].(string); ok && kid != keyID(pub) {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return pub, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// signingKey uses the 32 bytes following the version byte as ed25519 seed.
func signingKey(accessKey string) (ed25519.PrivateKey, error) {
	raw, err := config.DecodeAccessKey(accessKey)
	if err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(raw[1 : 1+ed25519.SeedSize]), nil
}

func keyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}
