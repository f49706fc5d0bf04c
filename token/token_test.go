package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/odinbridge/config"
	"github.com/opd-ai/odinbridge/native/sim"
	"github.com/opd-ai/odinbridge/token"
)

func newKey(t *testing.T) string {
	t.Helper()
	key, err := config.GenerateAccessKey()
	require.NoError(t, err)
	return key
}

func TestLocalGeneratorRoundTrip(t *testing.T) {
	key := newKey(t)
	gen, err := token.NewLocalGenerator(key, token.WithLifetime(time.Minute), token.WithAudience("sfu"))
	require.NoError(t, err)
	defer gen.Close()

	tok, err := gen.CreateToken("lobby", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(tok, "."))

	claims, err := token.Parse(tok, key)
	require.NoError(t, err)
	assert.Equal(t, "lobby", claims.RoomID)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "connect", claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{"sfu"}, claims.Audience)
	assert.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestParseRejectsOtherKey(t *testing.T) {
	gen, err := token.NewLocalGenerator(newKey(t))
	require.NoError(t, err)
	tok, err := gen.CreateToken("lobby", "alice")
	require.NoError(t, err)

	_, err = token.Parse(tok, newKey(t))
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	key := newKey(t)
	past := time.Now().Add(-time.Hour)
	gen, err := token.NewLocalGenerator(key,
		token.WithLifetime(time.Minute),
		token.WithClock(func() time.Time { return past }))
	require.NoError(t, err)

	tok, err := gen.CreateToken("lobby", "alice")
	require.NoError(t, err)

	_, err = token.Parse(tok, key)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestNewLocalGeneratorRejectsBadKey(t *testing.T) {
	_, err := token.NewLocalGenerator("short")
	assert.ErrorIs(t, err, config.ErrInvalidAccessKey)
}

func TestKeyIDIsStablePerKey(t *testing.T) {
	key := newKey(t)
	a, err := token.NewLocalGenerator(key)
	require.NoError(t, err)
	b, err := token.NewLocalGenerator(key)
	require.NoError(t, err)
	assert.Equal(t, a.KeyID(), b.KeyID())
	assert.Len(t, a.KeyID(), 16)
}

func TestNativeGenerator(t *testing.T) {
	key := newKey(t)
	engine := sim.New()

	gen, err := token.NewNativeGenerator(engine, key)
	require.NoError(t, err)

	tok, err := gen.CreateToken("lobby", "bob")
	require.NoError(t, err)
	claims, err := token.Parse(tok, key)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.UserID)

	require.NoError(t, gen.Close())
	_, err = gen.CreateToken("lobby", "bob")
	assert.Error(t, err, "closed generator must not issue tokens")

	_, err = token.NewNativeGenerator(engine, "bogus")
	assert.Error(t, err)
}
