package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"grantify-client/internal/cache"
)

func nopLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t)
}

func signedJWT(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("refresh token revoked")
}

func TestCredentials_Anonymous(t *testing.T) {
	creds := NewCredentials(nil, nopLogger(t))
	ctx := context.Background()

	assert.False(t, creds.Authenticated(ctx))
	token, ok, err := creds.AccessToken(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.Equal(t, cache.AnonymousIdentity, creds.Identity(ctx))
}

func TestCredentials_StaticJWT(t *testing.T) {
	raw := signedJWT(t, "user-42", time.Now().Add(time.Hour))
	creds := NewCredentials(StaticSource(raw), nopLogger(t))
	ctx := context.Background()

	assert.True(t, creds.Authenticated(ctx))
	token, ok, err := creds.AccessToken(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, raw, token)

	identity := creds.Identity(ctx)
	assert.Equal(t, Fingerprint(raw), identity)
	assert.Len(t, identity, 2+fingerprintLen)
	assert.NotContains(t, identity, ":")
}

func TestCredentials_ExpiredJWT(t *testing.T) {
	raw := signedJWT(t, "user-42", time.Now().Add(-time.Minute))
	creds := NewCredentials(StaticSource(raw), nopLogger(t))

	assert.False(t, creds.Authenticated(context.Background()))
	assert.Equal(t, cache.AnonymousIdentity, creds.Identity(context.Background()))
}

func TestCredentials_SourceError(t *testing.T) {
	creds := NewCredentials(failingSource{}, nopLogger(t))
	ctx := context.Background()

	_, _, err := creds.AccessToken(ctx)
	require.Error(t, err)
	assert.False(t, creds.Authenticated(ctx))
	assert.Equal(t, cache.AnonymousIdentity, creds.Identity(ctx))
}

func TestFingerprint(t *testing.T) {
	// A refreshed JWT of the same subject keeps its identity
	first := signedJWT(t, "user-42", time.Now().Add(time.Hour))
	second := signedJWT(t, "user-42", time.Now().Add(2*time.Hour))
	other := signedJWT(t, "user-7", time.Now().Add(time.Hour))

	assert.NotEqual(t, first, second)
	assert.Equal(t, Fingerprint(first), Fingerprint(second))
	assert.NotEqual(t, Fingerprint(first), Fingerprint(other))

	// Opaque credentials are fingerprinted whole
	assert.Equal(t, "u-84d3f23da9b5", Fingerprint("opaque-token"))
	assert.NotEqual(t, Fingerprint("opaque-a"), Fingerprint("opaque-b"))
}

func TestStaticSource(t *testing.T) {
	assert.Nil(t, StaticSource(""))

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok, err := StaticSource(signedJWT(t, "user-42", exp)).Token()
	require.NoError(t, err)
	assert.True(t, tok.Expiry.Equal(exp))

	opaque, err := StaticSource("opaque").Token()
	require.NoError(t, err)
	assert.True(t, opaque.Expiry.IsZero())
	assert.True(t, opaque.Valid())
}
