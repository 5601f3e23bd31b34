package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"grantify-client/internal/cache"
	"grantify-client/internal/interfaces"
)

// Ensure Credentials implements interfaces.CredentialProvider
var _ interfaces.CredentialProvider = (*Credentials)(nil)

const fingerprintLen = 12

// Credentials exposes the bearer credential of the external authentication
// collaborator. A nil token source means nobody is signed in.
type Credentials struct {
	source oauth2.TokenSource
	logger *zap.Logger
}

// NewCredentials wraps source so its token is reused until it expires
func NewCredentials(source oauth2.TokenSource, logger *zap.Logger) *Credentials {
	if source != nil {
		source = oauth2.ReuseTokenSource(nil, source)
	}
	return &Credentials{source: source, logger: logger}
}

// Authenticated reports whether a valid bearer credential is present
func (c *Credentials) Authenticated(ctx context.Context) bool {
	_, ok, err := c.AccessToken(ctx)
	return err == nil && ok
}

// AccessToken returns the bearer token; ok is false for anonymous callers
// and for expired credentials
func (c *Credentials) AccessToken(ctx context.Context) (string, bool, error) {
	if c.source == nil {
		return "", false, nil
	}
	tok, err := c.source.Token()
	if err != nil {
		return "", false, fmt.Errorf("failed to obtain bearer credential: %w", err)
	}
	if !tok.Valid() {
		return "", false, nil
	}
	return tok.AccessToken, true, nil
}

// Identity returns the cache identity marker of the current caller
func (c *Credentials) Identity(ctx context.Context) string {
	token, ok, err := c.AccessToken(ctx)
	if err != nil {
		c.logger.Warn("Falling back to anonymous identity", zap.Error(err))
		return cache.AnonymousIdentity
	}
	if !ok {
		return cache.AnonymousIdentity
	}
	return Fingerprint(token)
}

// Fingerprint derives a short stable marker from a bearer credential. JWTs
// are fingerprinted by subject so a refreshed token keeps its identity.
func Fingerprint(token string) string {
	material := token
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			material = sub
		}
	}
	sum := sha256.Sum256([]byte(material))
	return "u-" + hex.EncodeToString(sum[:])[:fingerprintLen]
}

// StaticSource turns a raw bearer credential into a token source. The expiry
// of a JWT is read from its exp claim; other credentials never expire.
func StaticSource(raw string) oauth2.TokenSource {
	if raw == "" {
		return nil
	}
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			tok.Expiry = exp.Time
		}
	}
	return oauth2.StaticTokenSource(tok)
}
