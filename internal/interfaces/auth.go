package interfaces

import "context"

//go:generate mockgen -package=mock -source=auth.go -destination=mock/auth.go

// TokenProvider hands out a cached short-lived token
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops the cached token so the next call fetches a new one
	Invalidate()
}

// Authenticator reports whether the current user holds a bearer credential
type Authenticator interface {
	Authenticated(ctx context.Context) bool
}

// CredentialProvider supplies the bearer credential and the identity marker
// used to partition cache keys
type CredentialProvider interface {
	Authenticator
	// AccessToken returns the bearer token, ok is false for anonymous callers
	AccessToken(ctx context.Context) (token string, ok bool, err error)
	// Identity returns "anon" or a truncated fingerprint of the credential
	Identity(ctx context.Context) string
}
