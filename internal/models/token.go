package models

import "time"

// CredentialToken is a short-lived security token
type CredentialToken struct {
	Value     string
	ExpiresAt time.Time
}

// ValidAt reports whether the token may be used at now, keeping skew of
// headroom before the expiry. A token is never valid once now >= ExpiresAt.
func (t CredentialToken) ValidAt(now time.Time, skew time.Duration) bool {
	if t.Value == "" {
		return false
	}
	return now.Add(skew).Before(t.ExpiresAt)
}

// TokenResponse is the body of the anti-forgery token endpoint
type TokenResponse struct {
	Token            string `json:"token"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}
