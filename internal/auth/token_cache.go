package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"grantify-client/internal/interfaces"
	"grantify-client/internal/metrics"
	"grantify-client/internal/models"
)

// Ensure TokenCache implements interfaces.TokenProvider
var _ interfaces.TokenProvider = (*TokenCache)(nil)

const refreshKey = "refresh"

// FetchFunc obtains a new token from its issuer
type FetchFunc func(ctx context.Context) (models.CredentialToken, error)

// TokenCache holds one short-lived token and refreshes it shortly before it
// expires. Concurrent callers needing a refresh share a single fetch.
type TokenCache struct {
	name   string
	fetch  FetchFunc
	skew   time.Duration
	clock  clock.Clock
	logger *zap.Logger

	mu         sync.Mutex
	token      models.CredentialToken
	generation uint64
	group      singleflight.Group
}

// NewTokenCache creates a cache for the token named name (used in logs and
// metrics). skew is the headroom kept before expiry.
func NewTokenCache(name string, fetch FetchFunc, skew time.Duration, clk clock.Clock, logger *zap.Logger) *TokenCache {
	if clk == nil {
		clk = clock.New()
	}
	return &TokenCache{
		name:   name,
		fetch:  fetch,
		skew:   skew,
		clock:  clk,
		logger: logger,
	}
}

// Token returns the cached token, fetching a new one when it is missing or
// about to expire
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token.ValidAt(c.clock.Now(), c.skew) {
		value := c.token.Value
		c.mu.Unlock()
		return value, nil
	}
	generation := c.generation
	c.mu.Unlock()

	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		// Callers may give up waiting; the fetch itself outlives them
		return c.refresh(context.WithoutCancel(ctx), generation)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached token so the next call fetches a new one
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = models.CredentialToken{}
	c.generation++
	c.group.Forget(refreshKey)
	c.logger.Debug("Token invalidated", zap.String("token", c.name))
}

func (c *TokenCache) refresh(ctx context.Context, generation uint64) (string, error) {
	token, err := c.fetch(ctx)
	metrics.RecordTokenRefresh(c.name, err)
	if err != nil {
		c.logger.Warn("Token refresh failed", zap.String("token", c.name), zap.Error(err))
		return "", fmt.Errorf("failed to refresh %s token: %w", c.name, err)
	}

	c.mu.Lock()
	// A token fetched before an invalidation is still handed to the callers
	// that asked for it, but it is not cached
	if c.generation == generation {
		c.token = token
	}
	c.mu.Unlock()

	c.logger.Debug("Token refreshed",
		zap.String("token", c.name),
		zap.Time("expires_at", token.ExpiresAt))
	return token.Value, nil
}
