package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"grantify-client/internal/models"
)

func TestTokenCache_ReusesValidToken(t *testing.T) {
	clk := clock.NewMock()
	var fetches int32
	fetch := func(ctx context.Context) (models.CredentialToken, error) {
		n := atomic.AddInt32(&fetches, 1)
		return models.CredentialToken{Value: fmt.Sprintf("token-%d", n), ExpiresAt: clk.Now().Add(time.Minute)}, nil
	}

	cache := NewTokenCache("csrf", fetch, 10*time.Second, clk, zap.NewNop())

	first, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", first)

	clk.Add(49 * time.Second)
	second, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))

	// Within the skew window the token is refreshed ahead of expiry
	clk.Add(2 * time.Second)
	third, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", third)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
}

func TestTokenCache_ExpiredTokenNeverReturned(t *testing.T) {
	clk := clock.NewMock()
	var fetches int32
	fetch := func(ctx context.Context) (models.CredentialToken, error) {
		atomic.AddInt32(&fetches, 1)
		return models.CredentialToken{Value: "short", ExpiresAt: clk.Now().Add(time.Second)}, nil
	}

	cache := NewTokenCache("csrf", fetch, 0, clk, zap.NewNop())

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	clk.Add(time.Second)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
}

func TestTokenCache_ConcurrentCallersShareRefresh(t *testing.T) {
	clk := clock.NewMock()
	release := make(chan struct{})
	var fetches int32
	fetch := func(ctx context.Context) (models.CredentialToken, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return models.CredentialToken{Value: "shared", ExpiresAt: clk.Now().Add(time.Hour)}, nil
	}

	cache := NewTokenCache("csrf", fetch, time.Second, clk, zap.NewNop())

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := cache.Token(context.Background())
			assert.NoError(t, err)
			results[i] = token
		}(i)
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fetches) == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the outstanding refresh
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
	for _, token := range results {
		assert.Equal(t, "shared", token)
	}
}

func TestTokenCache_FetchError(t *testing.T) {
	clk := clock.NewMock()
	fetch := func(ctx context.Context) (models.CredentialToken, error) {
		return models.CredentialToken{}, errors.New("service unavailable")
	}

	cache := NewTokenCache("csrf", fetch, time.Second, clk, zap.NewNop())

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service unavailable")
	assert.Contains(t, err.Error(), "csrf")
}

func TestTokenCache_Invalidate(t *testing.T) {
	clk := clock.NewMock()
	var fetches int32
	fetch := func(ctx context.Context) (models.CredentialToken, error) {
		atomic.AddInt32(&fetches, 1)
		return models.CredentialToken{Value: "token", ExpiresAt: clk.Now().Add(time.Hour)}, nil
	}

	cache := NewTokenCache("csrf", fetch, time.Second, clk, zap.NewNop())

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	cache.Invalidate()
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
}

func TestTokenCache_CallerGivesUp(t *testing.T) {
	clk := clock.NewMock()
	release := make(chan struct{})
	fetch := func(ctx context.Context) (models.CredentialToken, error) {
		<-release
		return models.CredentialToken{Value: "late", ExpiresAt: clk.Now().Add(time.Hour)}, nil
	}

	cache := NewTokenCache("csrf", fetch, time.Second, clk, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.Token(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// The refresh started for the abandoned caller still completes and is cached
	close(release)
	assert.Eventually(t, func() bool {
		token, err := cache.Token(context.Background())
		return err == nil && token == "late"
	}, time.Second, time.Millisecond)
}
