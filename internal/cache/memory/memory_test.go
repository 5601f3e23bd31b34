package memory

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T, opts ...Option) (*Cache, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	c := New(zap.NewNop(), append([]Option{WithClock(mock)}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c, mock
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)

	c.Set("api:grants:abc:anon", []byte(`{"items":[]}`), time.Minute)

	got, ok := c.Get("api:grants:abc:anon")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"items":[]}`), got)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c, mock := newTestCache(t)

	c.Set("k", []byte("v"), 10*time.Second)

	// Valid up to and including storedAt + ttl
	mock.Add(10 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	mock.Add(time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)

	// Lazily evicted on access
	assert.Equal(t, 0, c.Len())
}

func TestCache_ResetReplacesEntry(t *testing.T) {
	c, mock := newTestCache(t)

	c.Set("k", []byte("old"), 5*time.Second)
	mock.Add(4 * time.Second)
	c.Set("k", []byte("new"), 5*time.Second)
	mock.Add(4 * time.Second)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestCache_NonPositiveTTLIsNotStored(t *testing.T) {
	c, _ := newTestCache(t)

	c.Set("k", []byte("v"), 0)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t)

	c.Set("api:interactions::u-1", []byte("1"), time.Minute)
	c.Set("api:interactions:abc:u-2", []byte("2"), time.Minute)
	c.Set("api:recommendations::u-1", []byte("3"), time.Minute)
	c.Set("api:grants/search:abc:u-1", []byte("4"), time.Minute)

	removed := c.Invalidate("interactions")
	assert.Equal(t, 2, removed)

	_, ok := c.Get("api:interactions::u-1")
	assert.False(t, ok)
	_, ok = c.Get("api:recommendations::u-1")
	assert.True(t, ok)

	assert.Equal(t, 0, c.Invalidate("nothing-matches"))
}

func TestCache_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache(t)

	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_JanitorPurgesExpired(t *testing.T) {
	c, mock := newTestCache(t, WithJanitor(time.Minute))

	c.Set("short", []byte("1"), 10*time.Second)
	c.Set("long", []byte("2"), time.Hour)

	mock.Add(time.Minute)

	assert.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)
	_, ok := c.Get("long")
	assert.True(t, ok)
}
