package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"grantify-client/internal/interfaces"
	"grantify-client/internal/metrics"
	"grantify-client/internal/models"
	"grantify-client/internal/scheduler"
)

const level = "memory"

// Ensure Cache implements interfaces.Cache
var _ interfaces.Cache = (*Cache)(nil)

// Cache is an in-process response cache. Expired entries are evicted lazily
// on access and, when a janitor interval is set, periodically in the background.
type Cache struct {
	mu      sync.Mutex
	entries map[string]models.CacheEntry
	clock   clock.Clock
	logger  *zap.Logger
	janitor *scheduler.Scheduler
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces the wall clock, used by tests
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) {
		c.clock = clk
	}
}

// WithJanitor purges expired entries every interval
func WithJanitor(interval time.Duration) Option {
	return func(c *Cache) {
		if interval > 0 {
			c.janitor = scheduler.NewWithClock(interval, c.purgeExpired, c.clock)
		}
	}
}

// New creates an empty cache. Options are applied in order, so WithClock must
// precede WithJanitor for the janitor to use the same clock.
func New(logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]models.CacheEntry),
		clock:   clock.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.janitor != nil {
		c.janitor.Start()
	}
	return c
}

// Get returns the payload of a valid entry. An expired entry is deleted and
// reported absent.
func (c *Cache) Get(key string) ([]byte, bool) {
	defer metrics.TimeCacheOperation("get", level)()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok {
		return nil, false
	}
	return entry.Data, true
}

// GetEntry returns the stored entry so callers can propagate its remaining TTL
func (c *Cache) GetEntry(key string) (models.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

// lookup must be called with c.mu held
func (c *Cache) lookup(key string) (models.CacheEntry, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return models.CacheEntry{}, false
	}
	if !entry.IsValid(c.clock.Now()) {
		delete(c.entries, key)
		return models.CacheEntry{}, false
	}
	return entry, true
}

// Set stores val under key, replacing any previous entry
func (c *Cache) Set(key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	c.entries[key] = models.NewCacheEntry(val, c.clock.Now(), ttl)
	c.mu.Unlock()

	metrics.RecordCacheSet(level)
}

// Delete removes key
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Invalidate removes every key containing pattern
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	removed := 0
	for key := range c.entries {
		if strings.Contains(key, pattern) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	metrics.RecordCacheInvalidation(level, removed)
	if c.logger != nil {
		c.logger.Debug("Invalidated cache entries",
			zap.String("level", level),
			zap.String("pattern", pattern),
			zap.Int("removed", removed))
	}
	return removed
}

// Clear removes every entry
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]models.CacheEntry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the janitor
func (c *Cache) Close() error {
	if c.janitor != nil {
		c.janitor.Stop()
	}
	return nil
}

func (c *Cache) purgeExpired() {
	now := c.clock.Now()

	c.mu.Lock()
	purged := 0
	for key, entry := range c.entries {
		if !entry.IsValid(now) {
			delete(c.entries, key)
			purged++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	metrics.UpdateCacheKeys(level, int64(remaining))
	if purged > 0 && c.logger != nil {
		c.logger.Debug("Purged expired cache entries", zap.Int("purged", purged), zap.Int("remaining", remaining))
	}
}
