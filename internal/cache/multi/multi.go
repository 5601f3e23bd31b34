package multi

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"grantify-client/internal/interfaces"
	"grantify-client/internal/models"
)

// Ensure MultiCache implements interfaces.LevelAwareCache
var _ interfaces.LevelAwareCache = (*MultiCache)(nil)

// EntryReader is implemented by levels that can report the stored entry,
// which lets a hit be copied to faster levels with its remaining TTL
type EntryReader interface {
	GetEntry(key string) (models.CacheEntry, bool)
}

// MultiCache implements a composite cache that tries multiple cache implementations
// It attempts to get/set values through an array of cache interfaces in order,
// fastest level first
type MultiCache struct {
	caches            []interfaces.Cache
	logger            *zap.Logger
	clock             clock.Clock
	enablePropagation bool
}

// NewMultiCache creates a new MultiCache instance with provided cache implementations
func NewMultiCache(caches []interfaces.Cache, logger *zap.Logger, enablePropagation bool) *MultiCache {
	return &MultiCache{
		caches:            caches,
		logger:            logger,
		clock:             clock.New(),
		enablePropagation: enablePropagation,
	}
}

// Get retrieves value from the first cache that has the key
func (mc *MultiCache) Get(key string) ([]byte, bool) {
	val, _, found := mc.GetWithLevel(key)
	return val, found
}

// GetWithLevel retrieves value and reports which level served it
func (mc *MultiCache) GetWithLevel(key string) ([]byte, models.CacheLevel, bool) {
	if len(mc.caches) == 0 {
		mc.logger.Warn("No caches available for get operation", zap.String("key", key))
		return nil, models.CacheLevelMiss, false
	}

	for i, cache := range mc.caches {
		if reader, ok := cache.(EntryReader); ok && mc.enablePropagation && i > 0 {
			entry, found := reader.GetEntry(key)
			if !found {
				continue
			}
			mc.propagate(key, entry, i)
			return entry.Data, levelOf(i), true
		}

		if val, found := cache.Get(key); found {
			return val, levelOf(i), true
		}
	}
	return nil, models.CacheLevelMiss, false
}

// propagate copies a hit from level i into every faster level
func (mc *MultiCache) propagate(key string, entry models.CacheEntry, i int) {
	remaining := entry.Remaining(mc.clock.Now())
	if remaining <= 0 {
		return
	}

	for j := 0; j < i; j++ {
		mc.caches[j].Set(key, entry.Data, remaining)
	}
	mc.logger.Debug("Propagated cache entry to faster levels",
		zap.String("key", key),
		zap.Int("from_level", i),
		zap.Duration("ttl", remaining))
}

// Set stores value in all available caches
func (mc *MultiCache) Set(key string, val []byte, ttl time.Duration) {
	if len(mc.caches) == 0 {
		mc.logger.Warn("No caches available for set operation", zap.String("key", key))
		return
	}

	for _, cache := range mc.caches {
		cache.Set(key, val, ttl)
	}
}

// Delete removes entry from all available caches
func (mc *MultiCache) Delete(key string) {
	for _, cache := range mc.caches {
		cache.Delete(key)
	}
}

// Invalidate removes matching keys from every level and returns the largest
// per-level count, since levels usually hold the same keys
func (mc *MultiCache) Invalidate(pattern string) int {
	removed := 0
	for _, cache := range mc.caches {
		if n := cache.Invalidate(pattern); n > removed {
			removed = n
		}
	}
	return removed
}

// Clear empties every level
func (mc *MultiCache) Clear() {
	for _, cache := range mc.caches {
		cache.Clear()
	}
}

// GetCacheCount returns the number of caches in the multi-cache
func (mc *MultiCache) GetCacheCount() int {
	return len(mc.caches)
}

func levelOf(i int) models.CacheLevel {
	if i == 0 {
		return models.CacheLevelL1
	}
	return models.CacheLevelL2
}
