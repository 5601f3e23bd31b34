package l1

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"grantify-client/internal/config"
	"grantify-client/internal/interfaces"
	"grantify-client/internal/metrics"
	"grantify-client/internal/models"
	"grantify-client/internal/scheduler"
)

const level = "l1"

// lifeWindow bounds how long bigcache keeps any entry; per-entry TTLs are
// enforced on read from the stored CacheEntry
const lifeWindow = 24 * time.Hour

// Ensure BigCache implements interfaces.Cache
var _ interfaces.Cache = (*BigCache)(nil)

// BigCache implements L1 cache using BigCache
type BigCache struct {
	cache            *bigcache.BigCache
	logger           *zap.Logger
	clock            clock.Clock
	metricsScheduler *scheduler.Scheduler
}

// NewBigCache creates a new BigCache instance
func NewBigCache(bigcacheCfg *config.BigCacheConfig, logger *zap.Logger) (*BigCache, error) {
	cfg := bigcache.DefaultConfig(lifeWindow)
	cfg.HardMaxCacheSize = bigcacheCfg.Size // Size in MB
	cfg.Verbose = false
	cfg.MaxEntrySize = 1024 * 1024 // 1MB max entry size
	cfg.CleanWindow = 5 * time.Minute

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	bc := &BigCache{
		cache:  cache,
		logger: logger,
		clock:  clock.New(),
	}

	// Start periodic metrics collection
	bc.startMetricsCollection()

	return bc, nil
}

// Get retrieves a valid payload from cache
func (bc *BigCache) Get(key string) ([]byte, bool) {
	defer metrics.TimeCacheOperation("get", level)()

	entry, ok := bc.getEntry(key)
	if !ok {
		return nil, false
	}
	return entry.Data, true
}

// GetEntry returns the stored entry so callers can propagate its remaining TTL
func (bc *BigCache) GetEntry(key string) (models.CacheEntry, bool) {
	return bc.getEntry(key)
}

func (bc *BigCache) getEntry(key string) (models.CacheEntry, bool) {
	data, err := bc.cache.Get(key)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			metrics.RecordCacheError(level, "upstream")
		}
		return models.CacheEntry{}, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		bc.logger.Warn("Failed to unmarshal L1 cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError(level, "decode")
		_ = bc.cache.Delete(key) // Remove corrupted entry
		return models.CacheEntry{}, false
	}

	// Lazily evict expired entries
	if !entry.IsValid(bc.clock.Now()) {
		_ = bc.cache.Delete(key)
		return models.CacheEntry{}, false
	}

	return entry, true
}

// Set stores value in cache with TTL
func (bc *BigCache) Set(key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(models.NewCacheEntry(val, bc.clock.Now(), ttl))
	if err != nil {
		bc.logger.Error("Failed to marshal cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError(level, "encode")
		return
	}

	if err := bc.cache.Set(key, data); err != nil {
		bc.logger.Error("Failed to set cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError(level, "upstream")
		return
	}
	metrics.RecordCacheSet(level)
}

// Delete removes entry from cache
func (bc *BigCache) Delete(key string) {
	_ = bc.cache.Delete(key)
}

// Invalidate removes every key containing pattern
func (bc *BigCache) Invalidate(pattern string) int {
	var matched []string
	it := bc.cache.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		if strings.Contains(info.Key(), pattern) {
			matched = append(matched, info.Key())
		}
	}

	removed := 0
	for _, key := range matched {
		if err := bc.cache.Delete(key); err == nil {
			removed++
		}
	}

	metrics.RecordCacheInvalidation(level, removed)
	bc.logger.Debug("Invalidated cache entries",
		zap.String("level", level),
		zap.String("pattern", pattern),
		zap.Int("removed", removed))
	return removed
}

// Clear removes all entries
func (bc *BigCache) Clear() {
	if err := bc.cache.Reset(); err != nil {
		bc.logger.Warn("Failed to reset L1 cache", zap.Error(err))
	}
}

// Close closes the cache
func (bc *BigCache) Close() error {
	// Stop metrics collection
	bc.stopMetricsCollection()

	return bc.cache.Close()
}

// GetStats returns cache statistics for metrics
func (bc *BigCache) GetStats() (capacity, used int64) {
	// Capacity is the allocated byte queue size, Len the stored entries
	capacity = int64(bc.cache.Capacity())
	used = int64(bc.cache.Len())

	return capacity, used
}

// startMetricsCollection starts periodic metrics collection
func (bc *BigCache) startMetricsCollection() {
	bc.metricsScheduler = scheduler.New(30*time.Second, bc.updateMetrics)
	bc.metricsScheduler.Start()

	// Initial collection
	bc.updateMetrics()

	bc.logger.Debug("Started L1 cache metrics collection")
}

// stopMetricsCollection stops periodic metrics collection
func (bc *BigCache) stopMetricsCollection() {
	if bc.metricsScheduler != nil {
		bc.metricsScheduler.Stop()
		bc.logger.Debug("Stopped L1 cache metrics collection")
	}
}

// updateMetrics updates cache metrics
func (bc *BigCache) updateMetrics() {
	capacity, used := bc.GetStats()

	metrics.UpdateL1CacheCapacity(capacity, used)
	metrics.UpdateCacheKeys(level, int64(bc.cache.Len()))
}
