package l2

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"grantify-client/internal/config"
	"grantify-client/internal/interfaces"
	"grantify-client/internal/metrics"
	"grantify-client/internal/models"
)

const (
	level     = "l2"
	scanCount = 100
)

// Ensure KeyDBCache implements interfaces.Cache
var _ interfaces.Cache = (*KeyDBCache)(nil)

// KeyDBCache implements L2 cache using Redis/KeyDB. Keys are stored under
// "<namespace>:" so pattern invalidation never touches foreign keys.
type KeyDBCache struct {
	client interfaces.KeyDbClient
	config *config.Config
	logger *zap.Logger
	clock  clock.Clock
}

// NewKeyDBCache creates a new KeyDBCache instance with provided client
func NewKeyDBCache(cfg *config.Config, client interfaces.KeyDbClient, logger *zap.Logger) *KeyDBCache {
	return &KeyDBCache{
		client: client,
		config: cfg,
		logger: logger,
		clock:  clock.New(),
	}
}

func (kc *KeyDBCache) namespaced(key string) string {
	ns := kc.config.KeyDB.Namespace
	if ns == "" {
		return key
	}
	return ns + ":" + key
}

func (kc *KeyDBCache) readContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), kc.config.GetReadTimeout())
}

func (kc *KeyDBCache) sendContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), kc.config.GetSendTimeout())
}

// Get retrieves a valid payload from KeyDB
func (kc *KeyDBCache) Get(key string) ([]byte, bool) {
	defer metrics.TimeCacheOperation("get", level)()

	entry, ok := kc.GetEntry(key)
	if !ok {
		return nil, false
	}
	return entry.Data, true
}

// GetEntry returns the stored entry so callers can propagate its remaining TTL
func (kc *KeyDBCache) GetEntry(key string) (models.CacheEntry, bool) {
	ctx, cancel := kc.readContext()
	defer cancel()

	data, err := kc.client.Get(ctx, kc.namespaced(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			kc.logger.Error("L2 cache get error", zap.String("key", key), zap.Error(err))
			metrics.RecordCacheError(level, "upstream")
		}
		return models.CacheEntry{}, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		kc.logger.Error("Failed to unmarshal L2 cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError(level, "decode")
		kc.Delete(key)
		return models.CacheEntry{}, false
	}

	// Redis expiry normally removes it first, this covers clock skew
	if !entry.IsValid(kc.clock.Now()) {
		kc.Delete(key)
		return models.CacheEntry{}, false
	}

	return entry, true
}

// Set stores value in KeyDB cache with TTL
func (kc *KeyDBCache) Set(key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	ctx, cancel := kc.sendContext()
	defer cancel()

	data, err := json.Marshal(models.NewCacheEntry(val, kc.clock.Now(), ttl))
	if err != nil {
		kc.logger.Error("Failed to marshal L2 cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError(level, "encode")
		return
	}

	if err := kc.client.Set(ctx, kc.namespaced(key), data, ttl).Err(); err != nil {
		kc.logger.Error("Failed to set L2 cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError(level, "upstream")
		return
	}
	metrics.RecordCacheSet(level)
}

// Delete removes entry from KeyDB cache
func (kc *KeyDBCache) Delete(key string) {
	ctx, cancel := kc.sendContext()
	defer cancel()

	if err := kc.client.Del(ctx, kc.namespaced(key)).Err(); err != nil {
		kc.logger.Error("Failed to delete L2 cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError(level, "upstream")
	}
}

// Invalidate removes every key of the namespace containing pattern
func (kc *KeyDBCache) Invalidate(pattern string) int {
	removed := kc.deleteMatching(kc.namespaced("*" + escapeGlob(pattern) + "*"))
	metrics.RecordCacheInvalidation(level, removed)
	kc.logger.Debug("Invalidated cache entries",
		zap.String("level", level),
		zap.String("pattern", pattern),
		zap.Int("removed", removed))
	return removed
}

// Clear removes every key of the namespace
func (kc *KeyDBCache) Clear() {
	kc.deleteMatching(kc.namespaced("*"))
}

// deleteMatching scans match and deletes each page of keys. Errors stop the
// walk and are logged; the keys deleted so far are counted.
func (kc *KeyDBCache) deleteMatching(match string) int {
	ctx, cancel := context.WithTimeout(context.Background(), kc.config.GetReadTimeout()+kc.config.GetSendTimeout())
	defer cancel()

	removed := 0
	var cursor uint64
	for {
		keys, next, err := kc.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			kc.logger.Error("L2 cache scan error", zap.String("match", match), zap.Error(err))
			metrics.RecordCacheError(level, "upstream")
			return removed
		}

		if len(keys) > 0 {
			n, err := kc.client.Del(ctx, keys...).Result()
			if err != nil {
				kc.logger.Error("L2 cache delete error", zap.String("match", match), zap.Error(err))
				metrics.RecordCacheError(level, "upstream")
				return removed
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			return removed
		}
	}
}

// Close closes the KeyDB connection
func (kc *KeyDBCache) Close() error {
	return kc.client.Close()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
