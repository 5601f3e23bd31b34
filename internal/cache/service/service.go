package service

import (
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"grantify-client/internal/cache"
	"grantify-client/internal/interfaces"
	"grantify-client/internal/metrics"
	"grantify-client/internal/models"
)

// CacheService applies the per-endpoint cache rules on top of the level cache
type CacheService struct {
	multiCache      interfaces.LevelAwareCache
	keyBuilder      interfaces.KeyBuilder
	cacheClassifier interfaces.CacheRulesClassifier
	logger          *zap.Logger

	// generation advances on every Invalidate and Clear. A response fetched
	// under an older generation is never stored.
	generation atomic.Uint64
}

// NewCacheService creates a new cache service instance
func NewCacheService(levelCache interfaces.LevelAwareCache, cacheClassifier interfaces.CacheRulesClassifier, logger *zap.Logger) *CacheService {
	return &CacheService{
		multiCache:      levelCache,
		keyBuilder:      cache.NewKeyBuilder(),
		cacheClassifier: cacheClassifier,
		logger:          logger,
	}
}

// GetResponse represents the result of a cache get operation
type GetResponse struct {
	Found      bool              `json:"found"`
	Data       []byte            `json:"data,omitempty"`
	Key        string            `json:"key"`
	Bypass     bool              `json:"bypass"`
	CacheType  string            `json:"cache_type,omitempty"`
	TTL        time.Duration     `json:"ttl,omitempty"`
	CacheLevel models.CacheLevel `json:"cache_level,omitempty"`
	// Generation is the invalidation generation the lookup ran under
	Generation uint64            `json:"-"`
}

// Get looks up the cached response of an endpoint read. The returned key and
// TTL are what Set needs once the caller fetched the response itself.
func (s *CacheService) Get(endpoint string, params url.Values, identity string) (*GetResponse, error) {
	key, err := s.keyBuilder.Build(endpoint, params, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache key: %w", err)
	}

	cacheInfo := s.cacheClassifier.GetTtl(endpoint)
	resp := &GetResponse{
		Key:        key,
		CacheType:  string(cacheInfo.CacheType),
		TTL:        cacheInfo.TTL,
		CacheLevel: models.CacheLevelMiss,
		Generation: s.generation.Load(),
	}

	metrics.RecordCacheRequest(endpoint)

	// Bypass caching entirely when TTL is 0
	if cacheInfo.TTL == 0 {
		resp.Bypass = true
		return resp, nil
	}

	data, level, found := s.multiCache.GetWithLevel(key)
	if found {
		metrics.RecordCacheHit(endpoint, string(level))
		resp.Found = true
		resp.Data = data
		resp.CacheLevel = level
		return resp, nil
	}

	metrics.RecordCacheMiss(endpoint)
	return resp, nil
}

// Set stores a fetched response under the key of a previous Get, unless an
// invalidation happened since that Get
func (s *CacheService) Set(resp *GetResponse, data []byte) {
	if resp == nil || resp.Bypass || resp.TTL <= 0 {
		return
	}
	if resp.Generation != s.generation.Load() {
		s.logger.Debug("Dropping response fetched before invalidation", zap.String("key", resp.Key))
		return
	}
	s.multiCache.Set(resp.Key, data, resp.TTL)
}

// Invalidate drops every cached read whose key contains one of patterns
func (s *CacheService) Invalidate(patterns ...string) int {
	s.generation.Add(1)
	removed := 0
	for _, pattern := range patterns {
		n := s.multiCache.Invalidate(pattern)
		removed += n
		s.logger.Debug("Invalidated cached reads", zap.String("pattern", pattern), zap.Int("removed", n))
	}
	return removed
}

// Clear drops every cached read
func (s *CacheService) Clear() {
	s.generation.Add(1)
	s.multiCache.Clear()
}

// GetCacheInfo returns cache type and TTL of an endpoint
func (s *CacheService) GetCacheInfo(endpoint string) models.CacheInfo {
	return s.cacheClassifier.GetTtl(endpoint)
}
