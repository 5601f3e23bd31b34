package interfaces

import (
	"time"

	"grantify-client/internal/models"
)

//go:generate mockgen -package=mock -source=cache_rules.go -destination=mock/cache_rules.go

// CacheRulesClassifier resolves the cache policy of an endpoint
type CacheRulesClassifier interface {
	// GetTtl returns cache information including TTL and cache type
	GetTtl(endpoint string) models.CacheInfo
}

// CacheRulesConfig provides the raw rules the classifier works on
type CacheRulesConfig interface {
	// GetCacheTypeForEndpoint returns the configured cache type, none when unknown
	GetCacheTypeForEndpoint(endpoint string) models.CacheType
	// GetTtlForCacheType returns the TTL of a cache type, preferring endpoint overrides
	GetTtlForCacheType(endpoint string, cacheType models.CacheType) time.Duration
}
