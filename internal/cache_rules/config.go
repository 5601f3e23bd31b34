package cache_rules

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"grantify-client/internal/interfaces"
	"grantify-client/internal/models"
)

// CacheConfig implements the CacheRulesConfig interface
type CacheConfig struct {
	config *CacheRulesConfig
	logger *zap.Logger
}

// Ensure CacheConfig implements the CacheRulesConfig interface
var _ interfaces.CacheRulesConfig = (*CacheConfig)(nil)

// NewCacheConfig creates a new CacheConfig instance
func NewCacheConfig(config *CacheRulesConfig, logger *zap.Logger) *CacheConfig {
	if config == nil {
		panic("config cannot be nil")
	}
	return &CacheConfig{
		config: config,
		logger: logger,
	}
}

// GetTtlForCacheType implements CacheRulesConfig interface
func (cr *CacheConfig) GetTtlForCacheType(endpoint string, cacheType models.CacheType) time.Duration {
	if cacheType == models.CacheTypeNone {
		return 0
	}

	if len(cr.config.TTLDefaults) == 0 {
		return cr.getFallbackTTL(cacheType)
	}

	// Try endpoint-specific config first
	if endpoint = normalizeEndpoint(endpoint); endpoint != "" {
		if ttl := cr.lookupTTL(endpoint, cacheType); ttl > 0 {
			return ttl
		}
	}

	// Fall back to default config
	if ttl := cr.lookupTTL(DefaultSection, cacheType); ttl > 0 {
		return ttl
	}

	return 0
}

// lookupTTL looks up TTL value from config
func (cr *CacheConfig) lookupTTL(key string, cacheType models.CacheType) time.Duration {
	ttlDefaults, ok := cr.config.TTLDefaults[key]
	if !ok {
		return 0
	}

	if duration, exists := ttlDefaults[cacheType]; exists {
		return duration
	}

	return 0
}

// GetAllEndpoints returns all endpoints named by the cache rules
func (cr *CacheConfig) GetAllEndpoints() []string {
	endpoints := make([]string, 0, len(cr.config.CacheRules))
	for endpoint := range cr.config.CacheRules {
		endpoints = append(endpoints, endpoint)
	}
	return endpoints
}

// getFallbackTTL provides fallback TTL values when config is not available
func (cr *CacheConfig) getFallbackTTL(cacheType models.CacheType) time.Duration {
	fallbackTTLs := map[models.CacheType]time.Duration{
		models.CacheTypeLong:    10 * time.Minute,
		models.CacheTypeShort:   time.Minute,
		models.CacheTypeMinimal: 10 * time.Second,
	}

	if ttl, ok := fallbackTTLs[cacheType]; ok {
		return ttl
	}

	return 0
}

// GetCacheTypeForEndpoint implements CacheRulesConfig interface
func (cr *CacheConfig) GetCacheTypeForEndpoint(endpoint string) models.CacheType {
	endpoint = normalizeEndpoint(endpoint)
	if endpoint == "" {
		if cr.logger != nil {
			cr.logger.Warn("Empty endpoint provided, returning none cache type")
		}
		return models.CacheTypeNone
	}

	if cr.config.CacheRules == nil {
		if cr.logger != nil {
			cr.logger.Warn("CacheRules is nil, returning none cache type")
		}
		return models.CacheTypeNone
	}

	// Look up cache type for the endpoint
	if cacheType, exists := cr.config.CacheRules[endpoint]; exists {
		return cacheType
	}

	// Unknown endpoints are never cached
	if cr.logger != nil {
		cr.logger.Debug("Endpoint not found in cache rules, returning none cache type",
			zap.String("endpoint", endpoint))
	}
	return models.CacheTypeNone
}

func normalizeEndpoint(endpoint string) string {
	return strings.Trim(endpoint, "/")
}
