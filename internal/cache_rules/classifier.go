package cache_rules

import (
	"go.uber.org/zap"

	"grantify-client/internal/interfaces"
	"grantify-client/internal/models"
)

// Classifier implements the CacheRulesClassifier interface
type Classifier struct {
	logger    *zap.Logger
	configTTL interfaces.CacheRulesConfig
}

// Ensure Classifier implements the CacheRulesClassifier interface
var _ interfaces.CacheRulesClassifier = (*Classifier)(nil)

// NewClassifier creates a new Classifier instance
func NewClassifier(logger *zap.Logger, configTTL interfaces.CacheRulesConfig) *Classifier {
	return &Classifier{
		logger:    logger,
		configTTL: configTTL,
	}
}

// GetTtl implements CacheRulesClassifier interface
func (c *Classifier) GetTtl(endpoint string) models.CacheInfo {
	if endpoint == "" || c.configTTL == nil {
		return models.CacheInfo{TTL: 0, CacheType: models.CacheTypeNone}
	}

	cacheType := c.configTTL.GetCacheTypeForEndpoint(endpoint)
	if cacheType == models.CacheTypeNone {
		return models.CacheInfo{TTL: 0, CacheType: models.CacheTypeNone}
	}

	ttl := c.configTTL.GetTtlForCacheType(endpoint, cacheType)
	if ttl == 0 {
		return models.CacheInfo{TTL: 0, CacheType: models.CacheTypeNone}
	}

	return models.CacheInfo{TTL: ttl, CacheType: cacheType}
}
