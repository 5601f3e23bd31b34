package cache_rules

import (
	"time"

	"grantify-client/internal/models"
)

// DefaultSection is the ttl_defaults entry used when an endpoint has no override
const DefaultSection = "default"

// TTLDefaults represents TTL settings for different cache types
type TTLDefaults map[models.CacheType]time.Duration

// CacheRulesConfig represents the cache rules configuration
type CacheRulesConfig struct {
	// TTLDefaults is keyed by endpoint, with "default" as the fallback section
	TTLDefaults map[string]TTLDefaults `yaml:"ttl_defaults"`
	// CacheRules maps an endpoint to its cache type
	CacheRules map[string]models.CacheType `yaml:"cache_rules"`
}

// DefaultRules returns the built-in rules used when no rules file is configured
func DefaultRules() *CacheRulesConfig {
	return &CacheRulesConfig{
		TTLDefaults: map[string]TTLDefaults{
			DefaultSection: {
				models.CacheTypeLong:    10 * time.Minute,
				models.CacheTypeShort:   time.Minute,
				models.CacheTypeMinimal: 10 * time.Second,
			},
		},
		CacheRules: map[string]models.CacheType{
			"grants/search":   models.CacheTypeShort,
			"interactions":    models.CacheTypeMinimal,
			"recommendations": models.CacheTypeShort,
			"csrf-token":      models.CacheTypeNone,
		},
	}
}
