package models

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheType represents how long responses of an endpoint may be cached
type CacheType string

const (
	CacheTypeLong    CacheType = "long"
	CacheTypeShort   CacheType = "short"
	CacheTypeMinimal CacheType = "minimal"
	CacheTypeNone    CacheType = "none"
)

// UnmarshalYAML implements custom YAML unmarshaling for CacheType
func (c *CacheType) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	switch str {
	case "long", "short", "minimal", "none":
		*c = CacheType(str)
		return nil
	default:
		return fmt.Errorf("invalid cache type '%s': must be one of 'long', 'short', 'minimal', 'none'", str)
	}
}

// CacheInfo contains cache configuration information
type CacheInfo struct {
	TTL       time.Duration `json:"ttl"`
	CacheType CacheType     `json:"cache_type"`
}

// CacheLevel identifies which cache level served a lookup
type CacheLevel string

const (
	CacheLevelL1   CacheLevel = "L1"
	CacheLevelL2   CacheLevel = "L2"
	CacheLevelMiss CacheLevel = "MISS"
)

// CacheEntry is a stored response payload. It is never mutated after it is
// stored; a re-store replaces the whole entry.
type CacheEntry struct {
	Data     []byte        `json:"data"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
}

// NewCacheEntry creates an entry stored at now
func NewCacheEntry(data []byte, now time.Time, ttl time.Duration) CacheEntry {
	return CacheEntry{Data: data, StoredAt: now, TTL: ttl}
}

// IsValid reports whether now - StoredAt <= TTL
func (e CacheEntry) IsValid(now time.Time) bool {
	return now.Sub(e.StoredAt) <= e.TTL
}

// Remaining returns how long the entry stays valid, zero once expired
func (e CacheEntry) Remaining(now time.Time) time.Duration {
	left := e.TTL - now.Sub(e.StoredAt)
	if left < 0 {
		return 0
	}
	return left
}
