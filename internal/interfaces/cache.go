package interfaces

import (
	"time"

	"grantify-client/internal/models"
)

//go:generate mockgen -package=mock -source=cache.go -destination=mock/cache.go

// Cache defines the contract for response cache levels.
// Absent is a valid outcome of Get; no operation reports an error.
type Cache interface {
	Get(key string) ([]byte, bool) // returns payload and found flag, expired entries are absent
	Set(key string, val []byte, ttl time.Duration)
	Delete(key string)
	Invalidate(pattern string) int // removes every key containing pattern, returns the count
	Clear()
}

// LevelAwareCache is a Cache that reports which level served a lookup
type LevelAwareCache interface {
	Cache
	GetWithLevel(key string) ([]byte, models.CacheLevel, bool)
}
