package noop

import (
	"time"

	"grantify-client/internal/interfaces"
)

// Ensure NoOpCache implements interfaces.Cache
var _ interfaces.Cache = (*NoOpCache)(nil)

// NoOpCache is a no-operation cache implementation for disabled caches
type NoOpCache struct{}

// NewNoOpCache creates a new no-operation cache instance
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Get always returns cache miss
func (n *NoOpCache) Get(key string) ([]byte, bool) {
	return nil, false
}

// Set does nothing
func (n *NoOpCache) Set(key string, val []byte, ttl time.Duration) {
	// No-op
}

// Delete does nothing
func (n *NoOpCache) Delete(key string) {
	// No-op
}

// Invalidate removes nothing
func (n *NoOpCache) Invalidate(pattern string) int {
	return 0
}

// Clear does nothing
func (n *NoOpCache) Clear() {
	// No-op
}
