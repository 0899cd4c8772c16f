package cache

import (
	"time"
)

// CacheService represents a generic cache service. The worker uses it as
// an event cooldown: a key present in the cache means "already reported
// recently".
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}
