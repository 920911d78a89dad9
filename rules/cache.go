package rules

import "time"

// RulesCache caches eligible-rule snapshots per (event, entity type) so a
// busy Fire path does not hit the repository on every lifecycle event.
// Staleness up to the TTL (or until invalidation) is acceptable; the cached
// rules are clones, so a stale snapshot is still internally consistent.
type RulesCache interface {
	// Get retrieves cached rules for a trigger, nil on miss or expiry.
	Get(event EventType, entityType EntityType) []*Rule

	// Set stores the eligible rules for a trigger.
	Set(event EventType, entityType EntityType, rules []*Rule)

	// Invalidate clears the whole cache. Called after any rule mutation.
	Invalidate()
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries. Zero means entries only
	// leave the cache through Invalidate.
	TTL time.Duration
}

// DefaultCacheConfig bounds staleness even when a caller forgets to
// invalidate after a mutation.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 30 * time.Second}
}
