package rules

import (
	"sync"
	"time"
)

type cacheEntry struct {
	rules    []*Rule
	cachedAt time.Time
}

type triggerKey struct {
	event      EventType
	entityType EntityType
}

// InMemoryRulesCache is a thread-safe in-memory RulesCache.
type InMemoryRulesCache struct {
	entries map[triggerKey]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

// NewInMemoryRulesCache creates an empty cache.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		entries: make(map[triggerKey]cacheEntry),
		config:  config,
	}
}

// Get returns the cached rules for a trigger, or nil on miss or expiry.
func (c *InMemoryRulesCache) Get(event EventType, entityType EntityType) []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[triggerKey{event, entityType}]
	if !ok {
		return nil
	}
	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return nil
	}

	// Copy the slice so callers cannot reorder the cached entry.
	out := make([]*Rule, len(entry.rules))
	copy(out, entry.rules)
	return out
}

// Set stores the eligible rules for a trigger.
func (c *InMemoryRulesCache) Set(event EventType, entityType EntityType, rules []*Rule) {
	stored := make([]*Rule, len(rules))
	copy(stored, rules)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[triggerKey{event, entityType}] = cacheEntry{
		rules:    stored,
		cachedAt: time.Now(),
	}
}

// Invalidate drops every entry.
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[triggerKey]cacheEntry)
}
