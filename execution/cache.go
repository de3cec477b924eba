package execution

import (
	"sync"
	"time"

	"github.com/liamcoop/policies/rules"
)

// RulesetKey identifies the parsed rules of one policy version. Version
// content never changes, so an entry is valid for as long as it is kept.
type RulesetKey struct {
	PolicyID string
	Version  int
}

// RulesetCache holds parsed rulesets so that executions skip re-parsing
type RulesetCache interface {
	// Get returns the cached rules for key, or false on a miss or expiry
	Get(key RulesetKey) ([]rules.Rule, bool)

	// Set stores rules for key
	Set(key RulesetKey, rs []rules.Rule)

	// Invalidate drops every version of policyID
	Invalidate(policyID string)

	// Len returns the number of cached entries, expired ones included
	Len() int
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries. 0 means no expiry.
	TTL time.Duration

	// MaxEntries caps the cache size; the oldest entry is evicted first. 0 means unbounded.
	MaxEntries int
}

// DefaultCacheConfig keeps entries forever, bounded to 1024 rulesets
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        0,
		MaxEntries: 1024,
	}
}

type cacheEntry struct {
	rules    []rules.Rule
	cachedAt time.Time
}

// InMemoryRulesetCache is a thread-safe RulesetCache
type InMemoryRulesetCache struct {
	entries map[RulesetKey]cacheEntry
	config  CacheConfig
	now     func() time.Time
	mu      sync.RWMutex
}

// NewInMemoryRulesetCache creates an empty cache
func NewInMemoryRulesetCache(config CacheConfig) *InMemoryRulesetCache {
	return &InMemoryRulesetCache{
		entries: make(map[RulesetKey]cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

func (c *InMemoryRulesetCache) Get(key RulesetKey) ([]rules.Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.config.TTL > 0 && c.now().Sub(e.cachedAt) > c.config.TTL {
		return nil, false
	}

	// Return copy to prevent external modifications
	out := make([]rules.Rule, len(e.rules))
	copy(out, e.rules)
	return out, true
}

func (c *InMemoryRulesetCache) Set(key RulesetKey, rs []rules.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
		c.evictOldestLocked()
	}

	stored := make([]rules.Rule, len(rs))
	copy(stored, rs)
	c.entries[key] = cacheEntry{rules: stored, cachedAt: c.now()}
}

func (c *InMemoryRulesetCache) Invalidate(policyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.PolicyID == policyID {
			delete(c.entries, key)
		}
	}
}

func (c *InMemoryRulesetCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *InMemoryRulesetCache) evictOldestLocked() {
	var oldestKey RulesetKey
	var oldest time.Time
	first := true
	for key, e := range c.entries {
		if first || e.cachedAt.Before(oldest) {
			oldestKey, oldest, first = key, e.cachedAt, false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
