package execution

import (
	"context"
	"testing"
	"time"

	"github.com/liamcoop/policies/rules"
)

func TestRulesetCacheGetSet(t *testing.T) {
	c := NewInMemoryRulesetCache(DefaultCacheConfig())
	key := RulesetKey{PolicyID: "p", Version: 1}

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	rs := []rules.Rule{{Field: "a", Operator: rules.OpGreater, Value: rules.NumberValue(1), Action: rules.ActionDeny}}
	c.Set(key, rs)

	got, ok := c.Get(key)
	if !ok || len(got) != 1 {
		t.Fatalf("expected hit, got %v %v", got, ok)
	}

	// Mutating the returned slice must not affect the cache
	got[0].Field = "changed"
	again, _ := c.Get(key)
	if again[0].Field != "a" {
		t.Error("cache entry was modified through a returned slice")
	}
}

func TestRulesetCacheTTL(t *testing.T) {
	c := NewInMemoryRulesetCache(CacheConfig{TTL: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := RulesetKey{PolicyID: "p", Version: 1}
	c.Set(key, nil)

	now = now.Add(30 * time.Second)
	if _, ok := c.Get(key); !ok {
		t.Error("expected hit within TTL")
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get(key); ok {
		t.Error("expected miss after TTL")
	}
}

func TestRulesetCacheEviction(t *testing.T) {
	c := NewInMemoryRulesetCache(CacheConfig{MaxEntries: 2})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	c.Set(RulesetKey{"p", 1}, nil)
	c.Set(RulesetKey{"p", 2}, nil)
	c.Set(RulesetKey{"p", 3}, nil)

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get(RulesetKey{"p", 1}); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if _, ok := c.Get(RulesetKey{"p", 3}); !ok {
		t.Error("expected newest entry to be kept")
	}
}

func TestRulesetCacheInvalidate(t *testing.T) {
	c := NewInMemoryRulesetCache(DefaultCacheConfig())
	c.Set(RulesetKey{"p", 1}, nil)
	c.Set(RulesetKey{"p", 2}, nil)
	c.Set(RulesetKey{"q", 1}, nil)

	c.Invalidate("p")

	if c.Len() != 1 {
		t.Errorf("expected only q to remain, got %d entries", c.Len())
	}
	if _, ok := c.Get(RulesetKey{"q", 1}); !ok {
		t.Error("expected q to remain cached")
	}
}

func TestMemoryLogSinkLimit(t *testing.T) {
	s := NewMemoryLogSink(2)
	for i := 1; i <= 3; i++ {
		_ = s.Record(context.Background(), &LogRecord{PolicyID: "p", Version: i})
	}

	recs := s.Records("")
	if len(recs) != 2 || recs[0].Version != 2 || recs[1].Version != 3 {
		t.Errorf("expected versions 2 and 3 to remain, got %+v", recs)
	}
	if got := s.Records("other"); len(got) != 0 {
		t.Errorf("expected no records for other policy, got %d", len(got))
	}
}
