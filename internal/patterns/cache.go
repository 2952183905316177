// Package patterns accumulates recurring high-risk transaction shapes.
package patterns

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

var bucketSize = decimal.NewFromInt(100)

// MemoryCache is an in-memory fraud pattern cache. Entries are never evicted.
type MemoryCache struct {
	mu        sync.RWMutex
	entries   map[string]*risk.FraudPatternEntry
	threshold float64
	clock     risk.Clock
}

// NewMemoryCache creates a cache that records verdicts above
// risk.PatternThreshold.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:   make(map[string]*risk.FraudPatternEntry),
		threshold: risk.PatternThreshold,
		clock:     risk.SystemClock,
	}
}

// WithThreshold changes the score a verdict must exceed to be recorded.
func (c *MemoryCache) WithThreshold(t float64) *MemoryCache {
	c.threshold = t
	return c
}

// WithClock overrides the clock used for lastSeen.
func (c *MemoryCache) WithClock(clock risk.Clock) *MemoryCache {
	c.clock = clock
	return c
}

// Key builds the pattern key: merchant, location and the amount rounded
// down to the nearest 100.
func Key(tx *risk.Transaction) string {
	bucket := tx.Amount.Div(bucketSize).Floor().Mul(bucketSize)
	return fmt.Sprintf("%s_%s_%s", tx.Merchant, tx.Location, bucket.String())
}

// Record folds riskScore into the pattern for tx. The running average is
// (avg + score) / 2, weighting recent verdicts.
func (c *MemoryCache) Record(ctx context.Context, tx *risk.Transaction, riskScore float64) error {
	if riskScore <= c.threshold {
		return nil
	}
	key := Key(tx)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.entries[key] = &risk.FraudPatternEntry{
			Key:      key,
			Count:    1,
			AvgRisk:  riskScore,
			LastSeen: c.clock.Now(),
		}
		return nil
	}
	e.Count++
	e.AvgRisk = (e.AvgRisk + riskScore) / 2
	e.LastSeen = c.clock.Now()
	return nil
}

// Get returns a copy of the entry stored under key.
func (c *MemoryCache) Get(key string) (*risk.FraudPatternEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Keys returns the pattern keys in sorted order.
func (c *MemoryCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// List returns copies of every entry, most frequent first.
func (c *MemoryCache) List() []*risk.FraudPatternEntry {
	c.mu.RLock()
	out := make([]*risk.FraudPatternEntry, 0, len(c.entries))
	for _, e := range c.entries {
		cp := *e
		out = append(out, &cp)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ risk.PatternCache = (*MemoryCache)(nil)
