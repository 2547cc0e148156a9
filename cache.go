package filemanager

import (
	"context"
	"sync"
)

// CacheStatistics contains cache performance metrics.
type CacheStatistics struct {
	Hits    int64
	Misses  int64
	HitRate float64
}

// SizeCache memoizes a computed size until it is invalidated. Drivers use it
// for the root total size, invalidating on their own mutations and on file
// system notifications.
//
// It is safe for concurrent use.
type SizeCache struct {
	mu         sync.Mutex
	value      int64
	valid      bool
	generation uint64
	hits       int64
	misses     int64
}

// Get returns the cached size, computing it when missing. A value computed
// while an invalidation happened is returned but not kept.
func (c *SizeCache) Get(ctx context.Context, compute func(ctx context.Context) (int64, error)) (int64, error) {
	c.mu.Lock()
	if c.valid {
		c.hits++
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	c.misses++
	generation := c.generation
	c.mu.Unlock()

	v, err := compute(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.generation == generation {
		c.value = v
		c.valid = true
	}
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops the cached value.
func (c *SizeCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.generation++
}

// Stats returns cache statistics.
func (c *SizeCache) Stats() CacheStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStatistics{Hits: c.hits, Misses: c.misses, HitRate: hitRate}
}
