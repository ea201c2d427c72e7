package priceseries

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// cacheKey identifies a cached series request (spec.md §4.2: "cached with
// a key (symbol, frequency, start, end, vendor)").
type cacheKey struct {
	Symbol    string
	Frequency string
	Start     time.Time
	End       time.Time
	Vendor    string
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", k.Symbol, k.Frequency, k.Start.Format("2006-01-02"), k.End.Format("2006-01-02"), k.Vendor)
}

type cacheEntry struct {
	series    Series
	cachedAt  time.Time
}

// seriesCache is a thread-safe in-memory cache for fetched series, with a
// singleflight.Group coalescing concurrent requests for the same key into
// one upstream call. Grounded on stadam23-Eve-flipper's OrderCache
// (internal/esi/order_cache.go), generalized from region/order-type keys
// to the (symbol, frequency, start, end, vendor) key spec.md §4.2 names.
type seriesCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
	ttl     time.Duration
}

func newSeriesCache(ttl time.Duration) *seriesCache {
	return &seriesCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

func (c *seriesCache) get(key cacheKey) (Series, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key.String()]
	if !ok || time.Since(entry.cachedAt) > c.ttl {
		return Series{}, false
	}
	return entry.series, true
}

func (c *seriesCache) put(key cacheKey, series Series) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = cacheEntry{series: series, cachedAt: time.Now()}
}

// fetchOnce returns the cached series for key if fresh, otherwise calls
// fetch exactly once across all concurrent callers sharing key (via
// singleflight) and caches the result.
func (c *seriesCache) fetchOnce(key cacheKey, fetch func() (Series, error)) (Series, error) {
	if series, ok := c.get(key); ok {
		return series, nil
	}

	result, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		if series, ok := c.get(key); ok {
			return series, nil
		}
		series, err := fetch()
		if err != nil {
			return Series{}, err
		}
		c.put(key, series)
		return series, nil
	})
	if err != nil {
		return Series{}, err
	}
	return result.(Series), nil
}

// EvictExpired removes entries whose TTL has elapsed, bounding memory use
// for symbols no longer being analyzed. Returns the number evicted.
func (c *seriesCache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for key, entry := range c.entries {
		if time.Since(entry.cachedAt) > c.ttl {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}
