package directions

import (
	"crypto/md5"
	"fmt"
	"sync"
	"time"
)

// RouteCache holds recent provider answers keyed by a route signature, so
// a dashboard refreshing every few seconds does not hit the provider each
// time.
type RouteCache struct {
	cache      map[string]*cacheEntry
	mutex      sync.Mutex
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	stats      CacheStats
}

type cacheEntry struct {
	route        Route
	createdAt    time.Time
	lastAccessed time.Time
}

type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

func NewRouteCache(maxEntries int, ttl time.Duration) *RouteCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RouteCache{
		cache:      make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Signature quantizes both ends to ~10m so small GPS jitter still hits.
func Signature(from, to LatLng) string {
	s := fmt.Sprintf("%.4f,%.4f_%.4f,%.4f", from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	hash := md5.Sum([]byte(s))
	return fmt.Sprintf("%x", hash[:8])
}

func (c *RouteCache) Get(signature string) (Route, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, found := c.cache[signature]
	if !found {
		c.stats.Misses++
		return Route{}, false
	}

	now := c.now()
	if now.Sub(entry.createdAt) > c.ttl {
		delete(c.cache, signature)
		c.stats.Misses++
		c.stats.Evictions++
		return Route{}, false
	}

	entry.lastAccessed = now
	c.stats.Hits++
	return entry.route, true
}

func (c *RouteCache) Set(signature string, r Route) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.cache[signature]; !exists && len(c.cache) >= c.maxEntries {
		c.evictOldestLocked()
	}
	now := c.now()
	c.cache[signature] = &cacheEntry{route: r, createdAt: now, lastAccessed: now}
}

// evictOldestLocked removes the least recently used entry.
func (c *RouteCache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.cache {
		if oldestKey == "" || entry.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessed
		}
	}

	if oldestKey != "" {
		delete(c.cache, oldestKey)
		c.stats.Evictions++
	}
}

func (c *RouteCache) GetStats() map[string]interface{} {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	hitRate := 0.0
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		hitRate = float64(c.stats.Hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"cache_size":  len(c.cache),
		"max_entries": c.maxEntries,
		"hits":        c.stats.Hits,
		"misses":      c.stats.Misses,
		"hit_rate":    fmt.Sprintf("%.2f%%", hitRate),
		"evictions":   c.stats.Evictions,
		"ttl_seconds": int(c.ttl.Seconds()),
	}
}
