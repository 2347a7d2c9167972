package flightdata

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"tripwatch/internal/trip"
)

// cacheEntry is either a snapshot or a remembered not-found result.
type cacheEntry struct {
	snap     *trip.FlightSnapshot
	notFound bool
}

// snapshotCache remembers recent provider answers per (ident, date) key.
// Entries expire after the TTL and the oldest entry falls out when the cache
// is full. Not-found answers are cached too so a mistyped flight number does
// not turn into a provider request per poll.
type snapshotCache struct {
	lru *expirable.LRU[string, cacheEntry]

	hits      atomic.Int64
	misses    atomic.Int64
	negatives atomic.Int64
}

func newSnapshotCache(size int, ttl time.Duration) *snapshotCache {
	return &snapshotCache{
		lru: expirable.NewLRU[string, cacheEntry](size, nil, ttl),
	}
}

// get returns the cached entry for key. It counts a hit, a negative hit or a
// miss as a side effect.
func (c *snapshotCache) get(key string) (cacheEntry, bool) {
	e, ok := c.lru.Get(key)
	switch {
	case !ok:
		c.misses.Add(1)
	case e.notFound:
		c.negatives.Add(1)
	default:
		c.hits.Add(1)
	}
	return e, ok
}

func (c *snapshotCache) put(key string, snap *trip.FlightSnapshot) {
	c.lru.Add(key, cacheEntry{snap: snap})
}

func (c *snapshotCache) putNegative(key string) {
	c.lru.Add(key, cacheEntry{notFound: true})
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	NegativeHits int64 `json:"negative_hits"`
	Entries      int   `json:"entries"`
}

func (c *snapshotCache) stats() CacheStats {
	return CacheStats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		NegativeHits: c.negatives.Load(),
		Entries:      c.lru.Len(),
	}
}
