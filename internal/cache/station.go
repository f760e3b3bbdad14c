// Package cache memoizes per-station embedding sets between store round-trips.
package cache

import (
	"sync"
	"time"

	"github.com/kozaktomas/face-service/internal/constants"
	"github.com/kozaktomas/face-service/internal/database"
	"github.com/kozaktomas/face-service/internal/logging"
)

// Lookup results reported to a Recorder.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultExpired = "expired"
)

// Recorder receives one lookup result per Get.
type Recorder interface {
	CacheLookup(result string)
}

type entry struct {
	fetchedAt  time.Time
	candidates []database.Candidate
}

// StationCache holds each station's embedding set for a fixed TTL.
// Entries are replaced whole, never mutated, so readers never see a partial set.
type StationCache struct {
	mu       sync.RWMutex
	entries  map[int64]entry
	ttl      time.Duration
	now      func() time.Time
	recorder Recorder
}

// Option configures a StationCache.
type Option func(*StationCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *StationCache) { c.now = now }
}

// WithRecorder reports hits, misses and expirations.
func WithRecorder(r Recorder) Option {
	return func(c *StationCache) { c.recorder = r }
}

// NewStationCache creates a cache. A non-positive ttl uses DefaultCacheTTL.
func NewStationCache(ttl time.Duration, opts ...Option) *StationCache {
	if ttl <= 0 {
		ttl = constants.DefaultCacheTTL
	}
	c := &StationCache{
		entries: make(map[int64]entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *StationCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the station's set if it is younger than the TTL. A stale entry
// is deleted and reported as absent.
func (c *StationCache) Get(stationID int64) ([]database.Candidate, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[stationID]
	c.mu.RUnlock()

	if !ok {
		c.record(ResultMiss)
		return nil, false
	}
	if now.Sub(e.fetchedAt) <= c.ttl {
		c.record(ResultHit)
		logging.Component("cache").Debugf("Cache hit for station %d (%d embeddings)", stationID, len(e.candidates))
		return e.candidates, true
	}

	c.mu.Lock()
	// Re-check: a concurrent Put may have refreshed the entry.
	if cur, ok := c.entries[stationID]; ok && now.Sub(cur.fetchedAt) > c.ttl {
		delete(c.entries, stationID)
	}
	c.mu.Unlock()

	c.record(ResultExpired)
	logging.Component("cache").Debugf("Cache expired for station %d", stationID)
	return nil, false
}

// Put stores the set for a station, replacing any previous entry.
func (c *StationCache) Put(stationID int64, candidates []database.Candidate) {
	c.mu.Lock()
	c.entries[stationID] = entry{fetchedAt: c.now(), candidates: candidates}
	c.mu.Unlock()
	logging.Component("cache").Debugf("Cached %d embeddings for station %d", len(candidates), stationID)
}

// Invalidate drops one station's entry.
func (c *StationCache) Invalidate(stationID int64) {
	c.mu.Lock()
	delete(c.entries, stationID)
	c.mu.Unlock()
	logging.Component("cache").Debugf("Invalidated cache for station %d", stationID)
}

// InvalidateAll drops every entry.
func (c *StationCache) InvalidateAll() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	logging.Component("cache").Debug("Invalidated all embedding caches")
}

// Len returns the number of entries, stale ones included.
func (c *StationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *StationCache) record(result string) {
	if c.recorder != nil {
		c.recorder.CacheLookup(result)
	}
}
