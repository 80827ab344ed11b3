package aggregate

import (
	"context"
	"sync"
	"time"

	"eventcal/internal/metrics"
	"eventcal/internal/model"
)

// DefaultTTL is how long a merged result is served before refreshing.
const DefaultTTL = 30 * time.Minute

// Entry is one cached aggregation result.
type Entry struct {
	Events   []model.Event
	StoredAt time.Time
}

// Cache holds the most recent successful aggregation for ttl.
type Cache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	entry *Entry
}

// NewCache creates an empty cache. now may be nil (time.Now).
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now}
}

// Get returns the cached entry while it is younger than the TTL.
func (c *Cache) Get() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil || c.now().Sub(c.entry.StoredAt) >= c.ttl {
		return Entry{}, false
	}
	return *c.entry, true
}

// Set replaces the cached entry.
func (c *Cache) Set(events []model.Event) Entry {
	e := &Entry{Events: events, StoredAt: c.now()}
	c.mu.Lock()
	c.entry = e
	c.mu.Unlock()
	return *e
}

// Service serves events from the cache and refreshes it on a miss.
//
// Concurrent misses each run their own aggregation; the last one to finish
// wins the cache slot.
type Service struct {
	agg   *Aggregator
	cache *Cache
}

// NewService combines an Aggregator and a Cache.
func NewService(agg *Aggregator, cache *Cache) *Service {
	return &Service{agg: agg, cache: cache}
}

// Events returns the cached events, or runs a pass and caches its result.
// hit reports whether the cache answered.
func (s *Service) Events(ctx context.Context) (events []model.Event, hit bool, err error) {
	if e, ok := s.cache.Get(); ok {
		metrics.RecordCache(true)
		return e.Events, true, nil
	}
	metrics.RecordCache(false)

	pass, err := s.agg.Run(ctx)
	if err != nil {
		return nil, false, err
	}
	s.cache.Set(pass.Events)
	return pass.Events, false, nil
}
