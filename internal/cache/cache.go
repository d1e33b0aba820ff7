// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package cache

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/metrics"
)

// Entry is one cached response.
type Entry struct {
	Key      string
	Data     interface{}
	CachedAt time.Time

	prev, next *Entry
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}

// Config bounds the cache.
type Config struct {
	// TTL is how long an entry counts as fresh.
	TTL time.Duration

	// MaxEntries caps the number of entries; the oldest is evicted first.
	MaxEntries int

	// PurgeAfter is the age at which the sweep removes an entry. Entries
	// between TTL and PurgeAfter are stale but still usable as a fallback.
	PurgeAfter time.Duration

	// SweepInterval is how often Run purges old entries.
	SweepInterval time.Duration
}

// DefaultConfig returns a 5 minute TTL cache of 1000 entries kept for a day.
func DefaultConfig() Config {
	return Config{
		TTL:           5 * time.Minute,
		MaxEntries:    1000,
		PurgeAfter:    24 * time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

// Cache is a bounded in-memory response cache keyed by resource identity.
// Freshness is checked on access; expired entries are kept until they are
// swept or evicted so they can still be served when the remote service is
// unreachable.
type Cache struct {
	mu      sync.Mutex
	config  Config
	entries map[string]*Entry

	// head.next is the newest entry, tail.prev the oldest.
	head, tail *Entry

	stats Stats
	now   func() time.Time
}

// Stats counts cache activity.
type Stats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Evictions   int64     `json:"evictions"`
	Entries     int       `json:"entries"`
	LastCleanup time.Time `json:"last_cleanup"`
}

// New creates an empty cache. Zero config values fall back to DefaultConfig.
func New(cfg Config) *Cache {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.PurgeAfter < cfg.TTL {
		cfg.PurgeAfter = cfg.TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}

	c := &Cache{
		config:  cfg,
		entries: make(map[string]*Entry),
		head:    &Entry{},
		tail:    &Entry{},
		now:     time.Now,
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return c.config.TTL
}

// Get returns the entry for key only if it is still fresh. A stale entry is
// reported as a miss but left in place.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.Age(c.now()) >= c.config.TTL {
		c.stats.Misses++
		metrics.CacheMisses.Inc()
		return Entry{}, false
	}

	c.stats.Hits++
	metrics.CacheHits.Inc()
	return e.snapshot(), true
}

// GetStale returns the entry for key regardless of age, and whether it is
// still fresh.
func (c *Cache) GetStale(key string) (entry Entry, fresh bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		return Entry{}, false, false
	}
	return e.snapshot(), e.Age(c.now()) < c.config.TTL, true
}

// Set stores value under key with CachedAt set to now, replacing any previous
// entry. When the cache is full the oldest entry is evicted.
func (c *Cache) Set(key string, value interface{}) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.unlink(e)
		delete(c.entries, key)
	}

	e := &Entry{Key: key, Data: value, CachedAt: c.now()}
	c.pushFront(e)
	c.entries[key] = e

	for len(c.entries) > c.config.MaxEntries {
		oldest := c.tail.prev
		c.unlink(oldest)
		delete(c.entries, oldest.Key)
		c.stats.Evictions++
		metrics.CacheEvictions.Inc()
	}

	metrics.CacheEntries.Set(float64(len(c.entries)))
	return e.snapshot()
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.unlink(e)
		delete(c.entries, key)
		c.stats.Evictions++
		metrics.CacheEvictions.Inc()
		metrics.CacheEntries.Set(float64(len(c.entries)))
	}
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed. Writes use it to drop cached reads of the same resource.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.unlink(e)
			delete(c.entries, key)
			n++
		}
	}
	c.stats.Evictions += int64(n)
	metrics.CacheEvictions.Add(float64(n))
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return n
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Evictions += int64(len(c.entries))
	c.entries = make(map[string]*Entry)
	c.head.next = c.tail
	c.tail.prev = c.head
	metrics.CacheEntries.Set(0)
}

// Len returns the number of entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes entries older than PurgeAfter.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	// The list is ordered by CachedAt, so stop at the first young entry.
	for e := c.tail.prev; e != c.head; {
		if e.Age(now) < c.config.PurgeAfter {
			break
		}
		prev := e.prev
		c.unlink(e)
		delete(c.entries, e.Key)
		removed++
		e = prev
	}

	c.stats.Evictions += int64(removed)
	c.stats.LastCleanup = now
	metrics.CacheEvictions.Add(float64(removed))
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return removed
}

// Run sweeps on SweepInterval until ctx is done.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				logging.Debug().Int("removed", n).Msg("Cache sweep removed old entries")
			}
		}
	}
}

// GetStats returns a snapshot of the counters.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// HitRate returns hits as a percentage of lookups.
func (c *Cache) HitRate() float64 {
	s := c.GetStats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

func (c *Cache) pushFront(e *Entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *Cache) unlink(e *Entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

func (e *Entry) snapshot() Entry {
	return Entry{Key: e.Key, Data: e.Data, CachedAt: e.CachedAt}
}

// Key builds the cache key of a request: the resource, the record ID if any,
// and the filters in sorted order, e.g. "students?class_id=c1" or
// "grades/g-7". Equal requests always produce equal keys.
func Key(resource, id string, filters map[string]string) string {
	var b strings.Builder
	b.WriteString(resource)
	if id != "" {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(id))
	}
	if len(filters) > 0 {
		q := make(url.Values, len(filters))
		for k, v := range filters {
			if v != "" {
				q.Set(k, v)
			}
		}
		if enc := q.Encode(); enc != "" {
			b.WriteByte('?')
			b.WriteString(enc)
		}
	}
	return b.String()
}
