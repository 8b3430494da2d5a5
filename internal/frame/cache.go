package frame

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbview/orbview/internal/catalog"
	"github.com/orbview/orbview/internal/events"
	"github.com/orbview/orbview/internal/metrics"
	"github.com/orbview/orbview/internal/track"
)

// CacheConfig holds the rolling-window cache settings.
type CacheConfig struct {
	Step        time.Duration // frame interval (default 5s)
	Horizon     time.Duration // how far ahead of the wall clock to fill (default 60s)
	Buffer      time.Duration // keep entries this long past the wall clock (default 60s)
	GracePeriod time.Duration // minimum delay between catalog cutovers (default 5s)

	Track  track.Config  // window used for cached frames
	Events events.Config // detector settings used for cached frames
}

// DefaultCacheConfig returns the standard live-view cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Step:        5 * time.Second,
		Horizon:     60 * time.Second,
		Buffer:      60 * time.Second,
		GracePeriod: 5 * time.Second,
		Track:       track.DefaultConfig(),
		Events:      events.DefaultConfig(),
	}
}

type cacheEntry struct {
	frame       *Frame
	generatedAt time.Time
}

// Cache is an in-memory frame cache over a rolling window around the wall
// clock. Safe for concurrent use. A background loop (Start) fills the leading
// edge and rebuilds the whole window when the catalog version changes.
type Cache struct {
	mu      sync.RWMutex
	entries map[time.Time]*cacheEntry

	config  CacheConfig
	builder *Builder
	catalog *catalog.Catalog
	logger  *slog.Logger

	// Catalog version the current entries were built from. Written by the
	// generator goroutine, read by the stats handler.
	builtVersion atomic.Uint64

	// When the last cutover finished. Generator goroutine only.
	lastCutover time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	cutoverActive atomic.Bool
}

// NewCache creates a frame cache. Start must be called for the window to
// fill; until then every Get misses.
func NewCache(config CacheConfig, builder *Builder, cat *catalog.Catalog, logger *slog.Logger) *Cache {
	logger.Info("frame cache initialized",
		"step_seconds", config.Step.Seconds(),
		"horizon_seconds", config.Horizon.Seconds(),
		"buffer_seconds", config.Buffer.Seconds(),
	)
	return &Cache{
		entries: make(map[time.Time]*cacheEntry),
		config:  config,
		builder: builder,
		catalog: cat,
		logger:  logger,
	}
}

// RoundToStep rounds a timestamp down to the nearest step boundary so
// lookups hit consistently. Always converts to UTC first.
func (c *Cache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

// Get returns the cached frame covering t, or nil on a miss. A hit also
// requires the entry's catalog version to match the live catalog, so stale
// frames never serve across a membership change.
func (c *Cache) Get(t time.Time) *Frame {
	key := c.RoundToStep(t)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && entry.frame.CatalogVersion == c.catalog.Version() {
		c.hits.Add(1)
		metrics.IncFrameCacheHits()
		return entry.frame
	}

	c.misses.Add(1)
	metrics.IncFrameCacheMisses()
	return nil
}

// GetLatest returns the most recent cached frame at or before now, walking
// back a handful of steps. Used by stream clients that want "current".
func (c *Cache) GetLatest() *Frame {
	now := c.RoundToStep(time.Now())
	ver := c.catalog.Version()

	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := 0; i < 10; i++ {
		key := now.Add(-time.Duration(i) * c.config.Step)
		if entry, ok := c.entries[key]; ok && entry.frame.CatalogVersion == ver {
			c.hits.Add(1)
			metrics.IncFrameCacheHits()
			return entry.frame
		}
	}

	c.misses.Add(1)
	metrics.IncFrameCacheMisses()
	return nil
}

// put stores a frame under its step-rounded timestamp. Caller must not hold mu.
func (c *Cache) put(f *Frame) {
	key := c.RoundToStep(f.Time)

	c.mu.Lock()
	c.entries[key] = &cacheEntry{frame: f, generatedAt: time.Now()}
	count := len(c.entries)
	c.mu.Unlock()

	metrics.SetFrameCacheEntries(count)
}

// evictExpired removes entries older than now - buffer.
func (c *Cache) evictExpired() int {
	cutoff := time.Now().UTC().Add(-c.config.Buffer)
	var removed int

	c.mu.Lock()
	for ts := range c.entries {
		if ts.Before(cutoff) {
			delete(c.entries, ts)
			removed++
		}
	}
	count := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddFrameCacheEvictions(removed)
		metrics.SetFrameCacheEntries(count)
		c.logger.Debug("frame cache eviction", "entries_removed", removed)
	}
	return removed
}

// replaceAll swaps the full entry map in one step, used during cutover so
// reads never observe a half-rebuilt window.
func (c *Cache) replaceAll(newEntries map[time.Time]*cacheEntry) {
	c.mu.Lock()
	c.entries = newEntries
	count := len(c.entries)
	c.mu.Unlock()

	metrics.SetFrameCacheEntries(count)
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries         int       `json:"entries"`
	OldestTimestamp time.Time `json:"oldest_timestamp"`
	NewestTimestamp time.Time `json:"newest_timestamp"`
	Hits            int64     `json:"hits"`
	Misses          int64     `json:"misses"`
	Evictions       int64     `json:"evictions"`
	CutoverActive   bool      `json:"cutover_active"`
	CatalogVersion  uint64    `json:"catalog_version"`
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)
	var oldest, newest time.Time
	for ts := range c.entries {
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
		if newest.IsZero() || ts.After(newest) {
			newest = ts
		}
	}
	c.mu.RUnlock()

	return Stats{
		Entries:         count,
		OldestTimestamp: oldest,
		NewestTimestamp: newest,
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		CutoverActive:   c.cutoverActive.Load(),
		CatalogVersion:  c.builtVersion.Load(),
	}
}
