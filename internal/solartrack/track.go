// Package solartrack provides an in-memory frame cache with a rolling window.
//
// The cache maintains solar position frames for [now, now+horizon]
// continuously. A background worker generates new frames at the leading edge
// and evicts expired entries from the trailing edge. When the site catalog
// changes, the cache is rebuilt gracefully without interrupting reads.
package solartrack

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/sun/sunwatch/internal/ephemeris"
	"github.com/sun/sunwatch/internal/metrics"
	"github.com/sun/sunwatch/internal/sites"
)

// Config holds track cache configuration loaded from environment variables.
type Config struct {
	Step        time.Duration // Frame interval (default: 5s)
	Horizon     time.Duration // How far ahead to cache (default: 600s)
	GracePeriod time.Duration // Catalog cutover grace period (default: 30s)
	Buffer      time.Duration // Keep entries this long past expiration (default: 60s)
}

// SitePoint is the sun's horizontal position at one site.
type SitePoint struct {
	Slug     string  `json:"slug"`
	Altitude float64 `json:"altitude"`
	Azimuth  float64 `json:"azimuth"`
	Visible  bool    `json:"visible"`
}

// Frame holds the sun's position at every catalog site for one instant.
type Frame struct {
	Timestamp time.Time   `json:"timestamp"`
	Sites     []SitePoint `json:"sites"`
}

// frameEntry wraps a frame with generation metadata.
type frameEntry struct {
	frame       *Frame
	generatedAt time.Time
}

// TrackCache is an in-memory cache of solar position frames with a rolling
// window. Safe for concurrent use by multiple goroutines.
type TrackCache struct {
	mu      sync.RWMutex
	entries map[time.Time]*frameEntry

	config Config
	store  *sites.Store
	logger *slog.Logger

	// Track current catalog for change detection.
	currentLoadedAt time.Time

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	// Cutover state.
	inGracePeriod atomic.Bool
}

// NewTrackCache creates a new track cache.
func NewTrackCache(config Config, store *sites.Store, logger *slog.Logger) *TrackCache {
	logger.Info("track cache initialized",
		"step_seconds", config.Step.Seconds(),
		"horizon_seconds", config.Horizon.Seconds(),
		"buffer_seconds", config.Buffer.Seconds(),
		"grace_period_seconds", config.GracePeriod.Seconds(),
	)

	return &TrackCache{
		entries: make(map[time.Time]*frameEntry),
		config:  config,
		store:   store,
		logger:  logger,
	}
}

// RoundToStep rounds a timestamp down to the nearest step boundary.
// This normalizes timestamps so cache lookups hit consistently.
// Always converts to UTC first since the ephemeris expects UTC components.
func (c *TrackCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

// Get returns the frame for the given timestamp, or nil if not cached.
// The timestamp is rounded to the step boundary.
func (c *TrackCache) Get(t time.Time) *Frame {
	key := c.RoundToStep(t)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		metrics.IncTrackCacheHits()
		return entry.frame
	}

	c.misses.Add(1)
	metrics.IncTrackCacheMisses()
	return nil
}

// GetRecent returns up to count frames before (and including) time t,
// ordered oldest-first. Used to build azimuth trails.
func (c *TrackCache) GetRecent(t time.Time, count int) []*Frame {
	if count <= 0 {
		return nil
	}

	key := c.RoundToStep(t)

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*Frame, 0, count)
	for i := count - 1; i >= 0; i-- {
		ts := key.Add(-time.Duration(i) * c.config.Step)
		if entry, ok := c.entries[ts]; ok {
			result = append(result, entry.frame)
		}
	}
	return result
}

// GetLatest returns the frame closest to (but not after) the current time.
func (c *TrackCache) GetLatest() *Frame {
	now := c.RoundToStep(time.Now())

	c.mu.RLock()
	defer c.mu.RUnlock()

	// Walk backwards from now to find the most recent entry.
	for i := 0; i < 10; i++ {
		key := now.Add(-time.Duration(i) * c.config.Step)
		if entry, ok := c.entries[key]; ok {
			c.hits.Add(1)
			metrics.IncTrackCacheHits()
			return entry.frame
		}
	}

	c.misses.Add(1)
	metrics.IncTrackCacheMisses()
	return nil
}

// buildFrame computes the solar position at every catalog site for ts.
func buildFrame(catalog *sites.Catalog, ts time.Time) *Frame {
	points := make([]SitePoint, 0, len(catalog.Sites))
	for _, s := range catalog.Sites {
		_, hc := ephemeris.Position(s.Latitude, s.Longitude, ts)
		points = append(points, SitePoint{
			Slug:     s.Slug,
			Altitude: hc.Altitude,
			Azimuth:  hc.Azimuth,
			Visible:  ephemeris.AboveHorizon(s.Latitude, s.Longitude, ts),
		})
	}
	return &Frame{Timestamp: ts, Sites: points}
}

// put stores a frame in the cache. Caller must not hold mu.
func (c *TrackCache) put(f *Frame) {
	key := c.RoundToStep(f.Timestamp)
	entry := &frameEntry{
		frame:       f,
		generatedAt: time.Now(),
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	c.updateMetrics()
}

// evictExpired removes entries older than now - buffer.
func (c *TrackCache) evictExpired() int {
	cutoff := time.Now().Add(-c.config.Buffer)
	var removed int

	c.mu.Lock()
	for ts := range c.entries {
		if ts.Before(cutoff) {
			delete(c.entries, ts)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddTrackCacheEvictions(removed)
		c.updateMetrics()
		c.logger.Debug("track cache eviction", "entries_removed", removed)
	}

	return removed
}

// replaceAll atomically replaces all cache entries (used during catalog cutover).
func (c *TrackCache) replaceAll(newEntries map[time.Time]*frameEntry) {
	c.mu.Lock()
	c.entries = newEntries
	c.mu.Unlock()
	c.updateMetrics()
}

// Stats returns current cache statistics.
func (c *TrackCache) Stats() Stats {
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
		SizeBytes:       c.estimateSizeBytes(),
		OldestTimestamp: oldest,
		NewestTimestamp: newest,
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		InGracePeriod:   c.inGracePeriod.Load(),
	}
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries         int       `json:"entries"`
	SizeBytes       int64     `json:"size_bytes"`
	OldestTimestamp time.Time `json:"oldest_timestamp"`
	NewestTimestamp time.Time `json:"newest_timestamp"`
	Hits            int64     `json:"hits"`
	Misses          int64     `json:"misses"`
	Evictions       int64     `json:"evictions"`
	InGracePeriod   bool      `json:"in_grace_period"`
}

// estimateSizeBytes returns a rough estimate of the cache memory footprint.
func (c *TrackCache) estimateSizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int64
	for _, entry := range c.entries {
		if entry.frame == nil {
			continue
		}
		siteSize := int64(len(entry.frame.Sites)) * int64(unsafe.Sizeof(SitePoint{}))
		// Frame overhead: Timestamp(24) + slice header(24).
		frameOverhead := int64(48)
		// frameEntry overhead: pointer(8) + generatedAt(24).
		entryOverhead := int64(32)
		total += siteSize + frameOverhead + entryOverhead
	}

	// Map overhead (rough: 8 bytes per bucket).
	total += int64(len(c.entries)) * 8

	return total
}

// updateMetrics publishes current cache size to Prometheus.
func (c *TrackCache) updateMetrics() {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	metrics.SetTrackCacheEntries(count)
}
