package solartrack

import (
	"context"
	"time"

	"github.com/sun/sunwatch/internal/metrics"
)

// catalogChanged checks if the site catalog has been reloaded since the cache
// was last built.
func (c *TrackCache) catalogChanged() bool {
	catalog := c.store.Get()
	if catalog == nil {
		return false
	}
	return !catalog.LoadedAt.Equal(c.currentLoadedAt)
}

// performCutover rebuilds the entire cache using the new site catalog.
//
// Strategy:
//  1. Set grace period flag (old cache continues serving reads)
//  2. Build new entries map in the background
//  3. Atomic swap: replace old entries with new
//  4. Clear grace period flag
//
// During the rebuild, reads against the old cache continue uninterrupted.
func (c *TrackCache) performCutover(ctx context.Context) {
	catalog := c.store.Get()
	if catalog == nil {
		return
	}

	c.logger.Info("catalog cutover starting",
		"old_catalog_loaded_at", c.currentLoadedAt.UTC().Format(time.RFC3339),
		"new_catalog_loaded_at", catalog.LoadedAt.UTC().Format(time.RFC3339),
		"sites", len(catalog.Sites),
	)

	c.inGracePeriod.Store(true)
	metrics.SetTrackGracePeriodActive(true)

	start := time.Now()
	now := c.RoundToStep(time.Now())
	numFrames := int(c.config.Horizon/c.config.Step) + 1

	newEntries := make(map[time.Time]*frameEntry, numFrames)
	generated := 0

	for i := 0; i < numFrames; i++ {
		select {
		case <-ctx.Done():
			c.inGracePeriod.Store(false)
			metrics.SetTrackGracePeriodActive(false)
			c.logger.Warn("cutover cancelled by context")
			return
		default:
		}

		targetTime := now.Add(time.Duration(i) * c.config.Step)
		key := c.RoundToStep(targetTime)
		newEntries[key] = &frameEntry{
			frame:       buildFrame(catalog, targetTime),
			generatedAt: time.Now(),
		}
		generated++
	}

	// Atomic swap.
	c.replaceAll(newEntries)
	c.currentLoadedAt = catalog.LoadedAt

	c.inGracePeriod.Store(false)
	metrics.SetTrackGracePeriodActive(false)

	duration := time.Since(start)
	c.logger.Info("catalog cutover complete",
		"duration_ms", duration.Milliseconds(),
		"entries_replaced", generated,
	)
	metrics.ObserveTrackRegenerationDuration(duration)
}
