package solartrack

import (
	"context"
	"time"

	"github.com/sun/sunwatch/internal/metrics"
)

// Start begins the background cache maintenance loop. It performs an initial
// warmup (filling the full [now, now+horizon] window), then continuously:
//   - Generates new frames at the leading edge
//   - Evicts expired entries from the trailing edge
//   - Detects site catalog changes and triggers cutover
//
// Blocks until ctx is cancelled.
func (c *TrackCache) Start(ctx context.Context) {
	// Wait for a site catalog before warmup.
	if !c.waitForCatalog(ctx) {
		return
	}

	c.warmup(ctx)

	ticker := time.NewTicker(c.config.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("track generator stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// waitForCatalog blocks until a site catalog is available in the store,
// checking every second. Returns false if ctx is cancelled.
func (c *TrackCache) waitForCatalog(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("track cache waiting for site catalog...")
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.store.Get() != nil {
				c.logger.Info("site catalog available, starting track warmup")
				return true
			}
		}
	}
}

// warmup fills the cache with frames for [now, now+horizon].
func (c *TrackCache) warmup(ctx context.Context) {
	catalog := c.store.Get()
	if catalog == nil {
		return
	}
	c.currentLoadedAt = catalog.LoadedAt

	now := c.RoundToStep(time.Now())
	numFrames := int(c.config.Horizon/c.config.Step) + 1

	c.logger.Info("track warmup starting",
		"frames", numFrames,
		"sites", len(catalog.Sites),
		"from", now.UTC().Format(time.RFC3339),
		"to", now.Add(c.config.Horizon).UTC().Format(time.RFC3339),
	)

	start := time.Now()
	generated := 0

	for i := 0; i < numFrames; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		targetTime := now.Add(time.Duration(i) * c.config.Step)
		c.put(buildFrame(catalog, targetTime))
		generated++
	}

	duration := time.Since(start)
	c.logger.Info("track warmup complete",
		"generated", generated,
		"duration_ms", duration.Milliseconds(),
	)
}

// tick runs one iteration of the maintenance loop.
func (c *TrackCache) tick(ctx context.Context) {
	// Check for site catalog change.
	if c.catalogChanged() {
		c.performCutover(ctx)
		return
	}

	// Generate leading edge frame.
	c.generateLeadingEdge()

	// Evict expired entries.
	c.evictExpired()
}

// generateLeadingEdge generates the frame at the leading edge of the window.
func (c *TrackCache) generateLeadingEdge() {
	target := c.RoundToStep(time.Now().Add(c.config.Horizon))

	// Skip if already cached.
	if c.Get(target) != nil {
		return
	}

	catalog := c.store.Get()
	if catalog == nil {
		c.logger.Warn("leading edge generation skipped, catalog gone")
		metrics.IncTrackRegenerationErrors()
		return
	}

	start := time.Now()
	c.put(buildFrame(catalog, target))
	duration := time.Since(start)
	metrics.ObserveTrackRegenerationDuration(duration)

	c.logger.Debug("leading edge generated",
		"timestamp", target.UTC().Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)
}
