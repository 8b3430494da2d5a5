package frame

import (
	"context"
	"time"

	"github.com/orbview/orbview/internal/metrics"
)

// Start runs the background cache maintenance loop. It performs an initial
// warmup filling [now, now+horizon], then on every step:
//   - rebuilds the whole window when the catalog version changed
//   - builds the frame at the leading edge
//   - evicts entries behind the trailing edge
//
// Blocks until ctx is cancelled.
func (c *Cache) Start(ctx context.Context) {
	if !c.waitForCatalog(ctx) {
		return
	}

	c.warmup(ctx)

	ticker := time.NewTicker(c.config.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("frame generator stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// waitForCatalog blocks until the catalog holds at least one satellite,
// checking every second. Returns false if ctx is cancelled.
func (c *Cache) waitForCatalog(ctx context.Context) bool {
	if c.catalog.Len() > 0 {
		return true
	}

	c.logger.Info("frame cache waiting for catalog entries")
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.catalog.Len() > 0 {
				c.logger.Info("catalog populated, starting frame warmup")
				return true
			}
		}
	}
}

// warmup fills the cache with frames for [now, now+horizon].
func (c *Cache) warmup(ctx context.Context) {
	c.builtVersion.Store(c.catalog.Version())

	now := c.RoundToStep(time.Now())
	numFrames := int(c.config.Horizon/c.config.Step) + 1

	c.logger.Info("frame warmup starting",
		"frames", numFrames,
		"from", now.Format(time.RFC3339),
		"to", now.Add(c.config.Horizon).Format(time.RFC3339),
	)

	start := time.Now()
	generated := 0
	for i := 0; i < numFrames; i++ {
		target := now.Add(time.Duration(i) * c.config.Step)
		f, err := c.builder.Build(ctx, target, c.config.Track, c.config.Events)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("warmup frame build failed", "timestamp", target, "error", err)
			continue
		}
		c.put(f)
		generated++
	}

	c.logger.Info("frame warmup complete",
		"generated", generated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// tick runs one iteration of the maintenance loop.
func (c *Cache) tick(ctx context.Context) {
	// A rapid run of catalog edits triggers at most one rebuild per grace
	// period; the version check catches up on the next tick.
	if c.catalog.Version() != c.builtVersion.Load() && time.Since(c.lastCutover) >= c.config.GracePeriod {
		c.performCutover(ctx)
		return
	}

	c.generateLeadingEdge(ctx)
	c.evictExpired()
}

// generateLeadingEdge builds the frame at the leading edge of the window.
func (c *Cache) generateLeadingEdge(ctx context.Context) {
	target := c.RoundToStep(time.Now().Add(c.config.Horizon))

	c.mu.RLock()
	_, cached := c.entries[target]
	c.mu.RUnlock()
	if cached {
		return
	}

	f, err := c.builder.Build(ctx, target, c.config.Track, c.config.Events)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("leading edge build failed", "timestamp", target.Format(time.RFC3339), "error", err)
		}
		return
	}
	c.put(f)

	c.logger.Debug("leading edge generated", "timestamp", target.Format(time.RFC3339))
}

// performCutover rebuilds the entire window against the new catalog version.
// Reads against the old entries continue while the new map is built; the swap
// at the end is a single pointer replacement.
func (c *Cache) performCutover(ctx context.Context) {
	newVersion := c.catalog.Version()

	c.logger.Info("catalog cutover starting",
		"old_version", c.builtVersion.Load(),
		"new_version", newVersion,
	)

	c.cutoverActive.Store(true)
	metrics.SetFrameCacheCutoverActive(true)
	defer func() {
		c.cutoverActive.Store(false)
		metrics.SetFrameCacheCutoverActive(false)
	}()

	start := time.Now()
	now := c.RoundToStep(time.Now())
	numFrames := int(c.config.Horizon/c.config.Step) + 1

	newEntries := make(map[time.Time]*cacheEntry, numFrames)
	generated := 0
	for i := 0; i < numFrames; i++ {
		target := now.Add(time.Duration(i) * c.config.Step)
		f, err := c.builder.Build(ctx, target, c.config.Track, c.config.Events)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Warn("cutover cancelled by context")
				return
			}
			c.logger.Warn("cutover frame build failed", "timestamp", target.Format(time.RFC3339), "error", err)
			continue
		}
		newEntries[c.RoundToStep(f.Time)] = &cacheEntry{frame: f, generatedAt: time.Now()}
		generated++
	}

	c.replaceAll(newEntries)
	c.builtVersion.Store(newVersion)
	c.lastCutover = time.Now()

	c.logger.Info("catalog cutover complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"entries_replaced", generated,
	)
}
