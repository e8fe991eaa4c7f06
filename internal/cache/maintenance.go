package cache

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
)

// maintenanceLoop is the per-instance scheduler: on every tick it sweeps
// expired entries, then snapshots the survivors to storage.
//
// Why a ticker-based full scan? It is easy to reason about and avoids
// per-entry timers, which are expensive and hard to own. Lazy expiration in
// Get/Has alone would leave entries that are never queried again sitting in
// memory indefinitely.
func (c *Cache[V]) maintenanceLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Cleanup(); removed > 0 {
				level.Debug(c.logger).Log("msg", "swept expired entries", "removed", removed)
			}
			c.SaveToStorage(context.WithoutCancel(c.ctx))
		}
	}
}

// Shutdown stops the maintenance goroutine, writes one final snapshot, and
// clears the in-memory state. It is idempotent and guarantees that no
// further ticks fire after it returns. Subsequent writes are dropped and
// reads miss.
//
// ctx bounds only the final snapshot write.
func (c *Cache[V]) Shutdown(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	// Cancel outside the lock so shutdown doesn't block readers/writers.
	cancel()
	c.wg.Wait()

	c.SaveToStorage(ctx)

	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()

	level.Info(c.logger).Log("msg", "cache shut down")
}
