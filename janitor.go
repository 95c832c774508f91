package modelcache

import "time"

/*
startJanitor launches the background idle-expiration worker.

================================================================================
ROLE IN CACHE LIFECYCLE
================================================================================

Idle canonical instances are expired two ways:

1. Lazily, when Load finds an idle entry (it is disposed and reloaded).
2. Actively, by this janitor, so assets nobody asks for again do not pin
   geometry memory.

================================================================================
EXECUTION MODEL
================================================================================

- If interval <= 0 or idleTTL <= 0 the janitor does not start.
- Otherwise a time.Ticker drives deleteIdle() until Stop closes stopChan.
*/
func (c *Cache) startJanitor() {
	if c.interval <= 0 || c.idleTTL <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				c.deleteIdle()
			case <-c.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop terminates the janitor. Safe to call more than once and on caches
// that never started one. Cached entries are kept; use Clear to drop them.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}
