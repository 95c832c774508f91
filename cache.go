package modelcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Krishna8167/modelcache/scene"
)

/*
Cache deduplicates loads of 3D model assets and hands out independent
clones of a single canonical instance per URL.

================================================================================
ARCHITECTURAL OVERVIEW
================================================================================

The cache combines three structures:

1. Hash Map (map[string]*list.Element)
   - O(1) lookup of the canonical instance for a URL.

2. Doubly Linked List (*list.List)
   - Recency ordering for byte-budget and idle eviction.
   - Every Load of a cached URL moves its element to the front.

3. singleflight.Group keyed by URL
   - At most one fetch+decode in flight per URL.
   - Callers arriving while a load runs wait on the same result.
   - The group forgets the key when the load settles, so a failed load
     is retried from scratch by the next caller.

================================================================================
OWNERSHIP MODEL
================================================================================

The cache exclusively owns the canonical scene graph for each URL and never
returns it. Every successful Load returns canonical.Clone(): own transforms,
shared geometry. Dispose/eviction releases the canonical references only;
clones stay valid until their owners dispose them.

================================================================================
CONCURRENCY MODEL
================================================================================

- sync.RWMutex protects the map, list, in-flight bookkeeping and stats.
- Cloning and disposal of canonical instances both happen under the write
  lock, so a clone is never taken from a half-disposed tree.
- The decode itself runs outside the lock.
- A caller's context only bounds its own wait. The fetch runs on a detached
  context and still populates the cache after every waiter has gone.

================================================================================
STRUCTURE FIELDS
================================================================================

loader   -> fetch + decode backend
data     -> URL -> *list.Element holding *entry
lru      -> recency list, front = most recently requested
flights  -> per-URL waiters, progress subscribers, fetch status
maxBytes -> byte budget (0 = unbounded)
idleTTL  -> idle lifetime of a canonical instance (0 = forever)
interval -> janitor period
stats    -> hit/miss/load counters
*/
type Cache struct {
	loader   Loader
	group    singleflight.Group
	data     map[string]*list.Element
	lru      *list.List
	flights  map[string]*flight
	mu       sync.RWMutex
	bytes    int64
	maxBytes int64
	idleTTL  time.Duration
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	stats    Stats
	logger   *zap.Logger
}

/*
New initializes and returns a configured Cache backed by loader.

Each Cache is independent: there is no process-wide instance, so tests and
separate views can hold isolated caches.

If both WithIdleTTL and WithCleanupInterval are set, a background janitor
is started and must be stopped with Stop.
*/
func New(loader Loader, opts ...Option) *Cache {
	c := &Cache{
		loader:   loader,
		data:     make(map[string]*list.Element),
		lru:      list.New(),
		flights:  make(map[string]*flight),
		stopChan: make(chan struct{}),
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.startJanitor()

	return c
}

/*
Load returns a new clone of the asset at url.

EXECUTION FLOW:

1. If a canonical instance is cached (and not idle-expired):
   - Move it to the LRU front, count a hit, return a clone.

2. Otherwise count a miss, register as a waiter for url, and join the
   singleflight call for url. The first joiner runs fetch; everyone else
   waits on the same result. onProgress receives (loaded, total) from the
   one underlying download.

3. On success, clone the canonical instance under the lock. If it was
   disposed between settling and cloning, go round again.

4. On failure, return *LoadError. Nothing is cached, so the next call
   starts a fresh load.

Context cancellation returns a *LoadError wrapping ctx.Err() to this caller
only.
*/
func (c *Cache) Load(ctx context.Context, url string, onProgress ProgressFunc) (*scene.Node, error) {
	if url == "" {
		return nil, &LoadError{URL: url, Err: ErrEmptyURL}
	}

	for {
		c.mu.Lock()
		if elem, found := c.data[url]; found {
			if clone := c.hitLocked(elem); clone != nil {
				c.mu.Unlock()
				return clone, nil
			}
		}
		c.stats.Misses++
		sub := c.joinLocked(url, onProgress)
		c.mu.Unlock()

		detached := context.WithoutCancel(ctx)
		ch := c.group.DoChan(url, func() (interface{}, error) {
			return c.fetch(detached, url)
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			c.leave(url, sub)
			return nil, &LoadError{URL: url, Err: ctx.Err()}
		}
		c.leave(url, sub)

		if res.Err != nil {
			return nil, asLoadError(url, res.Err)
		}

		c.mu.Lock()
		clone := res.Val.(*scene.Node).Clone()
		c.mu.Unlock()
		if clone != nil {
			return clone, nil
		}
		c.logger.Debug("canonical instance disposed before clone, reloading", zap.String("url", url))
	}
}

// hitLocked serves a cached entry, or expires it lazily and returns nil.
func (c *Cache) hitLocked(elem *list.Element) *scene.Node {
	e := elem.Value.(*entry)
	now := time.Now()
	if e.idle(c.idleTTL, now) {
		c.removeElement(elem)
		c.stats.Expirations++
		return nil
	}
	e.touch(now)
	c.lru.MoveToFront(elem)
	c.stats.Hits++
	return e.node.Clone()
}

/*
fetch performs the single underlying load for url. It runs inside the
singleflight call, so at most one fetch per URL executes at a time.

A caller may join the group after a previous load already populated the
cache but before the key was forgotten; the cache is re-checked first so
that case never issues a second download.

Panics from a loader or decoder are converted to errors so that a corrupt
asset fails its own load instead of the process.
*/
func (c *Cache) fetch(ctx context.Context, url string) (node interface{}, err error) {
	c.mu.Lock()
	if elem, found := c.data[url]; found {
		n := elem.Value.(*entry).node
		c.mu.Unlock()
		return n, nil
	}
	c.flightLocked(url).fetching = true
	c.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panic: %v", r)
		}
		c.mu.Lock()
		if fl, ok := c.flights[url]; ok {
			fl.fetching = false
			c.dropFlightLocked(url, fl)
		}
		if err != nil {
			c.stats.LoadFailures++
		}
		c.mu.Unlock()
		if err != nil {
			c.logger.Warn("model load failed", zap.String("url", url), zap.Error(err))
		}
	}()

	c.logger.Debug("loading model", zap.String("url", url))
	n, err := c.loader.Load(ctx, url, func(loaded, total int64) {
		c.broadcast(url, loaded, total)
	})
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNoScene
	}

	size := n.Stats().Bytes
	c.mu.Lock()
	c.insertLocked(url, n, size)
	c.stats.Loads++
	c.mu.Unlock()

	c.logger.Info("model loaded",
		zap.String("url", url),
		zap.Int64("bytes", size),
		zap.Duration("elapsed", time.Since(start)))
	return n, nil
}

func (c *Cache) insertLocked(url string, n *scene.Node, size int64) {
	if elem, found := c.data[url]; found {
		c.removeElement(elem)
	}
	e := newEntry(url, n, size)
	c.data[url] = c.lru.PushFront(e)
	c.bytes += size
	c.evictOverBudget()
}

// IsCached reports whether a canonical instance for url is held.
func (c *Cache) IsCached(url string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, found := c.data[url]
	return found
}

// IsLoading reports whether a load for url is in flight.
func (c *Cache) IsLoading(url string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, found := c.flights[url]
	return found
}

/*
Dispose releases the canonical instance for url and removes it from the
cache. Clones already handed out are unaffected. Missing keys are ignored.
*/
func (c *Cache) Dispose(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.data[url]; found {
		c.removeElement(elem)
		c.logger.Debug("model disposed", zap.String("url", url))
	}
}

// Clear disposes every cached URL.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		c.removeElement(elem)
		elem = prev
	}
}

// Len is the number of cached canonical instances.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

/*
deleteIdle performs active expiration by scanning the LRU list from the
back and disposing canonical instances idle for longer than idleTTL.

Invoked by the janitor at the configured interval.
*/
func (c *Cache) deleteIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		e := elem.Value.(*entry)
		if e.idle(c.idleTTL, now) {
			c.removeElement(elem)
			c.stats.Expirations++
			c.logger.Debug("model expired", zap.String("url", e.url))
		}
		elem = prev
	}
}
