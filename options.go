package modelcache

import (
	"time"

	"go.uber.org/zap"
)

/*
Option defines a functional configuration modifier for Cache.

    cache := modelcache.New(loader,
        modelcache.WithMaxBytes(256<<20),
        modelcache.WithIdleTTL(10*time.Minute),
        modelcache.WithCleanupInterval(time.Minute),
    )

With no options the cache keeps every canonical instance until Dispose or
Clear, which is the behavior hosting views rely on by default.
*/
type Option func(*Cache)

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxBytes bounds the geometry bytes held by canonical instances.
// Least recently requested assets are disposed first. n <= 0 disables the
// bound.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// WithIdleTTL expires canonical instances that have not been requested for
// d. Expiry is lazy on Load and, with WithCleanupInterval, active.
func WithIdleTTL(d time.Duration) Option {
	return func(c *Cache) {
		c.idleTTL = d
	}
}

/*
WithCleanupInterval configures how often the janitor scans for idle
entries.

If d <= 0 the janitor does not start and idle entries are only expired
when they are requested again.
*/
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Cache) {
		c.interval = d
	}
}
