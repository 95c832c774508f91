package modelcache

import (
	"container/list"

	"go.uber.org/zap"
)

// evictOverBudget drops least recently used entries until the cache fits
// maxBytes. The most recent entry is never evicted, so a single asset
// larger than the budget stays cached on its own.
func (c *Cache) evictOverBudget() {
	if c.maxBytes <= 0 {
		return
	}
	for c.bytes > c.maxBytes && c.lru.Len() > 1 {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	elem := c.lru.Back()
	if elem != nil {
		c.logger.Debug("model evicted",
			zap.String("url", elem.Value.(*entry).url),
			zap.Int64("budget", c.maxBytes))
		c.removeElement(elem)
		c.stats.Evictions++
	}
}

// removeElement unlinks an entry and releases its canonical instance.
func (c *Cache) removeElement(e *list.Element) {
	c.lru.Remove(e)
	ent := e.Value.(*entry)
	delete(c.data, ent.url)
	c.bytes -= ent.size
	ent.node.Dispose()
}
