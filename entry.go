package modelcache

import (
	"time"

	"github.com/Krishna8167/modelcache/scene"
)

/*
entry represents one canonical asset stored inside the Cache list.

STRUCTURE

url        -> cache key, repeated here so list scans can delete from the map
node       -> canonical scene graph, never handed out directly
size       -> geometry bytes, charged against the byte budget
loadedAt   -> when the load settled
lastAccess -> UnixNano of the last Load served from this entry

IDLE EXPIRATION

- If the cache has no idle TTL, entries live until disposed or evicted.
- Otherwise an entry is idle once now - lastAccess > ttl.

lastAccess is stored as UnixNano (int64) for cheap comparison, as with the
item expiration of a plain TTL cache.
*/
type entry struct {
	url        string
	node       *scene.Node
	size       int64
	loadedAt   time.Time
	lastAccess int64
}

func newEntry(url string, node *scene.Node, size int64) *entry {
	now := time.Now()
	return &entry{
		url:        url,
		node:       node,
		size:       size,
		loadedAt:   now,
		lastAccess: now.UnixNano(),
	}
}

func (e *entry) touch(now time.Time) {
	e.lastAccess = now.UnixNano()
}

func (e *entry) idle(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.UnixNano()-e.lastAccess > int64(ttl)
}
