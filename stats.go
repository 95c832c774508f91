package modelcache

import "sort"

/*
Stats represents runtime counters of the cache.

- Hits         -> Loads served from a cached canonical instance
- Misses       -> Loads that had to wait on a fetch (new or in flight)
- Loads        -> Fetches that completed and populated the cache
- LoadFailures -> Fetches that failed (fetch, decode, or loader panic)
- Evictions    -> Canonical instances dropped for the byte budget
- Expirations  -> Canonical instances dropped for being idle

Misses minus Loads and LoadFailures approximates how many callers were
deduplicated onto someone else's fetch.

Fields are modified under Cache-level locking; Stats() returns a copy.
*/
type Stats struct {
	Hits         uint64
	Misses       uint64
	Loads        uint64
	LoadFailures uint64
	Evictions    uint64
	Expirations  uint64
}

// Diagnostics is a read-only snapshot of cache occupancy for logging.
type Diagnostics struct {
	CachedModels int      `json:"cachedModels"`
	ActiveLoads  int      `json:"activeLoads"`
	CachedURLs   []string `json:"cachedUrls"`
}

// Diagnostics reports cached and loading URLs.
func (c *Cache) Diagnostics() Diagnostics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := Diagnostics{
		CachedModels: len(c.data),
		ActiveLoads:  len(c.flights),
		CachedURLs:   make([]string, 0, len(c.data)),
	}
	for url := range c.data {
		d.CachedURLs = append(d.CachedURLs, url)
	}
	sort.Strings(d.CachedURLs)
	return d
}

// MemoryEstimate aggregates geometry counts over canonical instances.
// Clones share these buffers and are not counted again. Approximate,
// diagnostics only.
type MemoryEstimate struct {
	VertexCount    int
	TriangleCount  int
	MaterialCount  int
	EstimatedBytes int64
}

// MemorySummary is the telemetry form of a MemoryEstimate.
type MemorySummary struct {
	EstimatedVertices  int     `json:"estimatedVertices"`
	EstimatedTriangles int     `json:"estimatedTriangles"`
	EstimatedMemoryMB  float64 `json:"estimatedMemoryMB"`
}

// Summary converts the estimate to vertices, triangles and megabytes.
func (m MemoryEstimate) Summary() MemorySummary {
	return MemorySummary{
		EstimatedVertices:  m.VertexCount,
		EstimatedTriangles: m.TriangleCount,
		EstimatedMemoryMB:  float64(m.EstimatedBytes) / (1024 * 1024),
	}
}

// MemoryEstimate walks every canonical instance.
func (c *Cache) MemoryEstimate() MemoryEstimate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var m MemoryEstimate
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		st := elem.Value.(*entry).node.Stats()
		m.VertexCount += st.Vertices
		m.TriangleCount += st.Triangles
		m.MaterialCount += st.Materials
		m.EstimatedBytes += st.Bytes
	}
	return m
}
