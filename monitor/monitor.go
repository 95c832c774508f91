// Package monitor samples process memory, frame work and cache occupancy
// on an interval and keeps a short history for before/after comparisons.
package monitor

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Krishna8167/modelcache"
	"github.com/Krishna8167/modelcache/render"
)

const (
	// DefaultCapacity is how many snapshots are kept.
	DefaultCapacity = 50
	// DefaultInterval is the sampling interval used when Start gets <= 0.
	DefaultInterval = 5 * time.Second
)

const mb = 1024 * 1024

// Cache is the part of *modelcache.Cache the monitor reads.
type Cache interface {
	MemoryEstimate() modelcache.MemoryEstimate
	Diagnostics() modelcache.Diagnostics
}

// FrameSource reports frame counters. *surface.Surface and *render.Loop
// implement it.
type FrameSource interface {
	Stats() render.Stats
}

// MemoryUsage is the process heap at sample time. Limit is the soft memory
// limit, or Sys when none is set.
type MemoryUsage struct {
	HeapAlloc uint64 `json:"heapAlloc"`
	HeapSys   uint64 `json:"heapSys"`
	Sys       uint64 `json:"sys"`
	Limit     uint64 `json:"limit"`
	NumGC     uint32 `json:"numGC"`
}

// FrameInfo is the frame work done so far.
type FrameInfo struct {
	Frames  uint64 `json:"frames"`
	Drawn   uint64 `json:"drawn"`
	Skipped uint64 `json:"skipped"`
	Errors  uint64 `json:"errors"`
}

// ModelInfo is cache occupancy and its geometry estimate.
type ModelInfo struct {
	CachedModels int `json:"cachedModels"`
	ActiveLoads  int `json:"activeLoads"`
	modelcache.MemorySummary
}

// Snapshot is one sample. Frames and Models are nil when the monitor has
// no source for them.
type Snapshot struct {
	Time   time.Time   `json:"timestamp"`
	Memory MemoryUsage `json:"memoryUsage"`
	Frames *FrameInfo  `json:"rendererInfo,omitempty"`
	Models *ModelInfo  `json:"modelManagerStats,omitempty"`
}

// Summary condenses the kept history. DeltaMB is latest minus oldest heap.
type Summary struct {
	CurrentMB       float64 `json:"currentMemoryMB"`
	LimitMB         float64 `json:"memoryLimitMB"`
	DeltaMB         float64 `json:"memoryDeltaMB"`
	Samples         int     `json:"samplesCount"`
	LatestTriangles int     `json:"latestTriangles"`
	LatestDrawn     uint64  `json:"latestDrawn"`
}

// Export is the whole history plus its summary, ready for encoding.
type Export struct {
	Metrics []Snapshot `json:"metrics"`
	Summary *Summary   `json:"summary"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithFrames adds frame counters to every snapshot.
func WithFrames(f FrameSource) Option {
	return func(m *Monitor) {
		m.frames = f
	}
}

// WithCapacity sets how many snapshots are kept. Values < 1 are ignored.
func WithCapacity(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// Monitor keeps a ring of the most recent snapshots.
type Monitor struct {
	cache    Cache
	frames   FrameSource
	logger   *zap.Logger
	capacity int

	mu   sync.Mutex
	ring []Snapshot
	next int
	full bool

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
}

// New returns a monitor reading cache, which may be nil.
func New(cache Cache, opts ...Option) *Monitor {
	m := &Monitor{
		cache:    cache,
		logger:   zap.NewNop(),
		capacity: DefaultCapacity,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ring = make([]Snapshot, m.capacity)
	return m
}

/*
Start launches the sampling worker.

- interval <= 0 means DefaultInterval.
- A time.Ticker drives Sample until Stop closes stopChan.
- Only the first call starts a worker; a stopped monitor stays stopped.
*/
func (m *Monitor) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m.startOnce.Do(func() {
		ticker := time.NewTicker(interval)
		m.logger.Debug("memory monitoring started", zap.Duration("interval", interval))

		go func() {
			defer close(m.done)
			for {
				select {
				case <-ticker.C:
					m.Sample()
				case <-m.stopChan:
					ticker.Stop()
					return
				}
			}
		}()
	})
}

// Stop ends the worker and waits for it. Safe to call more than once and
// on monitors that were never started. The history is kept.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.startOnce.Do(func() { close(m.done) })
	<-m.done
}

// Sample takes a snapshot now and records it, dropping the oldest when the
// ring is full.
func (m *Monitor) Sample() Snapshot {
	s := m.take()

	m.mu.Lock()
	m.ring[m.next] = s
	m.next = (m.next + 1) % m.capacity
	if m.next == 0 {
		m.full = true
	}
	m.mu.Unlock()

	fields := []zap.Field{
		zap.Float64("heap_mb", float64(s.Memory.HeapAlloc)/mb),
		zap.Uint32("gc", s.Memory.NumGC),
	}
	if s.Models != nil {
		fields = append(fields,
			zap.Int("cached_models", s.Models.CachedModels),
			zap.Float64("model_mb", s.Models.EstimatedMemoryMB))
	}
	if s.Frames != nil {
		fields = append(fields, zap.Uint64("drawn", s.Frames.Drawn))
	}
	m.logger.Debug("memory snapshot", fields...)
	return s
}

func (m *Monitor) take() Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Snapshot{
		Time: time.Now(),
		Memory: MemoryUsage{
			HeapAlloc: ms.HeapAlloc,
			HeapSys:   ms.HeapSys,
			Sys:       ms.Sys,
			Limit:     ms.Sys,
			NumGC:     ms.NumGC,
		},
	}
	// A negative argument reads the limit without changing it.
	if lim := debug.SetMemoryLimit(-1); lim > 0 && lim < math.MaxInt64 {
		s.Memory.Limit = uint64(lim)
	}
	if m.frames != nil {
		st := m.frames.Stats()
		s.Frames = &FrameInfo{Frames: st.Frames, Drawn: st.Drawn, Skipped: st.Skipped, Errors: st.Errors}
	}
	if m.cache != nil {
		d := m.cache.Diagnostics()
		s.Models = &ModelInfo{
			CachedModels:  d.CachedModels,
			ActiveLoads:   d.ActiveLoads,
			MemorySummary: m.cache.MemoryEstimate().Summary(),
		}
	}
	return s
}

// Snapshots returns the kept history, oldest first.
func (m *Monitor) Snapshots() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotsLocked()
}

func (m *Monitor) snapshotsLocked() []Snapshot {
	if !m.full {
		return append([]Snapshot(nil), m.ring[:m.next]...)
	}
	out := make([]Snapshot, 0, m.capacity)
	out = append(out, m.ring[m.next:]...)
	return append(out, m.ring[:m.next]...)
}

// Stats summarizes the history. ok is false when nothing was sampled.
func (m *Monitor) Stats() (sum Summary, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return summarize(m.snapshotsLocked())
}

func summarize(snaps []Snapshot) (Summary, bool) {
	if len(snaps) == 0 {
		return Summary{}, false
	}
	first, last := snaps[0], snaps[len(snaps)-1]
	sum := Summary{
		CurrentMB: float64(last.Memory.HeapAlloc) / mb,
		LimitMB:   float64(last.Memory.Limit) / mb,
		DeltaMB:   (float64(last.Memory.HeapAlloc) - float64(first.Memory.HeapAlloc)) / mb,
		Samples:   len(snaps),
	}
	if last.Models != nil {
		sum.LatestTriangles = last.Models.EstimatedTriangles
	}
	if last.Frames != nil {
		sum.LatestDrawn = last.Frames.Drawn
	}
	return sum, true
}

// Clear drops the history.
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring = make([]Snapshot, m.capacity)
	m.next = 0
	m.full = false
}

// Export returns the history and its summary. Summary is nil when empty.
func (m *Monitor) Export() Export {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := m.snapshotsLocked()
	e := Export{Metrics: snaps}
	if sum, ok := summarize(snaps); ok {
		e.Summary = &sum
	}
	return e
}

// Comparison is the change between two snapshots.
type Comparison struct {
	HeapDeltaMB    float64
	TriangleDelta  int
	DrawnDelta     int64
	SkippedDelta   int64
	CachedDelta    int
	ModelMBDelta   float64
	ElapsedSeconds float64
}

// Compare computes after minus before and logs it at info level under
// label.
func (m *Monitor) Compare(label string, before, after Snapshot) Comparison {
	c := Comparison{
		HeapDeltaMB:    (float64(after.Memory.HeapAlloc) - float64(before.Memory.HeapAlloc)) / mb,
		ElapsedSeconds: after.Time.Sub(before.Time).Seconds(),
	}
	if before.Models != nil && after.Models != nil {
		c.TriangleDelta = after.Models.EstimatedTriangles - before.Models.EstimatedTriangles
		c.CachedDelta = after.Models.CachedModels - before.Models.CachedModels
		c.ModelMBDelta = after.Models.EstimatedMemoryMB - before.Models.EstimatedMemoryMB
	}
	if before.Frames != nil && after.Frames != nil {
		c.DrawnDelta = int64(after.Frames.Drawn) - int64(before.Frames.Drawn)
		c.SkippedDelta = int64(after.Frames.Skipped) - int64(before.Frames.Skipped)
	}
	m.logger.Info("memory comparison",
		zap.String("label", label),
		zap.Float64("heap_delta_mb", c.HeapDeltaMB),
		zap.Int("triangle_delta", c.TriangleDelta),
		zap.Int64("drawn_delta", c.DrawnDelta),
		zap.Int64("skipped_delta", c.SkippedDelta),
		zap.Int("cached_delta", c.CachedDelta),
		zap.Float64("model_mb_delta", c.ModelMBDelta),
		zap.Float64("elapsed_s", c.ElapsedSeconds),
	)
	return c
}
