// Package visibility decides whether a render surface is visibly
// contributing to the screen, so its frame loop can skip draw work.
package visibility

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config is resolved once at startup.
type Config struct {
	// Supported says whether the host can observe intersections at all.
	// When false every handle renders unconditionally.
	Supported bool

	// Enter is the ratio a paused surface must exceed to resume.
	Enter float64

	// Exit is the ratio below which a rendering surface pauses.
	Exit float64

	// AssumeVisible is the state before the first observation arrives.
	AssumeVisible bool
}

// DefaultConfig enters above 10% visible and exits below 5%, rendering
// until told otherwise.
func DefaultConfig() Config {
	return Config{
		Supported:     true,
		Enter:         0.10,
		Exit:          0.05,
		AssumeVisible: true,
	}
}

// DefaultThresholds are used when Attach is given none.
var DefaultThresholds = []float64{0, 0.25, 0.5, 0.75, 1}

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

// Monitor attaches handles to targets through an Observer.
type Monitor struct {
	observer Observer
	cfg      Config
	logger   *zap.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// New returns a Monitor. A nil observer is treated as an unsupported
// environment.
func New(observer Observer, cfg Config, opts ...Option) *Monitor {
	if cfg.Exit > cfg.Enter {
		cfg.Exit = cfg.Enter
	}
	m := &Monitor{
		observer: observer,
		cfg:      cfg,
		logger:   zap.NewNop(),
		handles:  make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	if observer == nil {
		m.cfg.Supported = false
	}
	return m
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Attach begins observing target. A nil target returns a nil handle,
// which ShouldRender treats as always rendering. When observation is
// unsupported or fails, the returned handle renders unconditionally.
func (m *Monitor) Attach(target Target, thresholds []float64, rootMargin string) *Handle {
	if target == nil {
		return nil
	}
	h := &Handle{
		ID:        uuid.NewString(),
		target:    target,
		enter:     m.cfg.Enter,
		exit:      m.cfg.Exit,
		rendering: m.cfg.AssumeVisible,
		state:     State{Visible: m.cfg.AssumeVisible},
		listeners: make(map[int]func(State)),
	}
	if m.cfg.AssumeVisible {
		h.state.Ratio = 1
	}

	if !m.cfg.Supported {
		h.failOpen = true
		h.rendering = true
		m.logger.Debug("visibility observation unsupported, rendering unconditionally",
			zap.String("handle", h.ID))
		return h
	}

	opts := ObserveOptions{
		Thresholds: m.thresholds(thresholds),
		RootMargin: rootMargin,
	}
	sub, err := m.observer.Observe(target, opts, h.update)
	if err != nil {
		h.failOpen = true
		h.rendering = true
		m.logger.Warn("visibility observation failed, rendering unconditionally",
			zap.String("handle", h.ID), zap.Error(err))
		return h
	}

	h.mu.Lock()
	h.sub = sub
	h.mu.Unlock()

	m.mu.Lock()
	m.handles[h.ID] = h
	m.mu.Unlock()
	return h
}

// thresholds merges the caller's steps with the hysteresis boundaries so
// that crossing Enter or Exit always produces a callback.
func (m *Monitor) thresholds(in []float64) []float64 {
	if len(in) == 0 {
		in = DefaultThresholds
	}
	seen := make(map[float64]bool)
	out := make([]float64, 0, len(in)+2)
	for _, t := range append(append([]float64{}, in...), m.cfg.Enter, m.cfg.Exit) {
		if t < 0 || t > 1 || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Float64s(out)
	return out
}

// ShouldRender reports whether the surface behind h should draw this
// frame. It only reads state written by the observer callback.
func (m *Monitor) ShouldRender(h *Handle) bool {
	if h == nil {
		return true
	}
	return h.Rendering()
}

// Detach stops observation. Safe to call more than once.
func (m *Monitor) Detach(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	delete(m.handles, h.ID)
	m.mu.Unlock()
	h.close()
}

// Len is the number of attached, observed handles.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
