// Package render drives a per-surface frame loop that skips draw work
// while a gate says the surface is not worth drawing.
package render

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of a loop's draw decision.
type State int

const (
	Rendering State = iota
	Paused
)

func (s State) String() string {
	if s == Paused {
		return "paused"
	}
	return "rendering"
}

// Frame describes one scheduled frame.
type Frame struct {
	Seq   uint64
	Time  time.Time
	Delta time.Duration
}

// Drawer performs the expensive per-frame draw.
type Drawer interface {
	Draw(f Frame) error
}

// DrawFunc adapts a function to Drawer.
type DrawFunc func(f Frame) error

func (fn DrawFunc) Draw(f Frame) error { return fn(f) }

// Gate decides, per frame, whether to draw.
type Gate interface {
	ShouldRender() bool
}

// GateFunc adapts a function to Gate.
type GateFunc func() bool

func (fn GateFunc) ShouldRender() bool { return fn() }

// Stats counts frames since Start.
type Stats struct {
	Frames  uint64
	Drawn   uint64
	Skipped uint64
	Errors  uint64
	State   State
}

// Option configures a Loop.
type Option func(*Loop)

// WithScheduler uses s instead of an owned 60 fps Ticker.
func WithScheduler(s Scheduler) Option {
	return func(l *Loop) {
		l.sched = s
	}
}

// WithFPS sets the rate of the owned Ticker.
func WithFPS(fps int) Option {
	return func(l *Loop) {
		l.fps = fps
	}
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg
		}
	}
}

/*
Loop is a request-next-frame render loop.

Every frame callback re-requests the next frame before doing anything else,
so the heartbeat never stops while the surface is paused. Then it consults
the gate: Rendering draws, Paused skips the draw and returns. A paused
surface therefore resumes on the very next frame after the gate opens.

Draw errors are counted and logged; they do not stop the loop.
*/
type Loop struct {
	drawer Drawer
	gate   Gate
	sched  Scheduler
	owned  *Ticker
	fps    int
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  func()
	last    time.Time
	stats   Stats
	done    chan struct{}
}

// NewLoop returns a stopped loop. A nil gate always renders.
func NewLoop(drawer Drawer, gate Gate, opts ...Option) *Loop {
	l := &Loop{
		drawer: drawer,
		gate:   gate,
		fps:    60,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start requests the first frame. Calling it again is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopped {
		return
	}
	l.started = true
	if l.sched == nil {
		l.owned = NewTicker(l.fps)
		l.sched = l.owned
	}
	l.cancel = l.sched.RequestFrame(l.frame)
}

// Stop cancels the pending frame and releases an owned ticker. Safe to
// call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	cancel := l.cancel
	owned := l.owned
	close(l.done)
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if owned != nil {
		owned.Close()
	}
}

// Run starts the loop and blocks until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	l.Start()
	select {
	case <-ctx.Done():
		l.Stop()
		return ctx.Err()
	case <-l.done:
		return nil
	}
}

// Stats returns a snapshot of the frame counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) frame(now time.Time) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.cancel = l.sched.RequestFrame(l.frame)
	l.stats.Frames++
	f := Frame{Seq: l.stats.Frames, Time: now}
	if !l.last.IsZero() {
		f.Delta = now.Sub(l.last)
	}
	l.last = now
	prev := l.stats.State
	l.mu.Unlock()

	next := Paused
	if l.gate == nil || l.gate.ShouldRender() {
		next = Rendering
	}
	if next != prev {
		l.logger.Debug("render state changed",
			zap.Stringer("from", prev),
			zap.Stringer("to", next),
			zap.Uint64("frame", f.Seq))
	}

	if next == Paused {
		l.mu.Lock()
		l.stats.State = Paused
		l.stats.Skipped++
		l.mu.Unlock()
		return
	}

	err := l.drawer.Draw(f)

	l.mu.Lock()
	l.stats.State = Rendering
	l.stats.Drawn++
	if err != nil {
		l.stats.Errors++
	}
	l.mu.Unlock()
	if err != nil {
		l.logger.Warn("draw failed", zap.Uint64("frame", f.Seq), zap.Error(err))
	}
}
