package render

import (
	"sync"
	"time"
)

// Scheduler runs a callback on the next frame. Each request fires at most
// once; a loop that wants to keep running re-requests from its callback.
type Scheduler interface {
	RequestFrame(fn func(now time.Time)) (cancel func())
}

// Ticker is a Scheduler backed by time.Ticker. Pending requests fire on
// the next tick from the ticker's goroutine. Close stops it.
type Ticker struct {
	mu      sync.Mutex
	pending func(time.Time)
	seq     uint64
	ticker  *time.Ticker
	stop    chan struct{}
	once    sync.Once
}

// NewTicker starts a scheduler ticking fps times per second.
func NewTicker(fps int) *Ticker {
	if fps <= 0 {
		fps = 60
	}
	t := &Ticker{
		ticker: time.NewTicker(time.Second / time.Duration(fps)),
		stop:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Ticker) run() {
	for {
		select {
		case now := <-t.ticker.C:
			t.mu.Lock()
			fn := t.pending
			t.pending = nil
			t.mu.Unlock()
			if fn != nil {
				fn(now)
			}
		case <-t.stop:
			t.ticker.Stop()
			return
		}
	}
}

// RequestFrame implements Scheduler. A new request replaces a pending one.
func (t *Ticker) RequestFrame(fn func(time.Time)) func() {
	t.mu.Lock()
	t.pending = fn
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		if t.seq == seq {
			t.pending = nil
		}
		t.mu.Unlock()
	}
}

// Close stops the ticker goroutine. Safe to call more than once.
func (t *Ticker) Close() {
	t.once.Do(func() {
		close(t.stop)
	})
}

// Manual is a Scheduler advanced by the host, for toolkits that own the
// frame callback, and for tests.
type Manual struct {
	mu      sync.Mutex
	pending func(time.Time)
	seq     uint64
}

// RequestFrame implements Scheduler.
func (m *Manual) RequestFrame(fn func(time.Time)) func() {
	m.mu.Lock()
	m.pending = fn
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		if m.seq == seq {
			m.pending = nil
		}
		m.mu.Unlock()
	}
}

// Pending reports whether a frame has been requested.
func (m *Manual) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Fire runs the pending request, if any, and reports whether one ran.
func (m *Manual) Fire(now time.Time) bool {
	m.mu.Lock()
	fn := m.pending
	m.pending = nil
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(now)
	return true
}
