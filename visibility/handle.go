package visibility

import "sync"

// State is the last observed visibility of a target.
type State struct {
	Visible bool
	Ratio   float64
}

/*
Handle carries the visibility of one attached target and the derived
render decision.

The decision is hysteretic. A paused surface resumes only once more than
enter of it is visible. A rendering surface pauses only once less than exit
is visible, or it leaves the viewport. Ratios between the two keep whatever
the surface was doing, so a target resting on the boundary does not
flicker.
*/
type Handle struct {
	ID string

	target Target
	enter  float64
	exit   float64

	mu        sync.RWMutex
	state     State
	rendering bool
	observed  bool
	failOpen  bool
	detached  bool
	sub       Subscription
	listeners map[int]func(State)
	nextID    int
}

// State returns the latest observation, or the assumed state before the
// first one.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Rendering is the current render decision.
func (h *Handle) Rendering() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rendering
}

// Observed reports whether at least one observation has arrived.
func (h *Handle) Observed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.observed
}

// FailOpen reports whether the handle degraded to always rendering.
func (h *Handle) FailOpen() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.failOpen
}

// Subscribe registers fn for state changes. The returned func removes it.
func (h *Handle) Subscribe(fn func(State)) (cancel func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// update is the observer callback and the only writer of state.
func (h *Handle) update(e Entry) {
	h.mu.Lock()
	if h.detached || h.failOpen {
		h.mu.Unlock()
		return
	}
	changed := !h.observed || h.state != State(e)
	h.observed = true
	h.state = State(e)
	if h.rendering {
		h.rendering = e.Visible && e.Ratio >= h.exit
	} else {
		h.rendering = e.Visible && e.Ratio > h.enter
	}

	var fns []func(State)
	if changed {
		fns = make([]func(State), 0, len(h.listeners))
		for _, fn := range h.listeners {
			fns = append(fns, fn)
		}
	}
	st := h.state
	h.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (h *Handle) close() {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return
	}
	h.detached = true
	sub := h.sub
	h.sub = nil
	h.listeners = make(map[int]func(State))
	h.mu.Unlock()

	if sub != nil {
		sub.Unobserve()
	}
}
