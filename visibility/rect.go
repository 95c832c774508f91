package visibility

import (
	"errors"
	"sync"
)

// Rect is an axis-aligned box in page coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Area is W*H, or 0 for empty rects.
func (r Rect) Area() float64 {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Intersect returns the overlap of r and o, with zero size if disjoint.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := max(r.X, o.X), max(r.Y, o.Y)
	x1, y1 := min(r.X+r.W, o.X+o.W), min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{X: x0, Y: y0}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// ErrUnknownTarget is returned by RectObserver.Observe for a target whose
// bounds were never set.
var ErrUnknownTarget = errors.New("visibility: target has no bounds")

/*
RectObserver is an Observer computed from element bounds and a viewport.

The host reports layout with SetBounds and scroll position with
SetViewport or ScrollTo. After every change each observation recomputes its
intersection ratio against the margin-expanded viewport. A callback fires
when the ratio crosses one of its thresholds or visibility flips, and also
once when observation starts.
*/
type RectObserver struct {
	mu       sync.Mutex
	viewport Rect
	bounds   map[Target]Rect
	obs      map[*rectObservation]struct{}
}

type rectObservation struct {
	owner      *RectObserver
	target     Target
	margin     Margin
	thresholds []float64
	fn         func(Entry)
	band       int
	visible    bool
	started    bool
}

// NewRectObserver returns an observer over the given viewport.
func NewRectObserver(viewport Rect) *RectObserver {
	return &RectObserver{
		viewport: viewport,
		bounds:   make(map[Target]Rect),
		obs:      make(map[*rectObservation]struct{}),
	}
}

// Observe implements Observer.
func (o *RectObserver) Observe(target Target, opts ObserveOptions, fn func(Entry)) (Subscription, error) {
	margin, err := ParseRootMargin(opts.RootMargin)
	if err != nil {
		return nil, err
	}
	ob := &rectObservation{
		owner:      o,
		target:     target,
		margin:     margin,
		thresholds: opts.Thresholds,
		fn:         fn,
	}

	o.mu.Lock()
	if _, ok := o.bounds[target]; !ok {
		o.mu.Unlock()
		return nil, ErrUnknownTarget
	}
	o.obs[ob] = struct{}{}
	fire := o.collectLocked()
	o.mu.Unlock()

	deliver(fire)
	return ob, nil
}

// Unobserve implements Subscription.
func (ob *rectObservation) Unobserve() {
	ob.owner.mu.Lock()
	delete(ob.owner.obs, ob)
	ob.owner.mu.Unlock()
}

// SetBounds records the layout box of target.
func (o *RectObserver) SetBounds(target Target, r Rect) {
	o.mu.Lock()
	o.bounds[target] = r
	fire := o.collectLocked()
	o.mu.Unlock()
	deliver(fire)
}

// SetViewport replaces the viewport.
func (o *RectObserver) SetViewport(r Rect) {
	o.mu.Lock()
	o.viewport = r
	fire := o.collectLocked()
	o.mu.Unlock()
	deliver(fire)
}

// ScrollTo moves the viewport's top edge to y.
func (o *RectObserver) ScrollTo(y float64) {
	o.mu.Lock()
	o.viewport.Y = y
	fire := o.collectLocked()
	o.mu.Unlock()
	deliver(fire)
}

// Measure returns the current entry for target against an unmodified
// viewport.
func (o *RectObserver) Measure(target Target) Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return measure(o.bounds[target], o.viewport)
}

type pending struct {
	fn func(Entry)
	e  Entry
}

// collectLocked recomputes every observation and returns the callbacks to
// run once the lock is released.
func (o *RectObserver) collectLocked() []pending {
	var out []pending
	for ob := range o.obs {
		b, ok := o.bounds[ob.target]
		if !ok {
			continue
		}
		e := measure(b, ob.margin.Expand(o.viewport))
		band := bandOf(e.Ratio, ob.thresholds)
		if ob.started && band == ob.band && e.Visible == ob.visible {
			continue
		}
		ob.started, ob.band, ob.visible = true, band, e.Visible
		out = append(out, pending{fn: ob.fn, e: e})
	}
	return out
}

func deliver(ps []pending) {
	for _, p := range ps {
		p.fn(p.e)
	}
}

func measure(el, root Rect) Entry {
	in := el.Intersect(root)
	area := el.Area()
	if area == 0 {
		// zero-size elements count as fully visible when inside the root
		inside := el.X >= root.X && el.X <= root.X+root.W && el.Y >= root.Y && el.Y <= root.Y+root.H
		if inside {
			return Entry{Visible: true, Ratio: 1}
		}
		return Entry{}
	}
	ratio := min(1, max(0, in.Area()/area))
	return Entry{Visible: in.Area() > 0, Ratio: ratio}
}

// bandOf counts the thresholds at or below ratio; a change in band means a
// threshold was crossed.
func bandOf(ratio float64, thresholds []float64) int {
	n := 0
	for _, t := range thresholds {
		if ratio >= t {
			n++
		}
	}
	return n
}
