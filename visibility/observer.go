package visibility

// Target identifies an observed element. It is opaque to the Monitor; an
// Observer decides what it means. RectObserver requires comparable targets.
type Target any

// Entry is one intersection observation.
type Entry struct {
	Visible bool
	Ratio   float64
}

// ObserveOptions are the observation parameters for one target.
type ObserveOptions struct {
	// Thresholds are the ratios in [0,1] whose crossing triggers a callback.
	Thresholds []float64

	// RootMargin grows (or with negative values shrinks) the root before
	// intersecting, in CSS margin shorthand: "10px 0px -5% 0px".
	RootMargin string
}

// Observer is the host's intersection primitive.
type Observer interface {
	// Observe starts delivering entries for target to fn. An initial entry
	// is delivered once the first measurement is available.
	Observe(target Target, opts ObserveOptions, fn func(Entry)) (Subscription, error)
}

// Subscription ends an observation.
type Subscription interface {
	Unobserve()
}
