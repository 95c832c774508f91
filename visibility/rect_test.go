package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRootMargin(t *testing.T) {
	px := func(v float64) Length { return Length{Value: v} }
	pc := func(v float64) Length { return Length{Value: v, Percent: true} }

	cases := []struct {
		in   string
		want Margin
	}{
		{"", Margin{}},
		{"10px", Margin{px(10), px(10), px(10), px(10)}},
		{"10px 5%", Margin{px(10), pc(5), px(10), pc(5)}},
		{"0 1px 2px", Margin{px(0), px(1), px(2), px(1)}},
		{"-10% 0px 20px 3px", Margin{pc(-10), px(0), px(20), px(3)}},
	}
	for _, c := range cases {
		got, err := ParseRootMargin(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	for _, bad := range []string{"10em", "1px 2px 3px 4px 5px", "px", "ten%"} {
		_, err := ParseRootMargin(bad)
		assert.Error(t, err, bad)
	}
}

func TestMarginExpand(t *testing.T) {
	m, err := ParseRootMargin("10% 0px -20px 5px")
	require.NoError(t, err)
	got := m.Expand(Rect{X: 0, Y: 100, W: 200, H: 400})
	assert.Equal(t, Rect{X: -5, Y: 60, W: 205, H: 420}, got)
}

func TestRectIntersect(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 10, H: 10}
	assert.Equal(t, Rect{X: 5, Y: 5, W: 5, H: 5}, a.Intersect(Rect{X: 5, Y: 5, W: 10, H: 10}))
	assert.Equal(t, 0.0, a.Intersect(Rect{X: 20, Y: 0, W: 5, H: 5}).Area())
}

func TestRectObserverScroll(t *testing.T) {
	obs := NewRectObserver(Rect{W: 1000, H: 800})
	obs.SetBounds("canvas", Rect{Y: 0, W: 1000, H: 400})

	var entries []Entry
	sub, err := obs.Observe("canvas", ObserveOptions{Thresholds: []float64{0, 0.05, 0.1, 0.5}}, func(e Entry) {
		entries = append(entries, e)
	})
	require.NoError(t, err)
	require.Len(t, entries, 1, "initial observation")
	assert.Equal(t, Entry{Visible: true, Ratio: 1}, entries[0])

	obs.ScrollTo(10) // still above 50%, no threshold crossed
	assert.Len(t, entries, 1)

	obs.ScrollTo(300) // 100/400 visible
	require.Len(t, entries, 2)
	assert.InDelta(t, 0.25, entries[1].Ratio, 1e-9)

	obs.ScrollTo(390) // 10/400 = 2.5%
	require.Len(t, entries, 3)
	assert.True(t, entries[2].Visible)

	obs.ScrollTo(500)
	require.Len(t, entries, 4)
	assert.Equal(t, Entry{}, entries[3])

	sub.Unobserve()
	obs.ScrollTo(0)
	assert.Len(t, entries, 4)
}

func TestRectObserverRootMargin(t *testing.T) {
	obs := NewRectObserver(Rect{W: 100, H: 100})
	obs.SetBounds("canvas", Rect{Y: 150, W: 100, H: 100})
	assert.False(t, obs.Measure("canvas").Visible)

	var last Entry
	_, err := obs.Observe("canvas", ObserveOptions{RootMargin: "0px 0px 100px 0px"}, func(e Entry) { last = e })
	require.NoError(t, err)
	assert.True(t, last.Visible)
	assert.InDelta(t, 0.5, last.Ratio, 1e-9)
}

func TestRectObserverErrors(t *testing.T) {
	obs := NewRectObserver(Rect{W: 100, H: 100})
	_, err := obs.Observe("nowhere", ObserveOptions{}, func(Entry) {})
	assert.ErrorIs(t, err, ErrUnknownTarget)

	obs.SetBounds("canvas", Rect{W: 10, H: 10})
	_, err = obs.Observe("canvas", ObserveOptions{RootMargin: "1em"}, func(Entry) {})
	assert.Error(t, err)
}

// The monitor over a rect observer pauses a surface scrolled out of view
// and resumes it on the way back.
func TestMonitorWithRectObserver(t *testing.T) {
	obs := NewRectObserver(Rect{W: 1000, H: 800})
	obs.SetBounds("canvas", Rect{W: 1000, H: 400})
	m := New(obs, DefaultConfig())
	h := m.Attach("canvas", nil, "")
	require.True(t, h.Observed())
	assert.True(t, m.ShouldRender(h))

	obs.ScrollTo(390) // 2.5% visible
	assert.False(t, m.ShouldRender(h))

	obs.ScrollTo(370) // 7.5%, inside the hysteresis band
	assert.False(t, m.ShouldRender(h))

	obs.ScrollTo(350) // 12.5%
	assert.True(t, m.ShouldRender(h))

	m.Detach(h)
}
