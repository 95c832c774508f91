package visibility

import (
	"fmt"
	"strconv"
	"strings"
)

// Length is a margin component in pixels or percent of the root.
type Length struct {
	Value   float64
	Percent bool
}

func (l Length) resolve(basis float64) float64 {
	if l.Percent {
		return l.Value / 100 * basis
	}
	return l.Value
}

// Margin is a parsed root margin.
type Margin struct {
	Top, Right, Bottom, Left Length
}

// ParseRootMargin parses CSS margin shorthand with 1 to 4 components, each
// "<n>px", "<n>%", or "0". An empty string is a zero margin.
func ParseRootMargin(s string) (Margin, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Margin{}, nil
	}
	if len(fields) > 4 {
		return Margin{}, fmt.Errorf("visibility: root margin %q: too many values", s)
	}
	ls := make([]Length, len(fields))
	for i, f := range fields {
		l, err := parseLength(f)
		if err != nil {
			return Margin{}, fmt.Errorf("visibility: root margin %q: %w", s, err)
		}
		ls[i] = l
	}
	switch len(ls) {
	case 1:
		return Margin{ls[0], ls[0], ls[0], ls[0]}, nil
	case 2:
		return Margin{ls[0], ls[1], ls[0], ls[1]}, nil
	case 3:
		return Margin{ls[0], ls[1], ls[2], ls[1]}, nil
	}
	return Margin{ls[0], ls[1], ls[2], ls[3]}, nil
}

func parseLength(f string) (Length, error) {
	var l Length
	num := f
	switch {
	case strings.HasSuffix(f, "px"):
		num = strings.TrimSuffix(f, "px")
	case strings.HasSuffix(f, "%"):
		num = strings.TrimSuffix(f, "%")
		l.Percent = true
	case f != "0":
		return l, fmt.Errorf("%q: unit must be px or %%", f)
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return l, fmt.Errorf("%q: %w", f, err)
	}
	l.Value = v
	return l, nil
}

// Expand grows r by the margin. Percentages of top/bottom are of r's
// height and of left/right are of r's width.
func (m Margin) Expand(r Rect) Rect {
	top := m.Top.resolve(r.H)
	bottom := m.Bottom.resolve(r.H)
	left := m.Left.resolve(r.W)
	right := m.Right.resolve(r.W)
	return Rect{
		X: r.X - left,
		Y: r.Y - top,
		W: r.W + left + right,
		H: r.H + top + bottom,
	}
}
