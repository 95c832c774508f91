package surface

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Krishna8167/modelcache/scene"
)

// Pose is a keyframe: position, Euler rotation in radians (XYZ order),
// scale, and opacity.
type Pose struct {
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3
	Opacity  float32
}

// RestPose is the identity pose at full opacity.
func RestPose() Pose {
	return Pose{Scale: mgl32.Vec3{1, 1, 1}, Opacity: 1}
}

// Track maps scroll progress in [0,1] onto a node by interpolating between
// two poses. Target names a node inside the model; empty means the root.
type Track struct {
	Target string
	From   Pose
	To     Pose
	Ease   string
}

// Apply sets n's (or the named descendant's) pose for progress p.
func (tr Track) Apply(n *scene.Node, p float64) {
	if tr.Target != "" {
		n = n.Find(tr.Target)
		if n == nil {
			return
		}
	}
	t := Ease(tr.Ease)(float32(clamp01(p)))

	n.Transform.Position = lerp3(tr.From.Position, tr.To.Position, t)
	n.Transform.Scale = lerp3(tr.From.Scale, tr.To.Scale, t)
	q0 := mgl32.AnglesToQuat(tr.From.Rotation.X(), tr.From.Rotation.Y(), tr.From.Rotation.Z(), mgl32.XYZ)
	q1 := mgl32.AnglesToQuat(tr.To.Rotation.X(), tr.To.Rotation.Y(), tr.To.Rotation.Z(), mgl32.XYZ)
	n.Transform.Rotation = mgl32.QuatSlerp(q0, q1, t)
	n.Opacity = tr.From.Opacity + (tr.To.Opacity-tr.From.Opacity)*t
}

func lerp3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

func clamp01(p float64) float64 {
	if p != p || p < 0 { // NaN or negative
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// EaseFunc maps linear progress in [0,1] to eased progress.
type EaseFunc func(t float32) float32

// Ease returns the curve for a timeline-style easing name. Unknown names
// are linear.
func Ease(name string) EaseFunc {
	switch name {
	case "power2.in":
		return func(t float32) float32 { return t * t }
	case "power2.out":
		return func(t float32) float32 { return 1 - (1-t)*(1-t) }
	case "power2.inOut":
		return func(t float32) float32 {
			if t < 0.5 {
				return 2 * t * t
			}
			return 1 - math32.Pow(-2*t+2, 2)/2
		}
	case "power3.out":
		return func(t float32) float32 { return 1 - math32.Pow(1-t, 3) }
	case "sine.inOut":
		return func(t float32) float32 { return -(math32.Cos(math32.Pi*t) - 1) / 2 }
	}
	return func(t float32) float32 { return t }
}
