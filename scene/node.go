package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Walk return values.
const (
	Continue = true
	Break    = false
)

// Transform is the per-instance pose of a node relative to its parent.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

// IdentityTransform is the pose with no translation, rotation, or scaling.
func IdentityTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Matrix returns translation * rotation * scale.
func (t Transform) Matrix() mgl32.Mat4 {
	tr := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	sc := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return tr.Mul4(t.Rotation.Normalize().Mat4()).Mul4(sc)
}

// Node is an element of a scene graph. Transform, Opacity and Visible are
// owned by this instance; Meshes point at shared geometry.
type Node struct {
	ID        string
	Name      string
	Transform Transform
	Opacity   float32
	Visible   bool
	Meshes    []*Mesh
	Children  []*Node

	parent   *Node
	disposed bool
}

// NewNode creates a visible node with an identity transform.
func NewNode(name string) *Node {
	return &Node{
		ID:        uuid.NewString(),
		Name:      name,
		Transform: IdentityTransform(),
		Opacity:   1,
		Visible:   true,
	}
}

// AddChild appends ch under n, detaching it from any previous parent.
func (n *Node) AddChild(ch *Node) {
	if ch.parent != nil {
		ch.parent.RemoveChild(ch)
	}
	ch.parent = n
	n.Children = append(n.Children, ch)
}

// RemoveChild detaches ch from n. It reports whether ch was a child.
func (n *Node) RemoveChild(ch *Node) bool {
	for i, c := range n.Children {
		if c == ch {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			ch.parent = nil
			return true
		}
	}
	return false
}

// Parent returns the node's parent, or nil at a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Walk visits n and its descendants depth first. Returning Break from fn
// skips that node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the first node in the tree with the given name.
func (n *Node) Find(name string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return Break
		}
		if c.Name == name {
			found = c
			return Break
		}
		return Continue
	})
	return found
}

// WorldMatrix composes the transforms from the root down to n.
func (n *Node) WorldMatrix() mgl32.Mat4 {
	m := n.Transform.Matrix()
	for p := n.parent; p != nil; p = p.parent {
		m = p.Transform.Matrix().Mul4(m)
	}
	return m
}

/*
Clone returns a structurally independent copy of the tree rooted at n.

The copy gets fresh IDs and its own Transform/Opacity/Visible state, so
mutating one instance never shows through another. Mesh records are copied
but point at the same Geometry and Material; each geometry is retained once
per cloned mesh so that it outlives the canonical instance if needed.

Cloning a disposed tree returns nil.
*/
func (n *Node) Clone() *Node {
	if n.disposed {
		return nil
	}
	return n.clone()
}

func (n *Node) clone() *Node {
	c := &Node{
		ID:        uuid.NewString(),
		Name:      n.Name,
		Transform: n.Transform,
		Opacity:   n.Opacity,
		Visible:   n.Visible,
	}
	if len(n.Meshes) > 0 {
		c.Meshes = make([]*Mesh, 0, len(n.Meshes))
		for _, m := range n.Meshes {
			if m.Geometry != nil && !m.Geometry.Retain() {
				continue
			}
			c.Meshes = append(c.Meshes, &Mesh{Geometry: m.Geometry, Material: m.Material})
		}
	}
	for _, ch := range n.Children {
		cc := ch.clone()
		cc.parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}

// Dispose releases this tree's geometry references. Safe to call twice.
func (n *Node) Dispose() {
	n.Walk(func(c *Node) bool {
		if c.disposed {
			return Break
		}
		c.disposed = true
		for _, m := range c.Meshes {
			if m.Geometry != nil {
				m.Geometry.Release()
			}
		}
		return Continue
	})
}

// Disposed reports whether Dispose has been called on n.
func (n *Node) Disposed() bool {
	return n.disposed
}

// Stats summarizes the geometry referenced by a tree.
type Stats struct {
	Vertices  int
	Triangles int
	Materials int
	Bytes     int64
}

// Stats counts vertices, triangles and unique materials under n. Geometry
// shared between several meshes of the tree is counted once for Bytes.
func (n *Node) Stats() Stats {
	var st Stats
	mats := make(map[*Material]struct{})
	geoms := make(map[*Geometry]struct{})
	n.Walk(func(c *Node) bool {
		for _, m := range c.Meshes {
			if m.Geometry != nil {
				st.Vertices += m.Geometry.VertexCount()
				st.Triangles += m.Geometry.TriangleCount()
				if _, seen := geoms[m.Geometry]; !seen {
					geoms[m.Geometry] = struct{}{}
					st.Bytes += m.Geometry.ByteSize()
				}
			}
			if m.Material != nil {
				mats[m.Material] = struct{}{}
			}
		}
		return Continue
	})
	st.Materials = len(mats)
	return st
}
