package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangleNode(name string) *Node {
	n := NewNode(name)
	g := NewGeometry([]float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, nil, nil, []uint32{0, 1, 2})
	n.Meshes = []*Mesh{{Geometry: g, Material: DefaultMaterial()}}
	return n
}

func TestCloneIsIndependent(t *testing.T) {
	root := NewNode("model")
	child := triangleNode("body")
	root.AddChild(child)

	c := root.Clone()
	require.NotNil(t, c)
	assert.NotSame(t, root, c)
	assert.NotEqual(t, root.ID, c.ID)

	c.Transform.Position = mgl32.Vec3{5, 0, 0}
	c.Children[0].Opacity = 0.5
	assert.Equal(t, mgl32.Vec3{}, root.Transform.Position)
	assert.Equal(t, float32(1), child.Opacity)

	assert.Same(t, child.Meshes[0].Geometry, c.Children[0].Meshes[0].Geometry)
	assert.Same(t, c, c.Children[0].Parent())
	assert.Equal(t, root.Stats(), c.Stats())
}

func TestDisposeReleasesOnLastReference(t *testing.T) {
	canonical := triangleNode("model")
	g := canonical.Meshes[0].Geometry
	released := 0
	g.OnRelease = func(*Geometry) { released++ }

	a := canonical.Clone()
	b := canonical.Clone()
	assert.Equal(t, 3, g.Refs())

	canonical.Dispose()
	canonical.Dispose()
	assert.Equal(t, 2, g.Refs())
	assert.False(t, g.Released())
	assert.Nil(t, canonical.Clone())

	a.Dispose()
	assert.Equal(t, 0, released)
	assert.Equal(t, 3, b.Stats().Vertices)

	b.Dispose()
	assert.Equal(t, 1, released)
	assert.True(t, g.Released())
}

func TestStatsCountsUniqueMaterials(t *testing.T) {
	root := NewNode("model")
	mat := DefaultMaterial()
	for i := 0; i < 3; i++ {
		n := triangleNode("part")
		n.Meshes[0].Material = mat
		root.AddChild(n)
	}
	st := root.Stats()
	assert.Equal(t, 9, st.Vertices)
	assert.Equal(t, 3, st.Triangles)
	assert.Equal(t, 1, st.Materials)
	assert.Equal(t, int64(3*(9+3)*4), st.Bytes)
}

func TestFindAndWorldMatrix(t *testing.T) {
	root := NewNode("model")
	root.Transform.Position = mgl32.Vec3{1, 0, 0}
	arm := NewNode("arm")
	arm.Transform.Position = mgl32.Vec3{0, 2, 0}
	root.AddChild(arm)

	require.Same(t, arm, root.Find("arm"))
	assert.Nil(t, root.Find("leg"))

	p := arm.WorldMatrix().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 1, p.X(), 1e-6)
	assert.InDelta(t, 2, p.Y(), 1e-6)
}

func TestSceneDrawAndDispose(t *testing.T) {
	sc := NewScene()
	n := triangleNode("model")
	n.Opacity = 0.5
	hidden := triangleNode("hidden")
	hidden.Visible = false
	require.NoError(t, sc.Add(n))
	require.NoError(t, sc.Add(hidden))

	var opacities []float32
	drawn := sc.Draw(RendererFunc(func(_ *Mesh, _ mgl32.Mat4, op float32) {
		opacities = append(opacities, op)
	}))
	assert.Equal(t, 1, drawn)
	assert.Equal(t, []float32{0.5}, opacities)

	sc.Dispose()
	assert.True(t, n.Disposed())
	assert.ErrorIs(t, sc.Add(triangleNode("late")), ErrSceneDisposed)
	assert.Equal(t, 0, sc.Draw(RendererFunc(func(*Mesh, mgl32.Mat4, float32) {})))
}
