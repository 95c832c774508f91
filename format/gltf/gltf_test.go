package gltf

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	gltflib "github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two nodes instancing the same single-triangle mesh.
const triangleDoc = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0, 1]}],
  "nodes": [
    {"name": "left", "mesh": 0, "translation": [-1, 0, 0]},
    {"name": "right", "mesh": 0, "scale": [2, 2, 2]}
  ],
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}, "indices": 1, "material": 0}]}],
  "materials": [{"name": "paint", "pbrMetallicRoughness": {"baseColorFactor": [1, 0, 0, 1], "metallicFactor": 0.5}}],
  "buffers": [{"byteLength": 44, "uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAAAACAPwAAAAAAAAAAAAAAAAAAgD8AAAAAAAABAAIAAAA="}],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 36},
    {"buffer": 0, "byteOffset": 36, "byteLength": 6}
  ],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3", "min": [0, 0, 0], "max": [1, 1, 0]},
    {"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
  ]
}`

func TestDecode(t *testing.T) {
	root, err := Decoder{}.Decode("assets/tri.gltf", strings.NewReader(triangleDoc))
	require.NoError(t, err)
	assert.Equal(t, "tri", root.Name)
	require.Len(t, root.Children, 2)

	left, right := root.Find("left"), root.Find("right")
	require.NotNil(t, left)
	require.NotNil(t, right)
	assert.Equal(t, mgl32.Vec3{-1, 0, 0}, left.Transform.Position)
	assert.Equal(t, mgl32.Vec3{2, 2, 2}, right.Transform.Scale)

	g := left.Meshes[0].Geometry
	assert.Same(t, g, right.Meshes[0].Geometry)
	assert.Equal(t, 2, g.Refs())
	assert.Equal(t, 3, g.VertexCount())
	assert.Equal(t, []uint32{0, 1, 2}, g.Indices)

	mat := left.Meshes[0].Material
	assert.Equal(t, "paint", mat.Name)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, mat.Color)
	assert.InDelta(t, 0.5, mat.Metallic, 1e-6)

	st := root.Stats()
	assert.Equal(t, 6, st.Vertices)
	assert.Equal(t, 1, st.Materials)

	root.Dispose()
	assert.True(t, g.Released())
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decoder{}.Decode("broken.glb", strings.NewReader("not a gltf file"))
	assert.Error(t, err)

	_, err = Decoder{}.Decode("empty.gltf", strings.NewReader(`{"asset": {"version": "2.0"}}`))
	assert.Error(t, err)
}

func TestNodeTransformFromMatrix(t *testing.T) {
	want := mgl32.Translate3D(1, 2, 3).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(90))).
		Mul4(mgl32.Scale3D(2, 3, 4))
	var n gltflib.Node
	for i, v := range want {
		n.Matrix[i] = float64(v)
	}

	tr := nodeTransform(&n)
	assert.InDeltaSlice(t, []float32{1, 2, 3}, tr.Position[:], 1e-5)
	assert.InDeltaSlice(t, []float32{2, 3, 4}, tr.Scale[:], 1e-5)
	assert.True(t, tr.Rotation.ApproxEqualThreshold(mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0}), 1e-5))
	assert.True(t, tr.Matrix().ApproxEqualThreshold(want, 1e-5))
}

func TestNodeTransformKeepsZeroScale(t *testing.T) {
	doc := strings.Replace(triangleDoc, `"scale": [2, 2, 2]`, `"scale": [0, 0, 0]`, 1)
	root, err := Decoder{}.Decode("tri.gltf", strings.NewReader(doc))
	require.NoError(t, err)
	defer root.Dispose()
	assert.Equal(t, mgl32.Vec3{}, root.Find("right").Transform.Scale)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, root.Find("left").Transform.Scale)
}
