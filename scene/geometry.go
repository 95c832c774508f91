package scene

import "sync"

/*
Geometry holds the immutable vertex data of a mesh.

================================================================================
SHARING MODEL
================================================================================

A loaded asset has exactly one set of geometry buffers. The canonical
instance held by the cache and every clone handed out to callers point at
the same Geometry. Nothing mutates the slices after decode.

Each holder owns one reference:

- The decoder creates the Geometry with one reference (the canonical tree).
- Node.Clone() retains one more per mesh.
- Node.Dispose() releases one per mesh.

When the count reaches zero the buffers are dropped and OnRelease fires,
which is where a GPU backend frees its uploaded vertex/index buffers.
*/
type Geometry struct {
	Positions []float32 // xyz triplets
	Normals   []float32 // xyz triplets, may be empty
	UVs       []float32 // uv pairs, may be empty
	Indices   []uint32  // triangle list; empty means non-indexed

	// OnRelease is called once, after the last reference is released.
	OnRelease func(*Geometry)

	mu       sync.Mutex
	refs     int
	released bool
}

// NewGeometry returns a Geometry holding a single reference.
func NewGeometry(positions, normals, uvs []float32, indices []uint32) *Geometry {
	return &Geometry{
		Positions: positions,
		Normals:   normals,
		UVs:       uvs,
		Indices:   indices,
		refs:      1,
	}
}

// VertexCount is the number of vertices.
func (g *Geometry) VertexCount() int {
	return len(g.Positions) / 3
}

// TriangleCount is the number of triangles in the list.
func (g *Geometry) TriangleCount() int {
	if len(g.Indices) > 0 {
		return len(g.Indices) / 3
	}
	return g.VertexCount() / 3
}

// ByteSize estimates the resident size of the buffers.
func (g *Geometry) ByteSize() int64 {
	return int64(len(g.Positions)+len(g.Normals)+len(g.UVs))*4 + int64(len(g.Indices))*4
}

// Retain adds a reference. It reports false if the buffers were already
// released, in which case the geometry must not be used.
func (g *Geometry) Retain() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return false
	}
	g.refs++
	return true
}

// Release drops a reference and frees the buffers on the last one.
func (g *Geometry) Release() {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return
	}
	g.refs--
	if g.refs > 0 {
		g.mu.Unlock()
		return
	}
	g.released = true
	cb := g.OnRelease
	g.mu.Unlock()

	if cb != nil {
		cb(g)
	}
}

// Refs returns the current reference count.
func (g *Geometry) Refs() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refs
}

// Released reports whether the buffers have been freed.
func (g *Geometry) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}

// Material describes surface parameters. Shared and read-only after load.
type Material struct {
	Name      string
	Color     [4]float32 // linear RGBA
	Metallic  float32
	Roughness float32
	Texture   string
}

// DefaultMaterial is used by decoders for meshes that name no material.
func DefaultMaterial() *Material {
	return &Material{
		Name:      "default",
		Color:     [4]float32{0.8, 0.8, 0.8, 1},
		Roughness: 1,
	}
}

// Mesh pairs a geometry with the material it is drawn with.
type Mesh struct {
	Geometry *Geometry
	Material *Material
}
