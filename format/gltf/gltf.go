// Package gltf decodes self-contained glTF 2.0 assets (.glb, or .gltf with
// embedded data URIs) into a scene graph.
package gltf

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	gltflib "github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Krishna8167/modelcache/scene"
)

// Decoder implements the cache decoder contract for .glb and .gltf files.
type Decoder struct{}

// Desc returns the description of this decoder.
func (Decoder) Desc() string {
	return "glTF 2.0"
}

// Decode reads a glTF document from r and converts the default scene.
func (Decoder) Decode(name string, r io.Reader) (*scene.Node, error) {
	doc := new(gltflib.Document)
	if err := gltflib.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("gltf: decode %s: %w", name, err)
	}
	b := &builder{
		doc:    doc,
		meshes: make(map[int][]*scene.Mesh),
	}
	return b.build(strings.TrimSuffix(path.Base(name), path.Ext(name)))
}

type builder struct {
	doc       *gltflib.Document
	materials []*scene.Material
	defMat    *scene.Material
	meshes    map[int][]*scene.Mesh
}

func (b *builder) build(name string) (*scene.Node, error) {
	if len(b.doc.Nodes) == 0 {
		return nil, errors.New("gltf: document has no nodes")
	}
	b.defMat = scene.DefaultMaterial()
	for _, m := range b.doc.Materials {
		b.materials = append(b.materials, convertMaterial(m))
	}

	root := scene.NewNode(name)
	for _, ni := range b.rootNodes() {
		nd, err := b.node(ni, 0)
		if err != nil {
			root.Dispose()
			return nil, err
		}
		root.AddChild(nd)
	}
	if root.Stats().Vertices == 0 {
		root.Dispose()
		return nil, errors.New("gltf: no triangle geometry")
	}
	return root, nil
}

// rootNodes returns the default scene's nodes, or every parentless node
// when the document declares no scene.
func (b *builder) rootNodes() []int {
	doc := b.doc
	if len(doc.Scenes) > 0 {
		si := 0
		if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
			si = *doc.Scene
		}
		return doc.Scenes[si].Nodes
	}
	isChild := make(map[int]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			isChild[c] = true
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !isChild[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

const maxDepth = 64

func (b *builder) node(idx, depth int) (*scene.Node, error) {
	if idx < 0 || idx >= len(b.doc.Nodes) {
		return nil, fmt.Errorf("gltf: node index %d out of range", idx)
	}
	if depth > maxDepth {
		return nil, errors.New("gltf: node hierarchy too deep")
	}
	src := b.doc.Nodes[idx]
	nd := scene.NewNode(src.Name)
	nd.Transform = nodeTransform(src)

	if src.Mesh != nil {
		meshes, err := b.mesh(*src.Mesh)
		if err != nil {
			return nil, err
		}
		nd.Meshes = meshes
	}
	for _, ci := range src.Children {
		ch, err := b.node(ci, depth+1)
		if err != nil {
			nd.Dispose()
			return nil, err
		}
		nd.AddChild(ch)
	}
	return nd, nil
}

// nodeTransform reads a node's local transform. A non-identity matrix wins
// over TRS and is decomposed; shear is lost. The decoder fills absent TRS
// fields with their defaults, so a zero scale here was written by the asset.
func nodeTransform(n *gltflib.Node) scene.Transform {
	if m := n.MatrixOrDefault(); m != gltflib.DefaultMatrix {
		return decompose(m)
	}
	t := scene.IdentityTransform()
	t.Position = mgl32.Vec3{float32(n.Translation[0]), float32(n.Translation[1]), float32(n.Translation[2])}
	r := n.RotationOrDefault()
	t.Rotation = mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}}
	t.Scale = mgl32.Vec3{float32(n.Scale[0]), float32(n.Scale[1]), float32(n.Scale[2])}
	return t
}

// decompose splits a column-major affine matrix into translation, rotation
// and scale.
func decompose(src [16]float64) scene.Transform {
	var m mgl32.Mat4
	for i, v := range src {
		m[i] = float32(v)
	}
	t := scene.IdentityTransform()
	t.Position = m.Col(3).Vec3()

	sx, sy, sz := mgl32.Extract3DScale(m)
	if m.Mat3().Det() < 0 {
		sx = -sx
	}
	t.Scale = mgl32.Vec3{sx, sy, sz}
	if sx == 0 || sy == 0 || sz == 0 {
		return t
	}
	rot := mgl32.Mat3FromCols(
		m.Col(0).Vec3().Mul(1/sx),
		m.Col(1).Vec3().Mul(1/sy),
		m.Col(2).Vec3().Mul(1/sz),
	)
	t.Rotation = mgl32.Mat4ToQuat(rot.Mat4()).Normalize()
	return t
}

// mesh converts a glTF mesh once; nodes that instance the same mesh share
// the geometry and hold one reference each.
func (b *builder) mesh(idx int) ([]*scene.Mesh, error) {
	if built, ok := b.meshes[idx]; ok {
		out := make([]*scene.Mesh, 0, len(built))
		for _, m := range built {
			m.Geometry.Retain()
			out = append(out, &scene.Mesh{Geometry: m.Geometry, Material: m.Material})
		}
		return out, nil
	}
	if idx < 0 || idx >= len(b.doc.Meshes) {
		return nil, fmt.Errorf("gltf: mesh index %d out of range", idx)
	}
	var out []*scene.Mesh
	for _, prim := range b.doc.Meshes[idx].Primitives {
		if prim.Mode != gltflib.PrimitiveTriangles {
			continue
		}
		g, err := b.geometry(prim)
		if err != nil {
			return nil, fmt.Errorf("gltf: mesh %d: %w", idx, err)
		}
		mat := b.defMat
		if prim.Material != nil && *prim.Material < len(b.materials) {
			mat = b.materials[*prim.Material]
		}
		out = append(out, &scene.Mesh{Geometry: g, Material: mat})
	}
	b.meshes[idx] = out
	return out, nil
}

func (b *builder) accessor(i int) (*gltflib.Accessor, error) {
	if i < 0 || i >= len(b.doc.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", i)
	}
	return b.doc.Accessors[i], nil
}

func (b *builder) geometry(prim *gltflib.Primitive) (*scene.Geometry, error) {
	pi, ok := prim.Attributes["POSITION"]
	if !ok {
		return nil, errors.New("primitive has no POSITION attribute")
	}
	acc, err := b.accessor(pi)
	if err != nil {
		return nil, err
	}
	pos, err := modeler.ReadPosition(b.doc, acc, nil)
	if err != nil {
		return nil, err
	}

	var normals []float32
	if ni, ok := prim.Attributes["NORMAL"]; ok {
		if acc, err := b.accessor(ni); err == nil {
			if ns, err := modeler.ReadNormal(b.doc, acc, nil); err == nil {
				normals = flatten3(ns)
			}
		}
	}
	var uvs []float32
	if ti, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if acc, err := b.accessor(ti); err == nil {
			if ts, err := modeler.ReadTextureCoord(b.doc, acc, nil); err == nil {
				uvs = make([]float32, 0, len(ts)*2)
				for _, t := range ts {
					uvs = append(uvs, t[0], t[1])
				}
			}
		}
	}
	var indices []uint32
	if prim.Indices != nil {
		acc, err := b.accessor(*prim.Indices)
		if err != nil {
			return nil, err
		}
		if indices, err = modeler.ReadIndices(b.doc, acc, nil); err != nil {
			return nil, err
		}
	}
	return scene.NewGeometry(flatten3(pos), normals, uvs, indices), nil
}

func flatten3(v [][3]float32) []float32 {
	out := make([]float32, 0, len(v)*3)
	for _, p := range v {
		out = append(out, p[0], p[1], p[2])
	}
	return out
}

func convertMaterial(m *gltflib.Material) *scene.Material {
	mat := scene.DefaultMaterial()
	mat.Name = m.Name
	if pbr := m.PBRMetallicRoughness; pbr != nil {
		c := pbr.BaseColorFactorOrDefault()
		mat.Color = [4]float32{float32(c[0]), float32(c[1]), float32(c[2]), float32(c[3])}
		mat.Metallic = float32(pbr.MetallicFactorOrDefault())
		mat.Roughness = float32(pbr.RoughnessFactorOrDefault())
		if pbr.BaseColorTexture != nil {
			mat.Texture = fmt.Sprintf("texture/%d", pbr.BaseColorTexture.Index)
		}
	}
	return mat
}
