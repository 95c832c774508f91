// Package obj decodes the Wavefront OBJ format (*.obj) into a scene graph.
// Only geometry is read: material libraries are not fetched, and usemtl
// names become untextured materials with default parameters.
// Basic format info: https://en.wikipedia.org/wiki/Wavefront_.obj_file
package obj

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/Krishna8167/modelcache/scene"
)

const invIndex = -1

// Decoder implements the cache decoder contract for .obj files.
// A Decoder is stateless; each Decode call uses its own parser.
type Decoder struct{}

// Desc returns the description of this decoder.
func (Decoder) Desc() string {
	return "Wavefront OBJ"
}

// Decode parses r and returns a root node named after the file, with one
// child per object (o) or group (g) in the file.
func (Decoder) Decode(name string, r io.Reader) (*scene.Node, error) {
	p := &parser{materials: make(map[string]*scene.Material)}
	if err := p.parse(r); err != nil {
		return nil, err
	}
	return p.build(strings.TrimSuffix(path.Base(name), path.Ext(name)))
}

type face struct {
	vertices []int
	uvs      []int
	normals  []int
	material string
}

type object struct {
	name  string
	faces []face
}

type parser struct {
	vertices   []float32
	normals    []float32
	uvs        []float32
	objects    []*object
	materials  map[string]*scene.Material
	matCurrent string
	objCurrent *object
	line       int
}

func (p *parser) parse(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		p.line++
		if err := p.parseLine(strings.TrimSpace(sc.Text())); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (p *parser) parseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	switch fields[0] {
	case "o", "g":
		return p.parseObject(fields[1:])
	case "v":
		return parseFloats(&p.vertices, fields[1:], 3, p.formatError)
	case "vn":
		return parseFloats(&p.normals, fields[1:], 3, p.formatError)
	case "vt":
		return parseFloats(&p.uvs, fields[1:], 2, p.formatError)
	case "f":
		return p.parseFace(fields[1:])
	case "usemtl":
		return p.parseUsemtl(fields[1:])
	}
	// mtllib, s, l, and vendor extensions are ignored
	return nil
}

func (p *parser) parseObject(fields []string) error {
	name := fmt.Sprintf("unnamed%d", p.line)
	if len(fields) > 0 {
		name = fields[0]
	}
	p.objCurrent = &object{name: name}
	p.objects = append(p.objects, p.objCurrent)
	return nil
}

func parseFloats(dst *[]float32, fields []string, n int, ferr func(string) error) error {
	if len(fields) < n {
		return ferr(fmt.Sprintf("expected %d values, got %d", n, len(fields)))
	}
	for _, f := range fields[:n] {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return ferr(err.Error())
		}
		*dst = append(*dst, float32(v))
	}
	return nil
}

// resolve converts a 1-based (or negative, relative) OBJ index to 0-based.
func resolve(s string, count int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	switch {
	case v > 0:
		return v - 1, nil
	case v < 0:
		return count + v, nil
	}
	return 0, errors.New("index value equal to 0")
}

// parseFace parses:
// f v1[/vt1][/vn1] v2[/vt2][/vn2] v3[/vt3][/vn3] ...
func (p *parser) parseFace(fields []string) error {
	if p.objCurrent == nil {
		p.parseObject(nil)
	}
	if len(fields) < 3 {
		return p.formatError("face line with less than 3 fields")
	}
	fc := face{
		vertices: make([]int, len(fields)),
		uvs:      make([]int, len(fields)),
		normals:  make([]int, len(fields)),
		material: p.matCurrent,
	}
	for i, f := range fields {
		parts := strings.Split(f, "/")
		vi, err := resolve(parts[0], len(p.vertices)/3)
		if err != nil {
			return p.formatError("face vertex: " + err.Error())
		}
		if vi < 0 || vi >= len(p.vertices)/3 {
			return p.formatError(fmt.Sprintf("face vertex %s out of range", parts[0]))
		}
		fc.vertices[i] = vi
		fc.uvs[i], fc.normals[i] = invIndex, invIndex

		if len(parts) > 1 && parts[1] != "" {
			if fc.uvs[i], err = resolve(parts[1], len(p.uvs)/2); err != nil {
				return p.formatError("face uv: " + err.Error())
			}
		}
		if len(parts) > 2 && parts[2] != "" {
			if fc.normals[i], err = resolve(parts[2], len(p.normals)/3); err != nil {
				return p.formatError("face normal: " + err.Error())
			}
		}
	}
	p.objCurrent.faces = append(p.objCurrent.faces, fc)
	return nil
}

func (p *parser) parseUsemtl(fields []string) error {
	if len(fields) < 1 {
		return p.formatError("usemtl with no fields")
	}
	p.matCurrent = fields[0]
	if _, ok := p.materials[fields[0]]; !ok {
		m := scene.DefaultMaterial()
		m.Name = fields[0]
		p.materials[fields[0]] = m
	}
	return nil
}

func (p *parser) formatError(msg string) error {
	return fmt.Errorf("obj: line %d: %s", p.line, msg)
}

type vertexKey struct{ v, uv, n int }

// build de-indexes faces into one mesh per (object, material) and
// triangulates polygons as fans.
func (p *parser) build(name string) (*scene.Node, error) {
	if len(p.objects) == 0 {
		return nil, errors.New("obj: no faces")
	}
	root := scene.NewNode(name)
	defMat := scene.DefaultMaterial()
	for _, ob := range p.objects {
		if len(ob.faces) == 0 {
			continue
		}
		nd := scene.NewNode(ob.name)
		byMat := make(map[string]*meshBuilder)
		var order []string
		for _, fc := range ob.faces {
			mb, ok := byMat[fc.material]
			if !ok {
				mb = &meshBuilder{index: make(map[vertexKey]uint32)}
				byMat[fc.material] = mb
				order = append(order, fc.material)
			}
			for i := 1; i+1 < len(fc.vertices); i++ {
				for _, k := range [3]int{0, i, i + 1} {
					mb.add(p, vertexKey{fc.vertices[k], fc.uvs[k], fc.normals[k]})
				}
			}
		}
		for _, mat := range order {
			mb := byMat[mat]
			m := p.materials[mat]
			if m == nil {
				m = defMat
			}
			nd.Meshes = append(nd.Meshes, &scene.Mesh{
				Geometry: scene.NewGeometry(mb.pos, mb.norm, mb.uv, mb.idx),
				Material: m,
			})
		}
		root.AddChild(nd)
	}
	if len(root.Children) == 0 {
		return nil, errors.New("obj: no faces")
	}
	return root, nil
}

type meshBuilder struct {
	pos, norm, uv []float32
	idx           []uint32
	index         map[vertexKey]uint32
}

func (mb *meshBuilder) add(p *parser, k vertexKey) {
	if i, ok := mb.index[k]; ok {
		mb.idx = append(mb.idx, i)
		return
	}
	i := uint32(len(mb.pos) / 3)
	mb.pos = append(mb.pos, p.vertices[k.v*3:k.v*3+3]...)
	// keep attribute arrays aligned with positions when only some faces
	// carry normals or uvs
	if len(p.normals) > 0 {
		if k.n != invIndex && k.n >= 0 && k.n*3+3 <= len(p.normals) {
			mb.norm = append(mb.norm, p.normals[k.n*3:k.n*3+3]...)
		} else {
			mb.norm = append(mb.norm, 0, 0, 0)
		}
	}
	if len(p.uvs) > 0 {
		if k.uv != invIndex && k.uv >= 0 && k.uv*2+2 <= len(p.uvs) {
			mb.uv = append(mb.uv, p.uvs[k.uv*2:k.uv*2+2]...)
		} else {
			mb.uv = append(mb.uv, 0, 0)
		}
	}
	mb.index[k] = i
	mb.idx = append(mb.idx, i)
}
