package scene

import (
	"errors"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrSceneDisposed is returned when adding to a scene after Dispose.
var ErrSceneDisposed = errors.New("scene: disposed")

// Renderer receives one call per visible mesh during Scene.Draw.
type Renderer interface {
	DrawMesh(m *Mesh, world mgl32.Mat4, opacity float32)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(m *Mesh, world mgl32.Mat4, opacity float32)

func (f RendererFunc) DrawMesh(m *Mesh, world mgl32.Mat4, opacity float32) {
	f(m, world, opacity)
}

// Scene is the root a render surface draws every frame. Draw holds the
// lock for the whole walk; mutate attached nodes through Update.
type Scene struct {
	mu       sync.Mutex
	root     *Node
	disposed bool
}

// NewScene returns an empty scene.
func NewScene() *Scene {
	return &Scene{root: NewNode("root")}
}

// Add attaches n under the scene root.
func (s *Scene) Add(n *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrSceneDisposed
	}
	s.root.AddChild(n)
	return nil
}

// Remove detaches n from the scene root without disposing it.
func (s *Scene) Remove(n *Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root.RemoveChild(n)
}

// Len is the number of top-level nodes.
func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.root.Children)
}

// Disposed reports whether Dispose has run.
func (s *Scene) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Update runs fn while holding the scene lock, so per-frame property
// changes never interleave with Draw. fn is skipped after Dispose.
func (s *Scene) Update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	fn()
}

// Draw walks visible nodes and hands each mesh to r with its world matrix
// and accumulated opacity. It returns the number of meshes drawn.
func (s *Scene) Draw(r Renderer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return 0
	}
	n := 0
	var visit func(nd *Node, parent mgl32.Mat4, opacity float32)
	visit = func(nd *Node, parent mgl32.Mat4, opacity float32) {
		if !nd.Visible {
			return
		}
		world := parent.Mul4(nd.Transform.Matrix())
		op := opacity * nd.Opacity
		for _, m := range nd.Meshes {
			r.DrawMesh(m, world, op)
			n++
		}
		for _, c := range nd.Children {
			visit(c, world, op)
		}
	}
	visit(s.root, mgl32.Ident4(), 1)
	return n
}

// Dispose disposes every attached node and rejects later additions.
func (s *Scene) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	for _, c := range s.root.Children {
		c.Dispose()
	}
	s.root.Children = nil
}
