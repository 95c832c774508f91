package surface

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Krishna8167/modelcache"
	"github.com/Krishna8167/modelcache/render"
	"github.com/Krishna8167/modelcache/scene"
	"github.com/Krishna8167/modelcache/visibility"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func model(name string) *scene.Node {
	root := scene.NewNode(name)
	part := scene.NewNode("part")
	g := scene.NewGeometry([]float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, nil, nil, []uint32{0, 1, 2})
	part.Meshes = []*scene.Mesh{{Geometry: g, Material: scene.DefaultMaterial()}}
	root.AddChild(part)
	return root
}

type countingRenderer struct {
	meshes atomic.Int32
}

func (r *countingRenderer) DrawMesh(*scene.Mesh, mgl32.Mat4, float32) {
	r.meshes.Add(1)
}

func mounted(t *testing.T, src Source, mon *visibility.Monitor, r scene.Renderer) (*Surface, *render.Manual) {
	t.Helper()
	sched := &render.Manual{}
	s := New(src, mon, r, WithLoopOptions(render.WithScheduler(sched)))
	s.Mount(context.Background(), "canvas")
	require.Eventually(t, sched.Pending, time.Second, time.Millisecond)
	return s, sched
}

func TestLoadModelBeforeMount(t *testing.T) {
	s := New(modelcache.New(modelcache.LoaderFunc(func(context.Context, string, modelcache.ProgressFunc) (*scene.Node, error) {
		return model("a"), nil
	})), nil, nil)
	assert.ErrorIs(t, s.LoadModel(context.Background(), "a.obj"), ErrNotMounted)
	assert.Nil(t, s.Scene())
}

func TestLoadModelPlacesAndReplaces(t *testing.T) {
	cache := modelcache.New(modelcache.LoaderFunc(func(_ context.Context, url string, _ modelcache.ProgressFunc) (*scene.Node, error) {
		return model(url), nil
	}))
	s, _ := mounted(t, cache, nil, nil)
	defer s.Unmount()

	require.NoError(t, s.LoadModel(context.Background(), "a.obj"))
	first := s.Model()
	require.NotNil(t, first)
	assert.Equal(t, 1, s.Scene().Len())

	require.NoError(t, s.LoadModel(context.Background(), "b.obj"))
	assert.Equal(t, 1, s.Scene().Len())
	assert.True(t, first.Disposed())
	assert.Equal(t, "b.obj", s.Model().Name)
	assert.True(t, cache.IsCached("a.obj"), "replacing an instance leaves the cache alone")
}

// Unmounting while a load is in flight must not place the late result.
func TestUnmountDuringLoadDisposesInstance(t *testing.T) {
	gate := make(chan struct{})
	var geom *scene.Geometry
	cache := modelcache.New(modelcache.LoaderFunc(func(context.Context, string, modelcache.ProgressFunc) (*scene.Node, error) {
		<-gate
		n := model("slow")
		geom = n.Children[0].Meshes[0].Geometry
		return n, nil
	}))
	s, _ := mounted(t, cache, nil, nil)
	sc := s.Scene()

	errc := make(chan error, 1)
	go func() { errc <- s.LoadModel(context.Background(), "slow.glb") }()
	require.Eventually(t, func() bool { return cache.IsLoading("slow.glb") }, time.Second, time.Millisecond)

	s.Unmount()
	close(gate)
	require.NoError(t, <-errc)

	assert.Nil(t, s.Model())
	assert.Zero(t, sc.Len())
	assert.True(t, cache.IsCached("slow.glb"))
	assert.Equal(t, 1, geom.Refs(), "only the canonical copy still holds the geometry")
}

// A load started before Unmount must not land in the scene of a later Mount.
func TestLoadFromPreviousMountIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	var geom atomic.Pointer[scene.Geometry]
	cache := modelcache.New(modelcache.LoaderFunc(func(context.Context, string, modelcache.ProgressFunc) (*scene.Node, error) {
		<-gate
		n := model("slow")
		geom.Store(n.Children[0].Meshes[0].Geometry)
		return n, nil
	}))
	s, sched := mounted(t, cache, nil, nil)

	errc := make(chan error, 1)
	go func() { errc <- s.LoadModel(context.Background(), "slow.glb") }()
	require.Eventually(t, func() bool { return cache.IsLoading("slow.glb") }, time.Second, time.Millisecond)

	s.Unmount()
	s.Mount(context.Background(), "canvas")
	defer s.Unmount()
	require.Eventually(t, sched.Pending, time.Second, time.Millisecond)

	close(gate)
	require.NoError(t, <-errc)

	assert.Nil(t, s.Model())
	assert.Zero(t, s.Scene().Len())
	assert.Equal(t, 1, geom.Load().Refs(), "the stale instance was disposed")
}

func TestDoneContextUnmounts(t *testing.T) {
	cache := modelcache.New(modelcache.LoaderFunc(func(context.Context, string, modelcache.ProgressFunc) (*scene.Node, error) {
		return model("m"), nil
	}))
	sched := &render.Manual{}
	s := New(cache, nil, nil, WithLoopOptions(render.WithScheduler(sched)))

	ctx, cancel := context.WithCancel(context.Background())
	s.Mount(ctx, "canvas")
	require.NoError(t, s.LoadModel(context.Background(), "m.obj"))
	sc := s.Scene()

	cancel()
	require.Eventually(t, func() bool { return !s.Mounted() }, time.Second, time.Millisecond)
	assert.True(t, sc.Disposed())
	assert.Nil(t, s.Model())
	assert.ErrorIs(t, s.LoadModel(context.Background(), "m.obj"), ErrNotMounted)
	s.Unmount()

	done, stop := context.WithCancel(context.Background())
	stop()
	s.Mount(done, "canvas")
	require.Eventually(t, func() bool { return !s.Mounted() }, time.Second, time.Millisecond)
	s.Unmount()
}

type opacityRecorder struct {
	drawn atomic.Int32
	wrong atomic.Int32
}

func (r *opacityRecorder) DrawMesh(_ *scene.Mesh, _ mgl32.Mat4, opacity float32) {
	r.drawn.Add(1)
	if opacity < 0.49 || opacity > 0.51 {
		r.wrong.Add(1)
	}
}

// Placed models are already posed by their tracks on the first frame that
// draws them.
func TestModelIsPosedBeforeFirstDraw(t *testing.T) {
	cache := modelcache.New(modelcache.LoaderFunc(func(_ context.Context, url string, _ modelcache.ProgressFunc) (*scene.Node, error) {
		return model(url), nil
	}))
	r := &opacityRecorder{}
	s := New(cache, nil, r, WithLoopOptions(render.WithFPS(1000)))
	s.Mount(context.Background(), "canvas")
	defer s.Unmount()

	fade := RestPose()
	fade.Opacity = 0
	s.AddTrack("hero", Track{From: RestPose(), To: fade})
	s.SetProgress("hero", 0.5)

	for i := 0; i < 40; i++ {
		require.NoError(t, s.LoadModel(context.Background(), fmt.Sprintf("m%d.obj", i)))
		time.Sleep(time.Millisecond)
	}
	require.Eventually(t, func() bool { return r.drawn.Load() > 0 }, 2*time.Second, time.Millisecond)
	assert.Zero(t, r.wrong.Load())
}

func TestLoadFailureLeavesSceneEmpty(t *testing.T) {
	cache := modelcache.New(modelcache.LoaderFunc(func(context.Context, string, modelcache.ProgressFunc) (*scene.Node, error) {
		return nil, errors.New("404")
	}))
	s, _ := mounted(t, cache, nil, nil)
	defer s.Unmount()

	err := s.LoadModel(context.Background(), "missing.glb")
	var le *modelcache.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "missing.glb", le.URL)
	assert.Zero(t, s.Scene().Len())
	assert.Nil(t, s.Model())
}

func TestDrawFollowsVisibility(t *testing.T) {
	obs := visibility.NewRectObserver(visibility.Rect{W: 1000, H: 800})
	obs.SetBounds("canvas", visibility.Rect{W: 1000, H: 400})
	mon := visibility.New(obs, visibility.DefaultConfig())
	cache := modelcache.New(modelcache.LoaderFunc(func(context.Context, string, modelcache.ProgressFunc) (*scene.Node, error) {
		return model("m"), nil
	}))
	r := &countingRenderer{}
	s, sched := mounted(t, cache, mon, r)
	require.NoError(t, s.LoadModel(context.Background(), "m.obj"))
	require.True(t, s.Handle().Observed())

	now := time.Unix(0, 0)
	fire := func() {
		now = now.Add(16 * time.Millisecond)
		require.True(t, sched.Fire(now))
	}

	fire()
	assert.Equal(t, int32(1), r.meshes.Load())

	obs.ScrollTo(1000)
	fire()
	fire()
	assert.Equal(t, int32(1), r.meshes.Load(), "off screen surfaces skip drawing")
	assert.Equal(t, render.Paused, s.Stats().State)
	assert.True(t, sched.Pending(), "heartbeat continues while paused")

	obs.ScrollTo(0)
	fire()
	assert.Equal(t, int32(2), r.meshes.Load())

	s.Unmount()
	assert.Zero(t, mon.Len())
	assert.False(t, sched.Pending())
}

func TestProgressDrivesTracks(t *testing.T) {
	cache := modelcache.New(modelcache.LoaderFunc(func(context.Context, string, modelcache.ProgressFunc) (*scene.Node, error) {
		return model("m"), nil
	}))
	s, _ := mounted(t, cache, nil, nil)
	defer s.Unmount()

	from := RestPose()
	to := RestPose()
	to.Position = mgl32.Vec3{10, 0, 0}
	to.Scale = mgl32.Vec3{2, 2, 2}
	to.Rotation = mgl32.Vec3{0, mgl32.DegToRad(90), 0}
	to.Opacity = 0

	s.AddTrack("hero", Track{From: from, To: to})
	s.AddTrack("hero", Track{Target: "part", From: RestPose(), To: Pose{Position: mgl32.Vec3{0, 4, 0}, Scale: mgl32.Vec3{1, 1, 1}, Opacity: 1}, Ease: "power3.out"})
	s.SetProgress("hero", 0.5)

	require.NoError(t, s.LoadModel(context.Background(), "m.obj"))
	m := s.Model()
	assert.InDelta(t, 5, m.Transform.Position.X(), 1e-5, "progress set before load is applied on placement")
	assert.InDelta(t, 1.5, m.Transform.Scale.Y(), 1e-5)
	assert.InDelta(t, 0.5, m.Opacity, 1e-5)
	assert.InDelta(t, 3.5, m.Find("part").Transform.Position.Y(), 1e-5)

	s.SetProgress("hero", 7)
	assert.Equal(t, 1.0, s.Progress("hero"))
	assert.InDelta(t, 10, m.Transform.Position.X(), 1e-5)
	want := mgl32.AnglesToQuat(0, mgl32.DegToRad(90), 0, mgl32.XYZ)
	assert.True(t, m.Transform.Rotation.ApproxEqualThreshold(want, 1e-4))

	s.SetProgress("hero", -1)
	assert.Zero(t, s.Progress("hero"))
	assert.InDelta(t, 1, m.Opacity, 1e-5)

	s.SetProgress("other", 0.3)
	assert.InDelta(t, 0, m.Transform.Position.X(), 1e-5, "unrelated regions do not move the model")
}

func TestEasing(t *testing.T) {
	for _, name := range []string{"linear", "power2.in", "power2.out", "power2.inOut", "power3.out", "sine.inOut", "bogus"} {
		t.Run(name, func(t *testing.T) {
			f := Ease(name)
			assert.InDelta(t, 0, f(0), 1e-6)
			assert.InDelta(t, 1, f(1), 1e-6)
		})
	}
	assert.InDelta(t, 0.5, Ease("power2.inOut")(0.5), 1e-6)
	assert.InDelta(t, 0.5, Ease("sine.inOut")(0.5), 1e-6)
	assert.InDelta(t, 0.875, Ease("power3.out")(0.5), 1e-6)
	assert.InDelta(t, 0.3, Ease("bogus")(0.3), 1e-6)
}

func TestUnmountIsIdempotentAndRemountable(t *testing.T) {
	cache := modelcache.New(modelcache.LoaderFunc(func(context.Context, string, modelcache.ProgressFunc) (*scene.Node, error) {
		return model("m"), nil
	}))
	s, _ := mounted(t, cache, nil, nil)
	require.NoError(t, s.LoadModel(context.Background(), "m.obj"))
	first := s.Scene()

	s.Unmount()
	s.Unmount()
	assert.False(t, s.Mounted())
	assert.True(t, first.Disposed())
	assert.ErrorIs(t, s.LoadModel(context.Background(), "m.obj"), ErrNotMounted)

	ctx, cancel := context.WithCancel(context.Background())
	s.Mount(ctx, "canvas")
	assert.True(t, s.Mounted())
	assert.NotSame(t, first, s.Scene())
	cancel()
	s.Unmount()
}
