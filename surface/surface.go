// Package surface hosts one cached model on a render surface: it attaches
// visibility gating, runs the frame loop, and maps scroll progress onto the
// model through tracks.
package surface

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Krishna8167/modelcache"
	"github.com/Krishna8167/modelcache/render"
	"github.com/Krishna8167/modelcache/scene"
	"github.com/Krishna8167/modelcache/visibility"
)

// ErrNotMounted is returned by LoadModel before Mount.
var ErrNotMounted = errors.New("surface: not mounted")

// Source hands out model instances. *modelcache.Cache implements it.
type Source interface {
	Load(ctx context.Context, url string, onProgress modelcache.ProgressFunc) (*scene.Node, error)
}

// Option configures a Surface.
type Option func(*Surface)

// WithLogger sets the logger. The loop inherits it unless WithLoopOptions
// overrides.
func WithLogger(l *zap.Logger) Option {
	return func(s *Surface) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLoopOptions passes options to the render loop created by Mount.
func WithLoopOptions(opts ...render.Option) Option {
	return func(s *Surface) {
		s.loopOpts = append(s.loopOpts, opts...)
	}
}

// WithThresholds sets the ratio steps observed for the mounted target.
func WithThresholds(t ...float64) Option {
	return func(s *Surface) {
		s.thresholds = t
	}
}

// WithRootMargin grows or shrinks the viewport used for visibility, in
// CSS margin syntax ("200px 0px").
func WithRootMargin(m string) Option {
	return func(s *Surface) {
		s.rootMargin = m
	}
}

// WithProgress is called with byte progress of each model load.
func WithProgress(fn modelcache.ProgressFunc) Option {
	return func(s *Surface) {
		s.onProgress = fn
	}
}

// Surface is a mounted view owning one scene.
type Surface struct {
	source     Source
	monitor    *visibility.Monitor
	renderer   scene.Renderer
	logger     *zap.Logger
	loopOpts   []render.Option
	thresholds []float64
	rootMargin string
	onProgress modelcache.ProgressFunc

	mu       sync.Mutex
	mounted  bool
	scene    *scene.Scene
	handle   *visibility.Handle
	loop     *render.Loop
	done     chan struct{}
	model    *scene.Node
	loadSeq  uint64
	tracks   map[string][]Track
	progress map[string]float64
}

// New returns an unmounted surface drawing through r.
func New(source Source, monitor *visibility.Monitor, r scene.Renderer, opts ...Option) *Surface {
	s := &Surface{
		source:   source,
		monitor:  monitor,
		renderer: r,
		logger:   zap.NewNop(),
		tracks:   make(map[string][]Track),
		progress: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount attaches visibility gating for target and starts the frame loop.
// The loop runs until Unmount or until ctx is done; a done ctx unmounts the
// surface. Mounting a mounted surface is a no-op.
func (s *Surface) Mount(ctx context.Context, target visibility.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted {
		return
	}

	s.scene = scene.NewScene()
	if s.monitor != nil {
		s.handle = s.monitor.Attach(target, s.thresholds, s.rootMargin)
	}
	handle := s.handle
	monitor := s.monitor
	gate := render.GateFunc(func() bool {
		return monitor == nil || monitor.ShouldRender(handle)
	})

	opts := append([]render.Option{render.WithLogger(s.logger)}, s.loopOpts...)
	s.loop = render.NewLoop(render.DrawFunc(s.draw(s.scene)), gate, opts...)
	s.done = make(chan struct{})
	s.mounted = true

	loop, done := s.loop, s.done
	go func() {
		defer close(done)
		if err := loop.Run(ctx); err != nil {
			s.logger.Debug("render loop ended", zap.Error(err))
			s.expire(done)
		}
	}()
	s.logger.Debug("surface mounted")
}

// expire unmounts the mount identified by done after its context ended.
// A mount already unmounted, or replaced by a later Mount, is left alone.
func (s *Surface) expire(done chan struct{}) {
	s.mu.Lock()
	if !s.mounted || s.done != done {
		s.mu.Unlock()
		return
	}
	handle, sc := s.unmountLocked()
	s.mu.Unlock()
	s.release(handle, sc)
}

// unmountLocked flips the mount off and invalidates loads in flight.
func (s *Surface) unmountLocked() (*visibility.Handle, *scene.Scene) {
	s.mounted = false
	s.loadSeq++
	s.model = nil
	return s.handle, s.scene
}

func (s *Surface) release(handle *visibility.Handle, sc *scene.Scene) {
	if s.monitor != nil {
		s.monitor.Detach(handle)
	}
	sc.Dispose()
	s.logger.Debug("surface unmounted")
}

func (s *Surface) draw(sc *scene.Scene) func(render.Frame) error {
	return func(render.Frame) error {
		if s.renderer != nil {
			sc.Draw(s.renderer)
		}
		return nil
	}
}

// LoadModel fetches url through the source and places the instance in the
// scene, replacing any previous model. If the surface is unmounted (or a
// newer LoadModel started) while the load was in flight, the instance is
// disposed and the scene is left alone. On failure the scene stays as it
// was and the error is returned.
func (s *Surface) LoadModel(ctx context.Context, url string) error {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return ErrNotMounted
	}
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	node, err := s.source.Load(ctx, url, s.onProgress)
	if err != nil {
		s.logger.Warn("model load failed", zap.String("url", url), zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted || seq != s.loadSeq {
		node.Dispose()
		s.logger.Debug("discarding model, surface moved on", zap.String("url", url))
		return nil
	}

	// Pose before Add: node is not reachable from Draw yet.
	for region, p := range s.progress {
		for _, tr := range s.tracks[region] {
			tr.Apply(node, p)
		}
	}
	if s.model != nil {
		s.scene.Remove(s.model)
		s.model.Dispose()
	}
	if err := s.scene.Add(node); err != nil {
		node.Dispose()
		return err
	}
	s.model = node
	s.logger.Debug("model placed", zap.String("url", url), zap.String("node", node.ID))
	return nil
}

// AddTrack binds tr to a scroll region. The region's current progress is
// applied immediately if a model is loaded.
func (s *Surface) AddTrack(region string, tr Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[region] = append(s.tracks[region], tr)
	if s.model == nil {
		return
	}
	model, p := s.model, s.progress[region]
	s.scene.Update(func() { tr.Apply(model, p) })
}

// SetProgress records normalized scroll progress for region, clamped to
// [0,1], and applies the region's tracks.
func (s *Surface) SetProgress(region string, p float64) {
	p = clamp01(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[region] = p
	if s.model == nil || !s.mounted {
		return
	}
	model, tracks := s.model, s.tracks[region]
	s.scene.Update(func() {
		for _, tr := range tracks {
			tr.Apply(model, p)
		}
	})
}

// Progress returns the last progress recorded for region.
func (s *Surface) Progress(region string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress[region]
}

// Model returns the placed instance, or nil.
func (s *Surface) Model() *scene.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Scene returns the scene of the current mount, or nil before Mount.
func (s *Surface) Scene() *scene.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene
}

// Handle returns the visibility handle of the current mount.
func (s *Surface) Handle() *visibility.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Mounted reports whether the surface is mounted.
func (s *Surface) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

// Stats returns the frame counters of the current mount.
func (s *Surface) Stats() render.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop == nil {
		return render.Stats{}
	}
	return s.loop.Stats()
}

// Unmount stops the loop, detaches visibility, and disposes the scene along
// with the placed model. Safe to call more than once.
func (s *Surface) Unmount() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	loop, done := s.loop, s.done
	handle, sc := s.unmountLocked()
	s.mu.Unlock()

	loop.Stop()
	<-done
	s.release(handle, sc)
}
