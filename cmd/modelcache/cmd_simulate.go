package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Krishna8167/modelcache/monitor"
	"github.com/Krishna8167/modelcache/render"
	"github.com/Krishna8167/modelcache/scene"
	"github.com/Krishna8167/modelcache/surface"
	"github.com/Krishna8167/modelcache/visibility"
)

var (
	simDuration time.Duration
	simPage     float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <url>",
	Short: "Scroll a headless page past a model surface and report frame work",
	Long: `Mounts a surface 1200px down a page, loads the model into it and scrolls
the page from top to bottom. Frames are counted but only drawn while the
surface is visible; scroll progress through the surface rotates the model.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		cache, _ := newCache()
		defer cache.Stop()

		viewport := visibility.Rect{W: 1280, H: 720}
		canvas := visibility.Rect{Y: 1200, W: 1280, H: 600}
		obs := visibility.NewRectObserver(viewport)
		obs.SetBounds("canvas", canvas)
		visMon := visibility.New(obs, cfg.MonitorConfig(), visibility.WithLogger(logger))

		var meshes atomic.Int64
		r := scene.RendererFunc(func(*scene.Mesh, mgl32.Mat4, float32) { meshes.Add(1) })

		surf := surface.New(cache, visMon, r,
			surface.WithLogger(logger),
			surface.WithLoopOptions(render.WithFPS(cfg.Render.FPS)),
			surface.WithThresholds(cfg.Visibility.Thresholds...),
			surface.WithRootMargin(cfg.Visibility.RootMargin),
			surface.WithProgress(func(loaded, total int64) {
				logger.Debug("loading", zap.Int64("loaded", loaded), zap.Int64("total", total))
			}),
		)
		surf.Mount(ctx, "canvas")
		defer surf.Unmount()

		turn := surface.RestPose()
		turn.Rotation = mgl32.Vec3{0, mgl32.DegToRad(180), 0}
		surf.AddTrack("hero", surface.Track{From: surface.RestPose(), To: turn, Ease: "power2.inOut"})

		mem := monitor.New(cache,
			monitor.WithFrames(surf),
			monitor.WithLogger(logger),
			monitor.WithCapacity(cfg.Memory.Samples),
		)
		before := mem.Sample()
		mem.Start(cfg.GetSampleInterval())
		defer mem.Stop()

		if err := surf.LoadModel(ctx, args[0]); err != nil {
			return err
		}

		tick := time.NewTicker(16 * time.Millisecond)
		defer tick.Stop()
		start := time.Now()
		for done := false; !done; {
			select {
			case <-ctx.Done():
				done = true
			case now := <-tick.C:
				f := min(float64(now.Sub(start))/float64(simDuration), 1)
				y := f * (simPage - viewport.H)
				obs.ScrollTo(y)
				surf.SetProgress("hero", (y+viewport.H-canvas.Y)/(viewport.H+canvas.H))
				done = f >= 1
			}
		}

		after := mem.Sample()
		mem.Compare("simulate", before, after)

		st := surf.Stats()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "frames %d  drawn %d  skipped %d  errors %d  meshes %d\n",
			st.Frames, st.Drawn, st.Skipped, st.Errors, meshes.Load())
		if st.Frames > 0 {
			fmt.Fprintf(out, "draw work avoided: %.0f%%\n", 100*float64(st.Skipped)/float64(st.Frames))
		}
		if sum, ok := mem.Stats(); ok {
			fmt.Fprintf(out, "heap %s  delta %+.1f MB over %d samples  models %.1f MB est.\n",
				humanize.IBytes(after.Memory.HeapAlloc), sum.DeltaMB, sum.Samples, after.Models.EstimatedMemoryMB)
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().DurationVar(&simDuration, "duration", 3*time.Second, "scroll duration")
	simulateCmd.Flags().Float64Var(&simPage, "page", 3000, "page height in px")
}
