package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Krishna8167/modelcache"
	"github.com/Krishna8167/modelcache/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [url]...",
	Short: "Warm the cache and reload models when their files change",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, fetcher := newCache()
		defer cache.Stop()

		ff, ok := fetcher.(modelcache.FileFetcher)
		if !ok {
			return fmt.Errorf("watch needs a local asset root, not a base URL")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		for _, url := range args {
			warm(ctx, cache, url)
		}

		w := watch.New(ff, cache,
			watch.WithLogger(logger),
			watch.WithDebounce(cfg.GetDebounce()),
			watch.OnInvalidate(func(url string) {
				warm(ctx, cache, url)
			}),
		)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to watch %s: %w", ff.Root, err)
		}
		defer w.Stop()

		<-ctx.Done()
		st := w.Stats()
		logger.Info("watch stopped",
			zap.Int("invalidations", st.Invalidations),
			zap.Int("errors", st.Errors),
			zap.Strings("cached", cache.Diagnostics().CachedURLs))
		return nil
	},
}

// warm loads url into the cache and drops the instance, leaving only the
// canonical copy behind.
func warm(ctx context.Context, cache *modelcache.Cache, url string) {
	node, err := cache.Load(ctx, url, nil)
	if err != nil {
		logger.Warn("warm failed", zap.String("url", url), zap.Error(err))
		return
	}
	st := node.Stats()
	node.Dispose()
	d := cache.Diagnostics()
	logger.Info("model ready",
		zap.String("url", url),
		zap.Int("triangles", st.Triangles),
		zap.Int("cached_models", d.CachedModels),
		zap.Int("active_loads", d.ActiveLoads))
}
