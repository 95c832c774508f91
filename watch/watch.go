// Package watch invalidates cached models when their files change on disk.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Krishna8167/modelcache"
)

// Cache is the part of *modelcache.Cache the watcher drives.
type Cache interface {
	Dispose(url string)
	Diagnostics() modelcache.Diagnostics
}

// Stats counts watcher activity.
type Stats struct {
	Created       int
	Modified      int
	Removed       int
	Invalidations int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a path must be quiet before it is processed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithExtensions restricts events to files with these extensions
// (".obj", ".glb"). The default is every extension the cache can decode.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.exts = make(map[string]bool, len(exts))
		for _, e := range exts {
			w.exts[strings.ToLower(e)] = true
		}
	}
}

// OnInvalidate is called after each cached URL is disposed.
func OnInvalidate(fn func(url string)) Option {
	return func(w *Watcher) {
		w.onInvalidate = fn
	}
}

/*
Watcher watches an asset directory tree and disposes cached models whose
source file was written, removed or renamed, so the next Load refetches.

Events are debounced per path: editors often save in several writes, and
only the settled path is processed. New subdirectories are added to the
watch as they appear.
*/
type Watcher struct {
	fetcher      modelcache.FileFetcher
	cache        Cache
	debounce     time.Duration
	exts         map[string]bool
	onInvalidate func(url string)
	logger       *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]time.Time
	stats   Stats
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New returns a watcher for the files served by fetcher.
func New(fetcher modelcache.FileFetcher, cache Cache, opts ...Option) *Watcher {
	w := &Watcher{
		fetcher:  fetcher,
		cache:    cache,
		debounce: 200 * time.Millisecond,
		logger:   zap.NewNop(),
		pending:  make(map[string]time.Time),
	}
	w.exts = make(map[string]bool)
	for ext := range modelcache.DefaultDecoders() {
		w.exts[ext] = true
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It is non-blocking; events are handled on a
// goroutine until Stop or until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	err = filepath.WalkDir(w.fetcher.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(p)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	w.fsw = fsw
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx, fsw, w.stopCh, w.doneCh)

	w.logger.Info("watching assets", zap.String("root", w.fetcher.Root))
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fsw, stopCh, doneCh := w.fsw, w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := fsw.Close(); err != nil {
		w.logger.Warn("closing watcher", zap.Error(err))
	}
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	tick := time.NewTicker(max(w.debounce/2, time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case now := <-tick.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := fsw.Add(ev.Name); err != nil {
				w.logger.Warn("watch new directory", zap.String("path", ev.Name), zap.Error(err))
			}
			return
		}
	}
	if !w.exts[strings.ToLower(filepath.Ext(ev.Name))] {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case ev.Has(fsnotify.Create):
		w.stats.Created++
	case ev.Has(fsnotify.Write):
		w.stats.Modified++
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.stats.Removed++
	default:
		return
	}
	w.stats.LastEventPath = ev.Name
	w.stats.LastEventTime = time.Now()
	w.pending[filepath.Clean(ev.Name)] = time.Now()
}

// flush processes paths quiet for at least the debounce window.
func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	var settled []string
	for p, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			settled = append(settled, p)
			delete(w.pending, p)
		}
	}
	w.mu.Unlock()

	for _, p := range settled {
		w.invalidate(p)
	}
}

// invalidate disposes every cached URL that resolves to path. Different
// spellings of one file ("a.obj", "/a.obj") are separate cache keys.
func (w *Watcher) invalidate(path string) {
	n := 0
	for _, url := range w.cache.Diagnostics().CachedURLs {
		if filepath.Clean(w.fetcher.Path(url)) != path {
			continue
		}
		w.cache.Dispose(url)
		n++
		w.logger.Info("model invalidated", zap.String("url", url), zap.String("path", path))
		if w.onInvalidate != nil {
			w.onInvalidate(url)
		}
	}
	if n > 0 {
		w.mu.Lock()
		w.stats.Invalidations += n
		w.mu.Unlock()
	}
}
