package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Krishna8167/modelcache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const triangle = "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"

const quad = "v 0 0 0\nv 1 0 0\nv 1 1 0\nv 0 1 0\nf 1 2 3 4\n"

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func setup(t *testing.T) (string, modelcache.FileFetcher, *modelcache.Cache) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tri.obj"), triangle)
	writeFile(t, filepath.Join(dir, "other.obj"), triangle)
	fetcher := modelcache.FileFetcher{Root: dir}
	return dir, fetcher, modelcache.New(modelcache.NewSourceLoader(fetcher))
}

func load(t *testing.T, c *modelcache.Cache, url string) {
	t.Helper()
	n, err := c.Load(context.Background(), url, nil)
	require.NoError(t, err)
	n.Dispose()
}

func TestFlushInvalidatesEverySpelling(t *testing.T) {
	dir, fetcher, cache := setup(t)
	load(t, cache, "tri.obj")
	load(t, cache, "/tri.obj")
	load(t, cache, "other.obj")

	var mu sync.Mutex
	var got []string
	w := New(fetcher, cache, WithDebounce(time.Minute), OnInvalidate(func(url string) {
		mu.Lock()
		got = append(got, url)
		mu.Unlock()
	}))

	w.handleEvent(nil, fsnotify.Event{Name: filepath.Join(dir, "tri.obj"), Op: fsnotify.Write})
	w.handleEvent(nil, fsnotify.Event{Name: filepath.Join(dir, "tri.obj"), Op: fsnotify.Write})

	w.flush(time.Now())
	assert.True(t, cache.IsCached("tri.obj"), "still inside the debounce window")

	w.flush(time.Now().Add(2 * time.Minute))
	assert.False(t, cache.IsCached("tri.obj"))
	assert.False(t, cache.IsCached("/tri.obj"))
	assert.True(t, cache.IsCached("other.obj"))
	assert.ElementsMatch(t, []string{"tri.obj", "/tri.obj"}, got)

	st := w.Stats()
	assert.Equal(t, 2, st.Modified)
	assert.Equal(t, 2, st.Invalidations)
	assert.Equal(t, filepath.Join(dir, "tri.obj"), st.LastEventPath)
}

func TestEventKinds(t *testing.T) {
	dir, fetcher, cache := setup(t)
	w := New(fetcher, cache, WithExtensions(".OBJ"))

	w.handleEvent(nil, fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Write})
	w.handleEvent(nil, fsnotify.Event{Name: filepath.Join(dir, "a.obj"), Op: fsnotify.Chmod})
	assert.Empty(t, w.pending)

	w.handleEvent(nil, fsnotify.Event{Name: filepath.Join(dir, "a.obj"), Op: fsnotify.Create})
	w.handleEvent(nil, fsnotify.Event{Name: filepath.Join(dir, "b.obj"), Op: fsnotify.Remove})
	w.handleEvent(nil, fsnotify.Event{Name: filepath.Join(dir, "c.obj"), Op: fsnotify.Rename})

	st := w.Stats()
	assert.Equal(t, 1, st.Created)
	assert.Equal(t, 2, st.Removed)
	assert.Len(t, w.pending, 3)
}

func TestWatchReloadsChangedFile(t *testing.T) {
	dir, fetcher, cache := setup(t)
	load(t, cache, "tri.obj")
	load(t, cache, "other.obj")

	w := New(fetcher, cache, WithDebounce(20*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "tri.obj"), quad)
	require.Eventually(t, func() bool { return !cache.IsCached("tri.obj") }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, cache.IsCached("other.obj"))

	n, err := cache.Load(context.Background(), "tri.obj", nil)
	require.NoError(t, err)
	defer n.Dispose()
	assert.Equal(t, 2, n.Stats().Triangles, "the next load sees the new file")
}

func TestWatchFollowsNewDirectories(t *testing.T) {
	dir, fetcher, cache := setup(t)
	w := New(fetcher, cache, WithDebounce(20*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	sub := filepath.Join(dir, "props")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// The directory watch is added asynchronously; keep writing until an
	// event from inside it arrives.
	require.Eventually(t, func() bool {
		writeFile(t, filepath.Join(sub, "crate.obj"), triangle)
		return w.Stats().LastEventPath == filepath.Join(sub, "crate.obj")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStartMissingRoot(t *testing.T) {
	w := New(modelcache.FileFetcher{Root: filepath.Join(t.TempDir(), "missing")}, modelcache.New(nil))
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
}

func TestContextEndsWatch(t *testing.T) {
	_, fetcher, cache := setup(t)
	w := New(fetcher, cache)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()
}
