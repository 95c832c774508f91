package modelcache

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/Krishna8167/modelcache/format/gltf"
	"github.com/Krishna8167/modelcache/format/obj"
	"github.com/Krishna8167/modelcache/scene"
)

// Loader performs the expensive fetch-and-decode for one asset URL. The
// cache calls it at most once per URL at a time.
type Loader interface {
	Load(ctx context.Context, url string, progress ProgressFunc) (*scene.Node, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, url string, progress ProgressFunc) (*scene.Node, error)

func (f LoaderFunc) Load(ctx context.Context, url string, progress ProgressFunc) (*scene.Node, error) {
	return f(ctx, url, progress)
}

// Decoder parses one asset format into a scene graph. name is the asset
// URL, used for naming the root node.
type Decoder interface {
	Decode(name string, r io.Reader) (*scene.Node, error)
}

// Fetcher retrieves raw asset bytes, reporting progress while reading.
type Fetcher interface {
	Fetch(ctx context.Context, url string, progress ProgressFunc) (io.ReadCloser, error)
}

// DefaultDecoders returns the decoders for the built-in formats, keyed by
// lower-case extension:
// .obj = Wavefront OBJ (geometry only)
// .glb, .gltf = glTF 2.0 (self-contained)
func DefaultDecoders() map[string]Decoder {
	return map[string]Decoder{
		".obj":  obj.Decoder{},
		".glb":  gltf.Decoder{},
		".gltf": gltf.Decoder{},
	}
}

// SourceLoader fetches bytes with Fetcher and decodes them with the
// decoder registered for the URL's extension.
type SourceLoader struct {
	Fetcher  Fetcher
	Decoders map[string]Decoder
}

// NewSourceLoader returns a SourceLoader with DefaultDecoders.
func NewSourceLoader(f Fetcher) *SourceLoader {
	return &SourceLoader{Fetcher: f, Decoders: DefaultDecoders()}
}

// Load implements Loader.
func (l *SourceLoader) Load(ctx context.Context, rawURL string, progress ProgressFunc) (*scene.Node, error) {
	ext := Ext(rawURL)
	dec, ok := l.Decoders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDecoder, ext)
	}
	rc, err := l.Fetcher.Fetch(ctx, rawURL, progress)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return dec.Decode(rawURL, rc)
}

// Ext returns the lower-case extension of the URL path, ignoring any query
// or fragment.
func Ext(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}
