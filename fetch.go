package modelcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileFetcher reads assets from a directory. URLs are slash-separated
// paths relative to Root and cannot escape it.
type FileFetcher struct {
	Root string
}

// Path maps an asset URL to its file path under Root.
func (f FileFetcher) Path(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	return filepath.Join(f.Root, filepath.FromSlash(path.Clean("/"+p)))
}

// Fetch implements Fetcher.
func (f FileFetcher) Fetch(_ context.Context, rawURL string, progress ProgressFunc) (io.ReadCloser, error) {
	fp := f.Path(rawURL)
	fh, err := os.Open(fp)
	if err != nil {
		return nil, err
	}
	total := int64(-1)
	if fi, err := fh.Stat(); err == nil {
		total = fi.Size()
	}
	return newProgressReader(fh, total, progress), nil
}

// HTTPFetcher downloads assets with GET. Relative URLs are resolved
// against BaseURL.
type HTTPFetcher struct {
	Client  *http.Client
	BaseURL string
}

// Fetch implements Fetcher. Non-2xx responses are errors.
func (f HTTPFetcher) Fetch(ctx context.Context, rawURL string, progress ProgressFunc) (io.ReadCloser, error) {
	target, err := f.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", target, resp.Status)
	}
	return newProgressReader(resp.Body, resp.ContentLength, progress), nil
}

func (f HTTPFetcher) resolve(rawURL string) (string, error) {
	if f.BaseURL == "" || strings.Contains(rawURL, "://") {
		return rawURL, nil
	}
	base, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", fmt.Errorf("base url: %w", err)
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

type progressReader struct {
	rc     io.ReadCloser
	total  int64
	loaded int64
	fn     ProgressFunc
}

func newProgressReader(rc io.ReadCloser, total int64, fn ProgressFunc) io.ReadCloser {
	if fn == nil {
		return rc
	}
	return &progressReader{rc: rc, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.rc.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		p.fn(p.loaded, p.total)
	}
	return n, err
}

func (p *progressReader) Close() error {
	return p.rc.Close()
}
