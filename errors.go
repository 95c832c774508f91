package modelcache

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyURL is wrapped in a LoadError when Load is called with "".
	ErrEmptyURL = errors.New("modelcache: empty url")

	// ErrNoDecoder means no decoder is registered for the URL's extension.
	ErrNoDecoder = errors.New("modelcache: no decoder for extension")

	// ErrNoScene means a loader reported success without a scene graph.
	ErrNoScene = errors.New("modelcache: loader returned no scene")
)

// LoadError reports a failed fetch or decode of an asset. The underlying
// cause is available through errors.Unwrap / errors.As.
type LoadError struct {
	URL string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("modelcache: load %q: %v", e.URL, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func asLoadError(url string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return &LoadError{URL: url, Err: err}
}
