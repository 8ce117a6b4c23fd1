package cmc

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/banshee-data/motrack/internal/fsutil"
	"github.com/banshee-data/motrack/internal/monitoring"
)

var (
	// ErrNoPreviousFrame is returned when an image-based estimator has no
	// previous (or current) image to compare against.
	ErrNoPreviousFrame = errors.New("cmc: no previous frame")
	// ErrInsufficientMatches is returned when too few correspondences survive
	// filtering or robust fitting.
	ErrInsufficientMatches = errors.New("cmc: insufficient matches")
	// ErrNotConverged is returned when an iterative method fails.
	ErrNotConverged = errors.New("cmc: not converged")
	// ErrUnsupportedMethod is returned by New for an unknown or unregistered method.
	ErrUnsupportedMethod = errors.New("cmc: unsupported method")
	// ErrNoTransform is returned when a precomputed source has no entry left.
	ErrNoTransform = errors.New("cmc: no transform for frame")
)

var logf = monitoring.Prefixed("cmc")

// Estimator measures camera motion between consecutive frames. On failure it
// returns Identity() together with a non-nil error; callers may keep the
// identity and carry on.
type Estimator interface {
	Estimate(prev, curr image.Image) (Transform, error)
}

// Options configures an estimator built by New.
type Options struct {
	Method     string
	Downscale  int
	MinMatches int
	RANSAC     RANSACOptions

	ECCMaxIters int
	ECCEps      float64

	// File and FS are used by the "file" method.
	File string
	FS   fsutil.FileSystem
}

// Factory builds an estimator for a registered method.
type Factory func(Options) (Estimator, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes an estimator factory available under name. Vision-based
// methods live in a separate package that registers itself on import.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("cmc: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("cmc: Register called twice for method " + name)
	}
	registry[name] = f
}

// Methods lists the registered method names.
func Methods() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the estimator for opts.Method.
func New(opts Options) (Estimator, error) {
	registryMu.RLock()
	f, ok := registry[opts.Method]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnsupportedMethod, opts.Method, Methods())
	}
	est, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("cmc %s: %w", opts.Method, err)
	}
	logf("using method %s", opts.Method)
	return est, nil
}

func init() {
	Register("none", func(Options) (Estimator, error) { return None{}, nil })
	Register("file", func(o Options) (Estimator, error) {
		fs := o.FS
		if fs == nil {
			fs = fsutil.OSFileSystem{}
		}
		return LoadFile(fs, o.File)
	})
}

// None never detects motion.
type None struct{}

// Estimate implements Estimator.
func (None) Estimate(image.Image, image.Image) (Transform, error) {
	return Identity(), nil
}
