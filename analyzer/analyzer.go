// Package analyzer exposes time-domain amplitude samples from a live
// audio feed for waveform rendering.
package analyzer

import (
	"errors"
	"math"
	"sync"
)

// ErrWindowTooSmall is returned for window sizes that cannot form a line.
var ErrWindowTooSmall = errors.New("analyzer: window size must be at least 2")

// ErrBadSmoothing is returned for smoothing constants outside [0, 1).
var ErrBadSmoothing = errors.New("analyzer: smoothing must be in [0, 1)")

const (
	// DefaultWindowSize is the number of samples in the read window.
	DefaultWindowSize = 2048
	// DefaultSmoothing is the temporal smoothing constant applied
	// between successive reads.
	DefaultSmoothing = 0.8
)

// Config holds analyzer configuration. Zero values are replaced with
// the defaults.
type Config struct {
	WindowSize int
	Smoothing  float64
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize: DefaultWindowSize,
		Smoothing:  DefaultSmoothing,
	}
}

// Analyzer keeps a sliding window of the most recent samples and serves
// it as unsigned bytes centered on 128, the way UI waveform painters
// expect. Feed is called from the capture goroutine; reads happen on
// the render loop.
type Analyzer struct {
	mu       sync.Mutex
	window   []float32 // ring of the most recent samples
	pos      int
	fed      bool
	closed   bool
	smooth   float64
	prev     []float64 // last smoothed read, one per window slot
	hasPrev  bool
	snapshot []float32 // scratch for chronological ordering
}

// New creates an analyzer for the given configuration.
func New(cfg Config) (*Analyzer, error) {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Smoothing == 0 {
		cfg.Smoothing = DefaultSmoothing
	}
	if cfg.WindowSize < 2 {
		return nil, ErrWindowTooSmall
	}
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		return nil, ErrBadSmoothing
	}
	return &Analyzer{
		window:   make([]float32, cfg.WindowSize),
		smooth:   cfg.Smoothing,
		prev:     make([]float64, cfg.WindowSize),
		snapshot: make([]float32, cfg.WindowSize),
	}, nil
}

// WindowSize returns the configured window length.
func (a *Analyzer) WindowSize() int {
	return len(a.window)
}

// Feed appends samples to the window. Older samples fall off the front.
func (a *Analyzer) Feed(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for _, s := range samples {
		a.window[a.pos] = s
		a.pos = (a.pos + 1) % len(a.window)
	}
	if len(samples) > 0 {
		a.fed = true
	}
}

// Active reports whether the analyzer is attached to a live feed.
func (a *Analyzer) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fed && !a.closed
}

// TimeDomainBytes fills dst with the current window mapped to unsigned
// bytes (silence = 128) in chronological order, applying the temporal
// smoothing constant against the previous read. It returns the number
// of bytes written: min(len(dst), window size).
func (a *Analyzer) TimeDomainBytes(dst []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.window)
	if len(dst) < n {
		n = len(dst)
	}
	if n == 0 {
		return 0
	}

	// Oldest sample first.
	for i := 0; i < len(a.window); i++ {
		a.snapshot[i] = a.window[(a.pos+i)%len(a.window)]
	}

	for i := 0; i < n; i++ {
		cur := float64(a.snapshot[i])
		if a.hasPrev {
			cur = a.prev[i]*a.smooth + cur*(1-a.smooth)
		}
		a.prev[i] = cur
		dst[i] = quantize(cur)
	}
	a.hasPrev = true
	return n
}

// Close detaches the analyzer. Further feeds are ignored and Active
// reports false. Close is idempotent.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// quantize maps a [-1, 1] sample to an unsigned byte centered on 128.
func quantize(v float64) byte {
	b := math.Round(128 + v*127)
	if b < 0 {
		b = 0
	}
	if b > 255 {
		b = 255
	}
	return byte(b)
}
