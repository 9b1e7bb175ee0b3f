// Package recognizer provides continuous speech-to-text sessions behind
// a provider interface with feature detection.
package recognizer

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrUnavailable is returned when a provider cannot run in the current
// environment (missing key, binary, model, or platform facility).
var ErrUnavailable = errors.New("recognizer: provider unavailable")

// ErrSessionClosed is returned when writing to a stopped session.
var ErrSessionClosed = errors.New("recognizer: session closed")

// ErrSessionStarted is returned when starting a session twice.
var ErrSessionStarted = errors.New("recognizer: session already started")

// Segment is one hypothesis segment. Text is the top hypothesis; Final
// marks segments that will no longer change.
type Segment struct {
	Text       string
	Final      bool
	Confidence float64
}

// Result carries every segment produced so far by a session, in order.
// Consumers rebuild the transcript from the full list each time rather
// than appending deltas. A Result with Err set reports a recognition
// error; the session keeps running unless its channel closes.
type Result struct {
	Segments []Segment
	Err      error
}

// Text concatenates the top hypothesis of every segment, in order.
func (r Result) Text() string {
	var b strings.Builder
	for _, s := range r.Segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Interim reports whether any segment is still a hypothesis.
func (r Result) Interim() bool {
	for _, s := range r.Segments {
		if !s.Final {
			return true
		}
	}
	return false
}

// SessionConfig configures a recognition session.
type SessionConfig struct {
	// Language is a BCP-47 hint ("en", "zh", ...); "auto" or empty
	// lets the backend decide.
	Language string
	// Continuous keeps the session listening across pauses.
	Continuous bool
	// InterimResults asks for partial hypotheses before finalization.
	// Batch backends that cannot produce interims ignore it.
	InterimResults bool
	// SampleRate of the audio that will be written, in Hz.
	SampleRate int
}

// Session is one active recognition run. Results are delivered in
// order on a single channel which is closed when the session ends.
// WriteSamples is safe to call from the capture goroutine and never
// blocks. Stop is idempotent.
type Session interface {
	Start(ctx context.Context) error
	WriteSamples(samples []float32)
	Results() <-chan Result
	Stop() error
}

// Provider creates sessions for one recognition backend.
type Provider interface {
	Name() string
	DisplayName() string
	// Available reports whether the backend can run right now; callers
	// treat false as the platform exposing no recognition facility.
	Available() bool
	NewSession(cfg SessionConfig) (Session, error)
}

// Registry holds the known providers in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	byName    map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

// Register adds a provider. Later registrations with the same name
// replace earlier ones.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[p.Name()]; ok {
		for i, existing := range r.providers {
			if existing.Name() == p.Name() {
				r.providers[i] = p
				break
			}
		}
	} else {
		r.providers = append(r.providers, p)
	}
	r.byName[p.Name()] = p
}

// Get returns the provider with the given name, or nil.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// List returns the registered providers in registration order.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Pick resolves a provider choice. An explicit name returns that
// provider only when it is available. "auto" or "" returns the first
// available provider. Nil means recognition is not available and the
// caller degrades to capture-only mode.
func (r *Registry) Pick(preferred string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if preferred != "" && preferred != "auto" {
		if p, ok := r.byName[preferred]; ok && p.Available() {
			return p
		}
		return nil
	}
	for _, p := range r.providers {
		if p.Available() {
			return p
		}
	}
	return nil
}
