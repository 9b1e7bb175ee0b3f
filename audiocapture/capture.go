// Package audiocapture provides microphone stream acquisition behind a
// provider interface so the capture backend can be swapped out in tests.
package audiocapture

import (
	"context"
	"errors"
)

// ErrNilHandler is returned when subscribing with a nil sample handler.
var ErrNilHandler = errors.New("audiocapture: nil sample handler")

// ErrClosed is returned when using a stream after it has been closed.
var ErrClosed = errors.New("audiocapture: stream closed")

// Constraints describe the requested capture configuration. The three
// processing switches mirror the usual platform capture hints; backends
// honor whichever ones the underlying audio API supports.
type Constraints struct {
	SampleRate       int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints returns the default capture constraints: 48 kHz
// mono with all input processing enabled.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       48000,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

func (c Constraints) withDefaults() Constraints {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	return c
}

// Device acquires microphone streams. Acquire may block while the
// platform decides whether to grant input access; the context bounds
// that wait.
type Device interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live microphone capture handle. Samples are mono float32
// in [-1, 1], delivered on the capture goroutine; handlers must not
// block. Close releases the underlying input and is idempotent.
type Stream interface {
	OnSamples(fn func(samples []float32)) error
	SampleRate() int
	Close() error
}
