package audiocapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice captures from the system default input via PortAudio.
// The zero value is usable.
type PortAudioDevice struct {
	// FramesPerBuffer is the capture batch size in samples.
	// Defaults to 1024 (~21 ms at 48 kHz).
	FramesPerBuffer int
}

var _ Device = (*PortAudioDevice)(nil)

// Acquire opens the default input stream. PortAudio has no per-stream
// echo cancellation, noise suppression, or gain control knobs; those
// constraints are treated as hints and left to the OS input pipeline.
func (d *PortAudioDevice) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c = c.withDefaults()

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	frames := d.FramesPerBuffer
	if frames <= 0 {
		frames = 1024
	}
	in := make([]int16, frames)

	st, err := portaudio.OpenDefaultStream(1, 0, float64(c.SampleRate), len(in), in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := st.Start(); err != nil {
		st.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	s := &portaudioStream{
		st:   st,
		rate: c.SampleRate,
		done: make(chan struct{}),
	}
	go s.readLoop(in)

	slog.Debug("microphone acquired", "sampleRate", c.SampleRate, "framesPerBuffer", frames)
	return s, nil
}

type portaudioStream struct {
	mu       sync.RWMutex
	st       *portaudio.Stream
	rate     int
	handlers []func([]float32)
	closed   bool
	done     chan struct{}
}

func (s *portaudioStream) OnSamples(fn func(samples []float32)) error {
	if fn == nil {
		return ErrNilHandler
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.handlers = append(s.handlers, fn)
	return nil
}

func (s *portaudioStream) SampleRate() int {
	return s.rate
}

func (s *portaudioStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	if err := s.st.Stop(); err != nil {
		slog.Error("stop input stream", "error", err)
	}
	if err := s.st.Close(); err != nil {
		slog.Error("close input stream", "error", err)
	}
	if err := portaudio.Terminate(); err != nil {
		slog.Error("terminate portaudio", "error", err)
	}
	return nil
}

func (s *portaudioStream) readLoop(in []int16) {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.st.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			s.mu.RLock()
			closed := s.closed
			s.mu.RUnlock()
			if !closed {
				slog.Error("read microphone", "error", err)
			}
			return
		}

		out := make([]float32, len(in))
		convertSamples(in, out)

		s.mu.RLock()
		handlers := s.handlers
		s.mu.RUnlock()
		for _, fn := range handlers {
			fn(out)
		}
	}
}

// convertSamples widens signed 16-bit PCM to float32 in [-1, 1].
func convertSamples(in []int16, out []float32) {
	for i, v := range in {
		out[i] = float32(v) / 32768
	}
}
