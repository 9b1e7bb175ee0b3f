package recognizer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Transcriber turns one utterance of mono audio into text. Chunked
// backends (HTTP APIs, local CLI models) plug in here.
type Transcriber func(ctx context.Context, samples []float32, sampleRate int, language string) (string, error)

const (
	audioQueueDepth = 64
	preRollDuration = 300 * time.Millisecond
)

// chunkedSession adapts a batch transcriber to the streaming Session
// interface. A voice activity detector cuts the incoming stream into
// utterances; each finished utterance is transcribed and appended as a
// final segment, and the full segment list is re-published after every
// append.
type chunkedSession struct {
	cfg        SessionConfig
	vad        *VAD
	buf        *utteranceBuffer
	transcribe Transcriber
	targetRate int
	preRoll    int

	audio   chan []float32
	results chan Result
	done    chan struct{}

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	segments []Segment
}

// newChunkedSession wires a transcriber into a session. targetRate is
// the rate the backend wants; audio is resampled to it when it differs
// from the capture rate.
func newChunkedSession(cfg SessionConfig, transcribe Transcriber, vcfg VADConfig, targetRate int) *chunkedSession {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	return &chunkedSession{
		cfg:        cfg,
		vad:        NewVAD(vcfg, cfg.SampleRate),
		buf:        newUtteranceBuffer(cfg.SampleRate, 0),
		transcribe: transcribe,
		targetRate: targetRate,
		preRoll:    int(preRollDuration * time.Duration(cfg.SampleRate) / time.Second),
		audio:      make(chan []float32, audioQueueDepth),
		results:    make(chan Result, 16),
		done:       make(chan struct{}),
	}
}

func (s *chunkedSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSessionClosed
	}
	if s.started {
		return ErrSessionStarted
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	go s.run(ctx)
	return nil
}

// WriteSamples queues a batch for processing. It never blocks; when
// the queue is full the batch is dropped.
func (s *chunkedSession) WriteSamples(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return
	}
	batch := make([]float32, len(samples))
	copy(batch, samples)
	select {
	case s.audio <- batch:
	default:
	}
}

func (s *chunkedSession) Results() <-chan Result {
	return s.results
}

// Stop drains the queue, transcribes any open utterance, closes the
// results channel and returns. Safe to call more than once.
func (s *chunkedSession) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	if !s.started {
		close(s.results)
		s.mu.Unlock()
		return nil
	}
	close(s.audio)
	s.mu.Unlock()

	<-s.done
	s.cancel()
	return nil
}

func (s *chunkedSession) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.results)
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-s.audio:
			if !ok {
				if fr := s.vad.Flush(); fr.Transcribe {
					s.flush(ctx)
				}
				return
			}
			s.buf.Append(batch)
			res := s.vad.Process(batch)
			switch {
			case res.Transcribe:
				s.flush(ctx)
			case res.Event == EventSpeechEnd:
				// Too short to transcribe.
				s.buf.Clear()
			case !s.vad.InSpeech():
				s.buf.TrimTo(s.preRoll)
			}
		}
	}
}

// flush transcribes the buffered utterance and publishes the grown
// segment list.
func (s *chunkedSession) flush(ctx context.Context) {
	samples := s.buf.Extract()
	if len(samples) == 0 {
		return
	}
	rate := s.cfg.SampleRate
	if s.targetRate > 0 && rate != s.targetRate {
		samples = Resample(samples, rate, s.targetRate)
		rate = s.targetRate
	}

	text, err := s.transcribe(ctx, samples, rate, s.cfg.Language)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.emit(ctx, Result{Err: fmt.Errorf("transcribe utterance: %w", err)})
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if len(s.segments) > 0 {
		text = " " + text
	}
	s.segments = append(s.segments, Segment{Text: text, Final: true})
	snap := make([]Segment, len(s.segments))
	copy(snap, s.segments)
	s.mu.Unlock()

	s.emit(ctx, Result{Segments: snap})
}

func (s *chunkedSession) emit(ctx context.Context, r Result) {
	select {
	case s.results <- r:
	case <-ctx.Done():
	}
}
