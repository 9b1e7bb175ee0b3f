package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voicepadhq/voicepad/recognizer"
)

const (
	rtcSampleRate = 48000
	// 20ms of mono audio at 48kHz, a valid Opus frame size.
	frameSamples = 960
)

// Config holds provider configuration.
type Config struct {
	APIKey string
	Model  string // optional transcription model override
	Prompt string // optional transcription prompt
}

// Provider implements recognition over the Realtime API. The server
// runs semantic voice activity detection and streams transcript deltas
// while the user is still speaking, so this is the lowest-latency
// hosted backend.
type Provider struct {
	cfg Config
}

// New creates the Realtime provider.
func New(cfg Config) *Provider { return &Provider{cfg: cfg} }

func (p *Provider) Name() string        { return "openai" }
func (p *Provider) DisplayName() string { return "OpenAI Realtime" }
func (p *Provider) Available() bool     { return p.cfg.APIKey != "" }

func (p *Provider) NewSession(cfg recognizer.SessionConfig) (recognizer.Session, error) {
	if !p.Available() {
		return nil, fmt.Errorf("openai: %w", recognizer.ErrUnavailable)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = rtcSampleRate
	}
	return &session{
		cfg: cfg,
		client: NewClient(ClientConfig{
			APIKey: p.cfg.APIKey,
			Token: TokenConfig{
				Model:    p.cfg.Model,
				Language: cfg.Language,
				Prompt:   p.cfg.Prompt,
			},
		}),
		audio:   make(chan []float32, 64),
		results: make(chan recognizer.Result, 16),
		done:    make(chan struct{}),
		byID:    make(map[string]*speechItem),
	}, nil
}

// speechItem is one server-detected utterance and its transcript so
// far.
type speechItem struct {
	id    string
	text  string
	final bool
}

type session struct {
	cfg    recognizer.SessionConfig
	client *Client

	audio   chan []float32
	results chan recognizer.Result
	done    chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	items   []*speechItem
	byID    map[string]*speechItem
}

func (s *session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return recognizer.ErrSessionClosed
	}
	if s.started {
		return recognizer.ErrSessionStarted
	}

	if err := s.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime: %w", err)
	}

	s.started = true
	go s.pumpAudio()
	go s.consumeEvents()
	return nil
}

// WriteSamples queues mono samples for upload. Never blocks; drops
// when the queue is full.
func (s *session) WriteSamples(samples []float32) {
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

func (s *session) Results() <-chan recognizer.Result {
	return s.results
}

// Stop hangs up the call and waits for the event loop to drain. Safe
// to call more than once.
func (s *session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	if !s.started {
		close(s.results)
		close(s.done)
		s.mu.Unlock()
		// A failed Connect may still hold a peer connection.
		s.client.Close()
		return nil
	}
	close(s.audio)
	s.mu.Unlock()

	s.client.Close()
	<-s.done
	return nil
}

// pumpAudio frames queued mono audio into 20ms Opus frames and sends
// them up the track.
func (s *session) pumpAudio() {
	frame := make([]float32, 0, frameSamples)
	for batch := range s.audio {
		if s.cfg.SampleRate != rtcSampleRate {
			batch = recognizer.Resample(batch, s.cfg.SampleRate, rtcSampleRate)
		}
		for len(batch) > 0 {
			n := min(frameSamples-len(frame), len(batch))
			frame = append(frame, batch[:n]...)
			batch = batch[n:]
			if len(frame) < frameSamples {
				break
			}
			if err := s.client.SendAudio(stereoInterleave(frame)); err != nil {
				if errors.Is(err, ErrClosed) {
					return
				}
				slog.Warn("send realtime audio", "error", err)
			}
			frame = frame[:0]
		}
	}
}

func (s *session) consumeEvents() {
	defer close(s.done)
	defer close(s.results)
	for {
		select {
		case ev, ok := <-s.client.Messages():
			if !ok {
				return
			}
			s.handleEvent(ev)
		case err := <-s.client.Errors():
			s.emit(recognizer.Result{Err: fmt.Errorf("realtime transport: %w", err)})
		}
	}
}

func (s *session) handleEvent(ev Event) {
	switch e := ev.(type) {
	case SpeechStartedEvent:
		// Register the item now so later deltas keep arrival order.
		s.mu.Lock()
		s.itemLocked(e.ItemID)
		s.mu.Unlock()
	case TranscriptDeltaEvent:
		s.mu.Lock()
		it := s.itemLocked(e.ItemID)
		it.text += e.Delta
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.emit(recognizer.Result{Segments: snap})
	case TranscriptEvent:
		s.mu.Lock()
		it := s.itemLocked(e.ItemID)
		it.text = e.Transcript
		it.final = true
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.emit(recognizer.Result{Segments: snap})
	case ErrorEvent:
		s.emit(recognizer.Result{Err: fmt.Errorf("realtime api: %s (%s)", e.Error.Message, e.Error.Code)})
	case SpeechStoppedEvent:
		slog.Debug("realtime speech stopped", "item", e.ItemID)
	}
}

func (s *session) itemLocked(id string) *speechItem {
	if it, ok := s.byID[id]; ok {
		return it
	}
	it := &speechItem{id: id}
	s.byID[id] = it
	s.items = append(s.items, it)
	return it
}

// snapshotLocked renders the ordered items as segments. Items the
// server announced but has not transcribed yet are skipped.
func (s *session) snapshotLocked() []recognizer.Segment {
	segs := make([]recognizer.Segment, 0, len(s.items))
	for _, it := range s.items {
		if it.text == "" {
			continue
		}
		text := it.text
		if len(segs) > 0 {
			text = " " + text
		}
		seg := recognizer.Segment{Text: text, Final: it.final}
		if it.final {
			seg.Confidence = 1
		}
		segs = append(segs, seg)
	}
	return segs
}

// emit delivers a result without blocking the event loop. Results are
// complete snapshots, so the oldest pending one is dropped when the
// consumer lags.
func (s *session) emit(r recognizer.Result) {
	for {
		select {
		case s.results <- r:
			return
		default:
			select {
			case <-s.results:
			default:
			}
		}
	}
}

// stereoInterleave duplicates mono samples into interleaved stereo for
// the 2-channel Opus track.
func stereoInterleave(mono []float32) []float32 {
	out := make([]float32, len(mono)*2)
	for i, v := range mono {
		out[2*i] = v
		out[2*i+1] = v
	}
	return out
}
