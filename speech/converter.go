// Package speech implements the dictation component: a converter that
// owns the recording lifecycle, the live transcript, and the copied
// flag, wired to capability providers for capture, recognition, and
// the clipboard.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/voicepadhq/voicepad/analyzer"
	"github.com/voicepadhq/voicepad/audiocapture"
	"github.com/voicepadhq/voicepad/clipboard"
	"github.com/voicepadhq/voicepad/internal/types"
	"github.com/voicepadhq/voicepad/recognizer"
	"github.com/voicepadhq/voicepad/waveform"
)

// ErrClosed is returned when starting a converter after Close.
var ErrClosed = errors.New("speech: converter closed")

// ErrAlreadyRecording is returned when starting while a session is
// active or still being acquired.
var ErrAlreadyRecording = errors.New("speech: already recording")

// ErrNoDevice is returned when constructing a converter without a
// capture device.
var ErrNoDevice = errors.New("speech: no capture device")

// ErrNoClipboard is returned by Copy when no clipboard is wired.
var ErrNoClipboard = errors.New("speech: no clipboard")

const (
	// DefaultAutoStop is the inactivity window before a recording
	// session stops itself.
	DefaultAutoStop = 15 * time.Second
	// DefaultCopiedReset is how long the copied flag stays set after a
	// successful copy.
	DefaultCopiedReset = 2000 * time.Millisecond
)

// timer is the single-shot timer the converter schedules the copied
// reset and the inactivity auto-stop on. *time.Timer satisfies it.
type timer interface {
	Stop() bool
}

func afterFunc(d time.Duration, fn func()) timer {
	return time.AfterFunc(d, fn)
}

// Config wires the converter's capabilities. Device is required;
// everything else has a usable default. A nil Provider (or one that is
// unavailable) degrades recognition silently: capture and waveform
// still run, the transcript only changes through SetTranscript.
type Config struct {
	Device      audiocapture.Device
	Clipboard   clipboard.Writer
	Constraints audiocapture.Constraints
	Analyzer    analyzer.Config
	Style       waveform.Style
	Scheduler   waveform.Scheduler
	FrameSink   func(waveform.Frame)
	Provider    recognizer.Provider
	Language    string
	// AutoStop ends a recording that produces no recognition results
	// for this long. Zero disables the timeout.
	AutoStop time.Duration
	// CopiedReset overrides DefaultCopiedReset when positive.
	CopiedReset time.Duration
}

// Converter is the dictation component core. All methods are safe for
// concurrent use. A converter can record any number of sessions, one
// at a time, until Close.
type Converter struct {
	device      audiocapture.Device
	scheduler   waveform.Scheduler
	sink        func(waveform.Frame)
	copiedReset time.Duration
	newTimer    func(time.Duration, func()) timer

	mu          sync.Mutex
	clipboard   clipboard.Writer
	constraints audiocapture.Constraints
	analyzerCfg analyzer.Config
	style       waveform.Style
	provider    recognizer.Provider
	language    string
	autoStop    time.Duration

	closed   bool
	starting bool
	state    types.RecordingState
	// gen counts session generations. A stream acquisition, timer, or
	// relay carries the generation it was created under and is ignored
	// once the counter moves past it.
	gen uint64

	stream       audiocapture.Stream
	analyzer     *analyzer.Analyzer
	renderer     *waveform.Renderer
	cancelRender func()
	session      recognizer.Session
	relayDone    chan struct{}
	providerName string
	sessionID    string
	startedAt    time.Time
	lastDuration time.Duration

	transcript string
	copied     bool
	copiedTmr  timer
	copySeq    uint64
	inactivity timer
	width      float64
	height     float64

	transcripts chan types.Transcript
	states      chan types.StateChange
	copiedCh    chan bool
	errs        chan error
}

// New creates a converter from cfg.
func New(cfg Config) (*Converter, error) {
	if cfg.Device == nil {
		return nil, ErrNoDevice
	}
	if cfg.Constraints == (audiocapture.Constraints{}) {
		cfg.Constraints = audiocapture.DefaultConstraints()
	}
	if cfg.Style == (waveform.Style{}) {
		cfg.Style = waveform.DefaultStyle()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = waveform.TickScheduler{}
	}
	if cfg.FrameSink == nil {
		cfg.FrameSink = func(waveform.Frame) {}
	}
	if cfg.CopiedReset <= 0 {
		cfg.CopiedReset = DefaultCopiedReset
	}
	return &Converter{
		device:      cfg.Device,
		scheduler:   cfg.Scheduler,
		sink:        cfg.FrameSink,
		copiedReset: cfg.CopiedReset,
		newTimer:    afterFunc,
		clipboard:   cfg.Clipboard,
		constraints: cfg.Constraints,
		analyzerCfg: cfg.Analyzer,
		style:       cfg.Style,
		provider:    cfg.Provider,
		language:    cfg.Language,
		autoStop:    cfg.AutoStop,
		state:       types.StateIdle,
		gen:         1,
		transcripts: make(chan types.Transcript, 10),
		states:      make(chan types.StateChange, 10),
		copiedCh:    make(chan bool, 10),
		errs:        make(chan error, 10),
	}, nil
}

// SetProvider sets the recognition provider for subsequent sessions.
func (c *Converter) SetProvider(p recognizer.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = p
}

// SetLanguage sets the recognition language hint for subsequent
// sessions.
func (c *Converter) SetLanguage(lang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = lang
}

// SetAutoStop updates the inactivity window. Zero disables it. The
// change applies from the next timer arm.
func (c *Converter) SetAutoStop(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoStop = d
}

// SetStyle updates the waveform stroke style for subsequent sessions.
func (c *Converter) SetStyle(s waveform.Style) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.style = s
}

// SetCanvasSize pushes the canvas dimensions from the shell. A live
// renderer picks them up immediately.
func (c *Converter) SetCanvasSize(width, height float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = width
	c.height = height
	if c.renderer != nil {
		c.renderer.SetSize(width, height)
	}
}

// Start acquires the microphone and begins a recording session: the
// analysis node is fed from the stream, the frame loop starts, and a
// recognition session opens when a provider is available. On any
// acquisition failure the converter stays idle with nothing held. A
// grant that resolves after Stop or Close is disposed and ignored.
func (c *Converter) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == types.StateRecording || c.starting {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	c.starting = true
	gen := c.gen
	device := c.device
	constraints := c.constraints
	provider := c.provider
	language := c.language
	anCfg := c.analyzerCfg
	style := c.style
	width, height := c.width, c.height
	c.mu.Unlock()

	stream, err := device.Acquire(ctx, constraints)
	if err != nil {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
		slog.Error("acquire microphone", "error", err)
		return fmt.Errorf("acquire microphone: %w", err)
	}

	an, err := analyzer.New(anCfg)
	if err != nil {
		stream.Close()
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
		return fmt.Errorf("create analyzer: %w", err)
	}

	session, providerName := c.newSession(ctx, provider, language, stream.SampleRate())

	if err := stream.OnSamples(func(samples []float32) {
		an.Feed(samples)
		if session != nil {
			session.WriteSamples(samples)
		}
	}); err != nil {
		if session != nil {
			session.Stop()
		}
		stream.Close()
		an.Close()
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
		return fmt.Errorf("subscribe capture: %w", err)
	}

	sid := uuid.NewString()
	r := waveform.NewRenderer(an, style)
	if width > 0 && height > 0 {
		r.SetSize(width, height)
	}

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.starting = false
		c.mu.Unlock()
		// The grant resolved after a stop or teardown. Dispose it,
		// store nothing.
		if session != nil {
			session.Stop()
		}
		stream.Close()
		an.Close()
		slog.Info("late capture stream disposed")
		return nil
	}

	cancel := waveform.Loop(c.scheduler, r, c.sink)
	var relayDone chan struct{}
	if session != nil {
		relayDone = make(chan struct{})
		go c.relay(gen, session, relayDone)
	}

	c.stream = stream
	c.analyzer = an
	c.renderer = r
	c.cancelRender = cancel
	c.session = session
	c.relayDone = relayDone
	c.providerName = providerName
	c.sessionID = sid
	c.state = types.StateRecording
	c.startedAt = time.Now()
	c.starting = false
	c.armInactivityLocked(gen)
	c.sendStateLocked(types.StateRecording, types.ReasonUser)
	c.mu.Unlock()

	slog.Info("recording started",
		"session", sid,
		"provider", providerName,
		"sample_rate", stream.SampleRate())
	return nil
}

// newSession opens a recognition session, or returns nil when no
// provider can serve one. Capture and waveform run either way.
func (c *Converter) newSession(ctx context.Context, p recognizer.Provider, language string, sampleRate int) (recognizer.Session, string) {
	if p == nil || !p.Available() {
		slog.Info("no recognition provider, capture only")
		return nil, ""
	}
	s, err := p.NewSession(recognizer.SessionConfig{
		Language:       language,
		Continuous:     true,
		InterimResults: true,
		SampleRate:     sampleRate,
	})
	if err != nil {
		slog.Warn("open recognition session", "provider", p.Name(), "error", err)
		return nil, ""
	}
	if err := s.Start(ctx); err != nil {
		slog.Warn("start recognition session", "provider", p.Name(), "error", err)
		s.Stop()
		return nil, ""
	}
	return s, p.Name()
}

// Stop ends the active session: recognition stops and flushes, the
// frame loop cancels, capture closes, and a final clear frame goes to
// the sink. Stopping an idle converter is a no-op, except that it
// abandons a still-pending microphone acquisition.
func (c *Converter) Stop() error {
	c.stop(0, types.ReasonUser)
	return nil
}

// Toggle starts when idle and stops otherwise. A second toggle while
// the microphone grant is still pending cancels the pending start.
func (c *Converter) Toggle(ctx context.Context) error {
	c.mu.Lock()
	active := c.state == types.StateRecording || c.starting
	c.mu.Unlock()
	if active {
		return c.Stop()
	}
	return c.Start(ctx)
}

// stop ends the active session. A nonzero want restricts the stop to
// that generation so a stale timer or relay cannot end a newer
// session. reason is carried on the emitted state change.
func (c *Converter) stop(want uint64, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if want != 0 && want != c.gen {
		c.mu.Unlock()
		return
	}
	if c.state != types.StateRecording {
		// Abandon a pending acquisition by advancing the generation;
		// the late stream is disposed where it resolves.
		if c.starting && want == 0 {
			c.gen++
		}
		c.mu.Unlock()
		return
	}
	h := c.releaseLocked()
	c.state = types.StateIdle
	sid := c.sessionID
	c.sendStateLocked(types.StateIdle, reason)
	c.mu.Unlock()

	h.shutdown()
	if h.renderer != nil {
		c.sink(h.renderer.ClearFrame())
	}
	slog.Info("recording stopped",
		"session", sid,
		"reason", reason,
		"duration", h.duration)
}

// Close tears the converter down, mid-recording or not, and closes the
// event channels. Further Start calls return ErrClosed.
func (c *Converter) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasRecording := c.state == types.StateRecording
	var h handles
	if wasRecording {
		h = c.releaseLocked()
		c.state = types.StateIdle
	} else {
		c.gen++
	}
	if c.copiedTmr != nil {
		c.copiedTmr.Stop()
		c.copiedTmr = nil
	}
	c.mu.Unlock()

	h.shutdown()

	c.mu.Lock()
	if wasRecording {
		c.sendStateLocked(types.StateIdle, types.ReasonShutdown)
	}
	close(c.transcripts)
	close(c.states)
	close(c.copiedCh)
	close(c.errs)
	c.mu.Unlock()

	if wasRecording && h.renderer != nil {
		c.sink(h.renderer.ClearFrame())
	}
	return nil
}

// handles collects per-session resources so they can be released
// outside the converter lock.
type handles struct {
	session   recognizer.Session
	relayDone chan struct{}
	cancel    func()
	stream    audiocapture.Stream
	analyzer  *analyzer.Analyzer
	renderer  *waveform.Renderer
	duration  time.Duration
}

func (c *Converter) releaseLocked() handles {
	h := handles{
		session:   c.session,
		relayDone: c.relayDone,
		cancel:    c.cancelRender,
		stream:    c.stream,
		analyzer:  c.analyzer,
		renderer:  c.renderer,
		duration:  time.Since(c.startedAt),
	}
	c.session = nil
	c.relayDone = nil
	c.cancelRender = nil
	c.stream = nil
	c.analyzer = nil
	c.renderer = nil
	c.providerName = ""
	c.lastDuration = h.duration
	if c.inactivity != nil {
		c.inactivity.Stop()
		c.inactivity = nil
	}
	c.gen++
	return h
}

// shutdown releases session resources in dependency order: recognition
// first so its final flush drains, then the frame loop, then capture.
// Fields are nil-checked so a partial build tears down the same way.
func (h handles) shutdown() {
	if h.session != nil {
		if err := h.session.Stop(); err != nil {
			slog.Error("stop recognition session", "error", err)
		}
	}
	if h.relayDone != nil {
		<-h.relayDone
	}
	if h.cancel != nil {
		h.cancel()
	}
	if h.stream != nil {
		if err := h.stream.Close(); err != nil {
			slog.Error("close capture stream", "error", err)
		}
	}
	if h.analyzer != nil {
		h.analyzer.Close()
	}
}

// relay applies recognition results for one session generation. Each
// result replaces the transcript wholesale with the concatenation of
// every segment so far and re-arms the inactivity timer. Results
// arriving for a stale generation are drained so the session can flush
// and close, but no longer touch the transcript.
func (c *Converter) relay(gen uint64, session recognizer.Session, done chan struct{}) {
	defer close(done)
	for res := range session.Results() {
		if res.Err != nil {
			slog.Error("recognition", "error", res.Err)
			c.emitError(res.Err)
			continue
		}
		text := res.Text()
		interim := res.Interim()

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			continue
		}
		c.transcript = text
		c.armInactivityLocked(gen)
		select {
		case c.transcripts <- types.Transcript{Text: text, Interim: interim}:
		default:
		}
		c.mu.Unlock()
	}

	// The results channel closed. If this generation is still current
	// the backend ended on its own; stop from a fresh goroutine so this
	// one can signal done first.
	go c.stop(gen, types.ReasonError)
}

// armInactivityLocked replaces the inactivity timer for gen. Caller
// holds c.mu.
func (c *Converter) armInactivityLocked(gen uint64) {
	if c.autoStop <= 0 {
		return
	}
	if c.inactivity != nil {
		c.inactivity.Stop()
	}
	c.inactivity = c.newTimer(c.autoStop, func() {
		c.stop(gen, types.ReasonTimeout)
	})
}

// Transcript returns the current transcript text.
func (c *Converter) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// SetTranscript overwrites the transcript, recording or not. Direct
// edits emit no transcript event; the editor already shows them. A
// later recognition result replaces the whole field again.
func (c *Converter) SetTranscript(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = text
}

// Copy writes the transcript to the clipboard. On success the copied
// flag goes up and is scheduled back down after the reset window; a
// re-copy replaces the pending reset rather than stacking another. On
// failure the flag is untouched.
func (c *Converter) Copy() error {
	c.mu.Lock()
	text := c.transcript
	cb := c.clipboard
	c.mu.Unlock()

	if cb == nil {
		slog.Error("copy transcript", "error", ErrNoClipboard)
		return ErrNoClipboard
	}
	if err := cb.WriteText(text); err != nil {
		slog.Error("copy transcript", "error", err)
		return fmt.Errorf("copy transcript: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.copied = true
	c.copySeq++
	seq := c.copySeq
	if c.copiedTmr != nil {
		c.copiedTmr.Stop()
	}
	c.copiedTmr = c.newTimer(c.copiedReset, func() {
		c.resetCopied(seq)
	})
	c.sendCopiedLocked(true)
	c.mu.Unlock()
	return nil
}

// resetCopied lowers the copied flag for one copy sequence. A reset
// whose copy has been superseded does nothing.
func (c *Converter) resetCopied(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.copySeq || !c.copied {
		c.mu.Unlock()
		return
	}
	c.copied = false
	c.copiedTmr = nil
	c.sendCopiedLocked(false)
	c.mu.Unlock()
}

// State returns the current recording state.
func (c *Converter) State() types.RecordingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Copied reports whether a copy happened within the reset window.
func (c *Converter) Copied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copied
}

// Status returns a snapshot for UI chrome. The language field is left
// empty; transcript language detection lives upstream in the shell.
func (c *Converter) Status() types.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	dur := c.lastDuration
	if c.state == types.StateRecording {
		dur = time.Since(c.startedAt)
	}
	return types.Status{
		Recording:       c.state == types.StateRecording,
		Copied:          c.copied,
		Provider:        c.providerName,
		TranscriptChars: utf8.RuneCountInString(c.transcript),
		DurationMs:      dur.Milliseconds(),
	}
}

// Transcripts returns the transcript event stream. Each event carries
// the full replacement text.
func (c *Converter) Transcripts() <-chan types.Transcript {
	return c.transcripts
}

// States returns the recording state change stream.
func (c *Converter) States() <-chan types.StateChange {
	return c.states
}

// CopiedChanges returns the copied flag change stream.
func (c *Converter) CopiedChanges() <-chan bool {
	return c.copiedCh
}

// Errors returns the recognition error stream.
func (c *Converter) Errors() <-chan error {
	return c.errs
}

// sendStateLocked delivers a state change without blocking. Caller
// holds c.mu, which keeps event order matching transition order.
func (c *Converter) sendStateLocked(state types.RecordingState, reason string) {
	select {
	case c.states <- types.StateChange{State: state, Reason: reason}:
	default:
	}
}

func (c *Converter) sendCopiedLocked(v bool) {
	select {
	case c.copiedCh <- v:
	default:
	}
}

func (c *Converter) emitError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.errs <- err:
	default:
	}
}
