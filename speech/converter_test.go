package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voicepadhq/voicepad/audiocapture"
	"github.com/voicepadhq/voicepad/internal/types"
	"github.com/voicepadhq/voicepad/recognizer"
	"github.com/voicepadhq/voicepad/waveform"
)

func TestConverterReplacesTranscriptWholesale(t *testing.T) {
	session := newFakeSession()
	provider := &fakeProvider{available: true, sessions: []*fakeSession{session}}
	c, _ := newTestConverter(t, Config{
		Device:    newFakeDevice(newFakeStream()),
		Clipboard: &fakeClipboard{},
		Scheduler: &fakeScheduler{},
		Provider:  provider,
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c)

	session.push(recognizer.Segment{Text: "Hello "})
	tr := waitTranscript(t, c)
	if tr.Text != "Hello " || !tr.Interim {
		t.Fatalf("first result = %+v, want interim %q", tr, "Hello ")
	}

	session.push(recognizer.Segment{Text: "Hello world", Final: true})
	tr = waitTranscript(t, c)
	if tr.Text != "Hello world" || tr.Interim {
		t.Fatalf("second result = %+v, want final %q", tr, "Hello world")
	}
	if got := c.Transcript(); got != "Hello world" {
		t.Fatalf("Transcript() = %q, want %q", got, "Hello world")
	}

	// A user edit holds only until the next recognition result.
	c.SetTranscript("my own words")
	if got := c.Transcript(); got != "my own words" {
		t.Fatalf("after edit Transcript() = %q", got)
	}
	session.push(recognizer.Segment{Text: "Hello world.", Final: true})
	tr = waitTranscript(t, c)
	if tr.Text != "Hello world." {
		t.Fatalf("result after edit = %q, want %q", tr.Text, "Hello world.")
	}
	if got := c.Transcript(); got != "Hello world." {
		t.Fatalf("Transcript() after overwrite = %q", got)
	}
}

func TestConverterStartStopReleasesEverything(t *testing.T) {
	stream := newFakeStream()
	session := newFakeSession()
	provider := &fakeProvider{available: true, sessions: []*fakeSession{session}}
	sched := &fakeScheduler{}
	frames := &frameLog{}
	c, _ := newTestConverter(t, Config{
		Device:    newFakeDevice(stream),
		Clipboard: &fakeClipboard{},
		Scheduler: sched,
		Provider:  provider,
		FrameSink: frames.add,
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sc := waitState(t, c)
	if sc.State != types.StateRecording {
		t.Fatalf("state change = %+v, want recording", sc)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start = %v, want ErrAlreadyRecording", err)
	}
	if n := sched.activeLoops(); n != 1 {
		t.Fatalf("active render loops = %d, want 1", n)
	}

	// Samples fan out to both the analyzer and the recognition session.
	stream.push(make([]float32, 2048))
	if n := session.writtenSamples(); n != 2048 {
		t.Fatalf("session received %d samples, want 2048", n)
	}
	c.SetCanvasSize(800, 200)
	sched.tick()
	f := frames.last()
	if f.Path == nil {
		t.Fatal("frame while recording has no path")
	}
	if f.Width != 800 || f.Height != 200 {
		t.Fatalf("frame size = %gx%g, want 800x200", f.Width, f.Height)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	sc = waitState(t, c)
	if sc.State != types.StateIdle || sc.Reason != types.ReasonUser {
		t.Fatalf("state change = %+v, want idle/user", sc)
	}
	if n := sched.activeLoops(); n != 0 {
		t.Fatalf("active render loops after stop = %d, want 0", n)
	}
	if !stream.isClosed() {
		t.Fatal("capture stream not closed")
	}
	if !session.isStopped() {
		t.Fatal("recognition session not stopped")
	}
	if f := frames.last(); f.Path != nil {
		t.Fatal("final frame should be clear-only")
	}

	// Double stop is a no-op.
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	select {
	case sc := <-c.States():
		t.Fatalf("unexpected state change %+v after double stop", sc)
	default:
	}
}

func TestConverterCopiedFlag(t *testing.T) {
	clip := &fakeClipboard{}
	c, tcl := newTestConverter(t, Config{
		Device:    newFakeDevice(newFakeStream()),
		Clipboard: clip,
	})

	c.SetTranscript("hello world")
	if err := c.Copy(); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got := clip.last(); got != "hello world" {
		t.Fatalf("clipboard = %q, want %q", got, "hello world")
	}
	if !c.Copied() {
		t.Fatal("copied flag not set after copy")
	}
	if got := waitCopied(t, c); !got {
		t.Fatal("copied event = false, want true")
	}

	tmr := tcl.timer(0)
	if tmr == nil {
		t.Fatal("no reset timer armed")
	}
	if tmr.d != DefaultCopiedReset {
		t.Fatalf("reset delay = %v, want %v", tmr.d, DefaultCopiedReset)
	}
	tmr.fire()
	if c.Copied() {
		t.Fatal("copied flag still set after reset fired")
	}
	if got := waitCopied(t, c); got {
		t.Fatal("copied event = true, want false")
	}
}

func TestConverterCopyFailure(t *testing.T) {
	denied := errors.New("pasteboard denied")
	clip := &fakeClipboard{err: denied}
	c, tcl := newTestConverter(t, Config{
		Device:    newFakeDevice(newFakeStream()),
		Clipboard: clip,
	})

	c.SetTranscript("text")
	if err := c.Copy(); !errors.Is(err, denied) {
		t.Fatalf("Copy = %v, want wrapped %v", err, denied)
	}
	if c.Copied() {
		t.Fatal("copied flag set after failed copy")
	}
	if n := tcl.count(); n != 0 {
		t.Fatalf("%d timers armed after failed copy, want 0", n)
	}
	select {
	case v := <-c.CopiedChanges():
		t.Fatalf("unexpected copied event %v", v)
	default:
	}

	noClip, _ := newTestConverter(t, Config{Device: newFakeDevice(newFakeStream())})
	if err := noClip.Copy(); !errors.Is(err, ErrNoClipboard) {
		t.Fatalf("Copy without clipboard = %v, want ErrNoClipboard", err)
	}
}

func TestConverterRecopyReplacesResetTimer(t *testing.T) {
	c, tcl := newTestConverter(t, Config{
		Device:    newFakeDevice(newFakeStream()),
		Clipboard: &fakeClipboard{},
	})

	c.SetTranscript("one")
	if err := c.Copy(); err != nil {
		t.Fatalf("first Copy: %v", err)
	}
	if err := c.Copy(); err != nil {
		t.Fatalf("second Copy: %v", err)
	}
	if !tcl.timer(0).isStopped() {
		t.Fatal("first reset timer was not replaced")
	}

	// A first reset that was already in flight when the second copy
	// landed must not lower the fresh flag.
	tcl.timer(0).fireStale()
	if !c.Copied() {
		t.Fatal("stale reset lowered the copied flag")
	}
	tcl.timer(1).fire()
	if c.Copied() {
		t.Fatal("copied flag still set after current reset")
	}
}

func TestConverterInactivityAutoStop(t *testing.T) {
	stream := newFakeStream()
	session := newFakeSession()
	provider := &fakeProvider{available: true, sessions: []*fakeSession{session}}
	sched := &fakeScheduler{}
	c, tcl := newTestConverter(t, Config{
		Device:    newFakeDevice(stream),
		Clipboard: &fakeClipboard{},
		Scheduler: sched,
		Provider:  provider,
		AutoStop:  DefaultAutoStop,
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c)
	if n := tcl.count(); n != 1 {
		t.Fatalf("%d timers after start, want 1", n)
	}
	if d := tcl.timer(0).d; d != DefaultAutoStop {
		t.Fatalf("inactivity window = %v, want %v", d, DefaultAutoStop)
	}

	// Every recognition result replaces the pending timer.
	session.push(recognizer.Segment{Text: "still talking"})
	waitTranscript(t, c)
	if n := tcl.count(); n != 2 {
		t.Fatalf("%d timers after result, want 2", n)
	}
	if !tcl.timer(0).isStopped() {
		t.Fatal("previous inactivity timer not replaced")
	}

	tcl.timer(1).fire()
	sc := waitState(t, c)
	if sc.State != types.StateIdle || sc.Reason != types.ReasonTimeout {
		t.Fatalf("state change = %+v, want idle/timeout", sc)
	}
	if !stream.isClosed() {
		t.Fatal("capture stream not closed after timeout")
	}
	if !session.isStopped() {
		t.Fatal("session not stopped after timeout")
	}
	if n := sched.activeLoops(); n != 0 {
		t.Fatalf("active render loops after timeout = %d, want 0", n)
	}
}

func TestConverterStaleAutoStopIgnoresNewSession(t *testing.T) {
	s1, s2 := newFakeSession(), newFakeSession()
	provider := &fakeProvider{available: true, sessions: []*fakeSession{s1, s2}}
	c, tcl := newTestConverter(t, Config{
		Device:    newFakeDevice(newFakeStream(), newFakeStream()),
		Clipboard: &fakeClipboard{},
		Scheduler: &fakeScheduler{},
		Provider:  provider,
		AutoStop:  DefaultAutoStop,
	})

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	waitState(t, c)
	c.Stop()
	waitState(t, c)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	waitState(t, c)

	// A timeout from the first session that fires during the second
	// must not end it.
	tcl.timer(0).fireStale()
	if got := c.State(); got != types.StateRecording {
		t.Fatalf("state after stale timeout = %v, want recording", got)
	}

	tcl.timer(1).fire()
	sc := waitState(t, c)
	if sc.State != types.StateIdle || sc.Reason != types.ReasonTimeout {
		t.Fatalf("state change = %+v, want idle/timeout", sc)
	}
}

func TestConverterMicRejectedStaysIdle(t *testing.T) {
	denied := errors.New("permission denied")
	device := newFakeDevice()
	device.err = denied
	sched := &fakeScheduler{}
	c, tcl := newTestConverter(t, Config{
		Device:    device,
		Clipboard: &fakeClipboard{},
		Scheduler: sched,
		AutoStop:  DefaultAutoStop,
	})

	if err := c.Start(context.Background()); !errors.Is(err, denied) {
		t.Fatalf("Start = %v, want wrapped %v", err, denied)
	}
	if got := c.State(); got != types.StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if n := sched.activeLoops(); n != 0 {
		t.Fatalf("active render loops = %d, want 0", n)
	}
	if n := tcl.count(); n != 0 {
		t.Fatalf("%d timers armed, want 0", n)
	}
	select {
	case sc := <-c.States():
		t.Fatalf("unexpected state change %+v", sc)
	default:
	}
}

func TestConverterLateGrantDisposed(t *testing.T) {
	stream := newFakeStream()
	device := newFakeDevice(stream)
	device.gate = make(chan struct{})
	device.entered = make(chan struct{})
	sched := &fakeScheduler{}
	c, _ := newTestConverter(t, Config{
		Device:    device,
		Clipboard: &fakeClipboard{},
		Scheduler: sched,
	})

	errc := make(chan error, 1)
	go func() { errc <- c.Start(context.Background()) }()
	<-device.entered

	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("concurrent Start = %v, want ErrAlreadyRecording", err)
	}

	// The user gives up before the platform answers.
	c.Stop()
	close(device.gate)

	if err := <-errc; err != nil {
		t.Fatalf("late Start = %v, want nil", err)
	}
	if !stream.isClosed() {
		t.Fatal("late stream not disposed")
	}
	if got := c.State(); got != types.StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if n := sched.activeLoops(); n != 0 {
		t.Fatalf("active render loops = %d, want 0", n)
	}
	select {
	case sc := <-c.States():
		t.Fatalf("unexpected state change %+v", sc)
	default:
	}

	// The converter still records afterwards.
	device.addStream(newFakeStream())
	device.clearGate()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start after abandoned grant: %v", err)
	}
	sc := waitState(t, c)
	if sc.State != types.StateRecording {
		t.Fatalf("state change = %+v, want recording", sc)
	}
}

func TestConverterDegradedWithoutRecognition(t *testing.T) {
	tests := []struct {
		name     string
		provider recognizer.Provider
	}{
		{"no provider", nil},
		{"unavailable provider", &fakeProvider{available: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := newFakeStream()
			c, _ := newTestConverter(t, Config{
				Device:    newFakeDevice(stream),
				Clipboard: &fakeClipboard{},
				Scheduler: &fakeScheduler{},
				Provider:  tt.provider,
			})

			if err := c.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitState(t, c)

			// Capture keeps flowing with nothing to recognize.
			stream.push(make([]float32, 1024))
			if st := c.Status(); st.Provider != "" {
				t.Fatalf("status provider = %q, want empty", st.Provider)
			}

			c.SetTranscript("typed by hand")
			if got := c.Transcript(); got != "typed by hand" {
				t.Fatalf("Transcript() = %q", got)
			}
			if err := c.Stop(); err != nil {
				t.Fatalf("Stop: %v", err)
			}
		})
	}
}

func TestConverterSessionDeathEndsRecording(t *testing.T) {
	stream := newFakeStream()
	session := newFakeSession()
	provider := &fakeProvider{available: true, sessions: []*fakeSession{session}}
	sched := &fakeScheduler{}
	c, _ := newTestConverter(t, Config{
		Device:    newFakeDevice(stream),
		Clipboard: &fakeClipboard{},
		Scheduler: sched,
		Provider:  provider,
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c)
	session.push(recognizer.Segment{Text: "partial"})
	waitTranscript(t, c)

	session.kill()
	sc := waitState(t, c)
	if sc.State != types.StateIdle || sc.Reason != types.ReasonError {
		t.Fatalf("state change = %+v, want idle/error", sc)
	}
	waitFor(t, "capture stream closed", stream.isClosed)
	waitFor(t, "render loop cancelled", func() bool { return sched.activeLoops() == 0 })
}

func TestConverterCloseMidRecording(t *testing.T) {
	stream := newFakeStream()
	session := newFakeSession()
	provider := &fakeProvider{available: true, sessions: []*fakeSession{session}}
	sched := &fakeScheduler{}
	c, _ := newTestConverter(t, Config{
		Device:    newFakeDevice(stream),
		Clipboard: &fakeClipboard{},
		Scheduler: sched,
		Provider:  provider,
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	sc := waitState(t, c)
	if sc.State != types.StateIdle || sc.Reason != types.ReasonShutdown {
		t.Fatalf("state change = %+v, want idle/shutdown", sc)
	}
	if _, ok := <-c.States(); ok {
		t.Fatal("states channel still open after close")
	}
	if _, ok := <-c.Transcripts(); ok {
		t.Fatal("transcripts channel still open after close")
	}
	if !stream.isClosed() {
		t.Fatal("capture stream not closed")
	}
	if !session.isStopped() {
		t.Fatal("session not stopped")
	}
	if n := sched.activeLoops(); n != 0 {
		t.Fatalf("active render loops = %d, want 0", n)
	}

	if err := c.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestConverterToggle(t *testing.T) {
	c, _ := newTestConverter(t, Config{
		Device:    newFakeDevice(newFakeStream()),
		Clipboard: &fakeClipboard{},
		Scheduler: &fakeScheduler{},
	})

	ctx := context.Background()
	if err := c.Toggle(ctx); err != nil {
		t.Fatalf("first Toggle: %v", err)
	}
	if got := c.State(); got != types.StateRecording {
		t.Fatalf("state after first toggle = %v, want recording", got)
	}
	if err := c.Toggle(ctx); err != nil {
		t.Fatalf("second Toggle: %v", err)
	}
	if got := c.State(); got != types.StateIdle {
		t.Fatalf("state after second toggle = %v, want idle", got)
	}
}

func TestConverterStatus(t *testing.T) {
	session := newFakeSession()
	provider := &fakeProvider{available: true, sessions: []*fakeSession{session}}
	c, _ := newTestConverter(t, Config{
		Device:    newFakeDevice(newFakeStream()),
		Clipboard: &fakeClipboard{},
		Scheduler: &fakeScheduler{},
		Provider:  provider,
	})

	st := c.Status()
	if st.Recording || st.Copied || st.Provider != "" || st.TranscriptChars != 0 {
		t.Fatalf("idle status = %+v", st)
	}

	c.SetTranscript("héllo")
	if st := c.Status(); st.TranscriptChars != 5 {
		t.Fatalf("TranscriptChars = %d, want 5 runes", st.TranscriptChars)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c)
	st = c.Status()
	if !st.Recording || st.Provider != "fake" {
		t.Fatalf("recording status = %+v", st)
	}

	c.Stop()
	st = c.Status()
	if st.Recording || st.Provider != "" {
		t.Fatalf("stopped status = %+v", st)
	}
}

// newTestConverter builds a converter with fake timers injected.
func newTestConverter(t *testing.T, cfg Config) (*Converter, *timeControl) {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tcl := &timeControl{}
	c.newTimer = tcl.newTimer
	t.Cleanup(func() { c.Close() })
	return c, tcl
}

func waitState(t *testing.T, c *Converter) types.StateChange {
	t.Helper()
	select {
	case sc, ok := <-c.States():
		if !ok {
			t.Fatal("states channel closed")
		}
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state change")
	}
	return types.StateChange{}
}

func waitTranscript(t *testing.T, c *Converter) types.Transcript {
	t.Helper()
	select {
	case tr, ok := <-c.Transcripts():
		if !ok {
			t.Fatal("transcripts channel closed")
		}
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript")
	}
	return types.Transcript{}
}

func waitCopied(t *testing.T, c *Converter) bool {
	t.Helper()
	select {
	case v, ok := <-c.CopiedChanges():
		if !ok {
			t.Fatal("copied channel closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for copied change")
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeDevice struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	gate    chan struct{} // when set, Acquire blocks until closed
	entered chan struct{} // when set, closed once Acquire is reached
}

func newFakeDevice(streams ...*fakeStream) *fakeDevice {
	return &fakeDevice{streams: streams}
}

func (d *fakeDevice) Acquire(ctx context.Context, _ audiocapture.Constraints) (audiocapture.Stream, error) {
	d.mu.Lock()
	if d.entered != nil {
		close(d.entered)
		d.entered = nil
	}
	gate, err := d.gate, d.err
	var s *fakeStream
	if err == nil {
		if len(d.streams) == 0 {
			d.mu.Unlock()
			return nil, errors.New("no stream configured")
		}
		s = d.streams[0]
		d.streams = d.streams[1:]
	}
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d *fakeDevice) addStream(s *fakeStream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streams = append(d.streams, s)
}

func (d *fakeDevice) clearGate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = nil
}

type fakeStream struct {
	mu      sync.Mutex
	handler func([]float32)
	closed  bool
}

func newFakeStream() *fakeStream { return &fakeStream{} }

func (s *fakeStream) OnSamples(fn func([]float32)) error {
	if fn == nil {
		return audiocapture.ErrNilHandler
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audiocapture.ErrClosed
	}
	s.handler = fn
	return nil
}

func (s *fakeStream) SampleRate() int { return 48000 }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeStream) push(samples []float32) {
	s.mu.Lock()
	fn := s.handler
	closed := s.closed
	s.mu.Unlock()
	if fn != nil && !closed {
		fn(samples)
	}
}

type fakeClipboard struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeClipboard) WriteText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeClipboard) ReadText() (string, error) {
	return f.last(), nil
}

func (f *fakeClipboard) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeScheduler struct {
	mu     sync.Mutex
	fn     func()
	active int
}

func (s *fakeScheduler) Start(fn func()) func() {
	s.mu.Lock()
	s.fn = fn
	s.active++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.active--
			s.mu.Unlock()
		})
	}
}

func (s *fakeScheduler) activeLoops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *fakeScheduler) tick() {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type frameLog struct {
	mu     sync.Mutex
	frames []waveform.Frame
}

func (l *frameLog) add(f waveform.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, f)
}

func (l *frameLog) last() waveform.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.frames) == 0 {
		return waveform.Frame{}
	}
	return l.frames[len(l.frames)-1]
}

type fakeProvider struct {
	mu        sync.Mutex
	sessions  []*fakeSession
	available bool
}

func (p *fakeProvider) Name() string        { return "fake" }
func (p *fakeProvider) DisplayName() string { return "Fake" }
func (p *fakeProvider) Available() bool     { return p.available }

func (p *fakeProvider) NewSession(recognizer.SessionConfig) (recognizer.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil, errors.New("no session configured")
	}
	s := p.sessions[0]
	p.sessions = p.sessions[1:]
	return s, nil
}

type fakeSession struct {
	closeOnce sync.Once
	results   chan recognizer.Result

	mu      sync.Mutex
	stopped bool
	written int
}

func newFakeSession() *fakeSession {
	return &fakeSession{results: make(chan recognizer.Result, 16)}
}

func (s *fakeSession) Start(context.Context) error { return nil }

func (s *fakeSession) WriteSamples(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written += len(samples)
}

func (s *fakeSession) Results() <-chan recognizer.Result { return s.results }

func (s *fakeSession) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.results) })
	return nil
}

// kill ends the session the way a dying backend would: the results
// channel closes without Stop being called.
func (s *fakeSession) kill() {
	s.closeOnce.Do(func() { close(s.results) })
}

func (s *fakeSession) push(segments ...recognizer.Segment) {
	s.results <- recognizer.Result{Segments: segments}
}

func (s *fakeSession) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *fakeSession) writtenSamples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.stopped
	t.stopped = true
	return !was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fire runs the callback unless the timer was stopped first.
func (t *fakeTimer) fire() {
	t.mu.Lock()
	stopped := t.stopped
	fn := t.fn
	t.mu.Unlock()
	if !stopped && fn != nil {
		fn()
	}
}

// fireStale runs the callback even after Stop, modeling a callback
// already in flight when Stop returned.
func (t *fakeTimer) fireStale() {
	t.mu.Lock()
	fn := t.fn
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// timeControl hands out fake timers so tests drive time by hand.
type timeControl struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (tc *timeControl) newTimer(d time.Duration, fn func()) timer {
	t := &fakeTimer{d: d, fn: fn}
	tc.mu.Lock()
	tc.timers = append(tc.timers, t)
	tc.mu.Unlock()
	return t
}

func (tc *timeControl) timer(i int) *fakeTimer {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if i < 0 || i >= len(tc.timers) {
		return nil
	}
	return tc.timers[i]
}

func (tc *timeControl) count() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.timers)
}
