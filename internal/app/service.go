package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/beeep"
	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/voicepadhq/voicepad/audiocapture"
	"github.com/voicepadhq/voicepad/clipboard"
	"github.com/voicepadhq/voicepad/config"
	"github.com/voicepadhq/voicepad/hotkey"
	"github.com/voicepadhq/voicepad/internal/types"
	"github.com/voicepadhq/voicepad/langdetect"
	"github.com/voicepadhq/voicepad/recognizer"
	"github.com/voicepadhq/voicepad/recognizer/openai"
	"github.com/voicepadhq/voicepad/speech"
	"github.com/voicepadhq/voicepad/waveform"
)

// Service provides application functionality bound to Wails.
// This struct focuses on orchestration; dictation logic lives in the
// speech converter.
type Service struct {
	converter *speech.Converter
	detector  *langdetect.Detector

	// UI references - set via Init
	app    *application.App
	window application.Window

	// mu guards cfg, registry, hotkey, and the last detection.
	mu       sync.RWMutex
	cfg      *config.Config
	registry *recognizer.Registry
	hotkey   *hotkey.Manager
	detected types.DetectResult

	notify  func(title, message string)
	version string
}

// New creates a new Service. Call Init() after the Wails app is created.
func New(version string) *Service {
	return &Service{
		version:  version,
		detector: langdetect.New(),
		notify: func(title, message string) {
			// Notification daemons can stall; never on the caller.
			go func() {
				if err := beeep.Notify(title, message, ""); err != nil {
					slog.Warn("desktop notification", "error", err)
				}
			}()
		},
	}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init wires the service to the Wails app and window. Must be called
// after the application is created and before any binding fires.
func (s *Service) Init(app *application.App, window application.Window) {
	s.app = app
	s.window = window

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		cfg = &config.Config{}
	}
	s.cfg = cfg
	s.registry = buildRegistry(cfg)

	s.setupConverter()
	s.rewireHotkey(cfg.Hotkey)
}

// Shutdown cleans up resources.
func (s *Service) Shutdown() {
	s.mu.Lock()
	hk := s.hotkey
	s.hotkey = nil
	s.mu.Unlock()
	if hk != nil {
		hk.Stop()
	}

	if s.converter != nil {
		if err := s.converter.Close(); err != nil {
			slog.Error("close converter", "error", err)
		}
	}
}

func (s *Service) setupConverter() {
	conv, err := speech.New(speech.Config{
		Device:      &audiocapture.PortAudioDevice{},
		Clipboard:   clipboard.NewSystem(),
		Constraints: s.cfg.Capture.Constraints(),
		Style:       s.cfg.Waveform.Style(),
		Scheduler:   waveform.TickScheduler{Interval: s.cfg.Waveform.FrameInterval()},
		FrameSink:   func(f waveform.Frame) { s.emit(EventWaveformFrame, f) },
		Provider:    s.registry.Pick(s.cfg.Recognizer.Provider),
		Language:    s.sessionLanguage(),
		AutoStop:    s.cfg.AutoStop(),
	})
	if err != nil {
		slog.Error("create converter", "error", err)
		return
	}
	s.converter = conv

	go s.forwardEvents(s.emit)
}

// buildRegistry registers every recognition backend that has a chance
// of working with the given configuration.
func buildRegistry(cfg *config.Config) *recognizer.Registry {
	reg := recognizer.NewRegistry()
	rc := cfg.Recognizer

	apple := recognizer.NewApple()
	reg.Register(apple)
	if !apple.Available() {
		slog.Info("system speech recognition unavailable")
	}

	if rc.OpenAI.APIKey != "" {
		reg.Register(openai.New(openai.Config{
			APIKey: rc.OpenAI.APIKey,
			Model:  rc.OpenAI.Model,
			Prompt: rc.OpenAI.Prompt,
		}))
	}

	if rc.Whisper.APIKey != "" || rc.Whisper.BaseURL != "" {
		reg.Register(recognizer.NewWhisperAPI(recognizer.WhisperAPIConfig{
			APIKey:  rc.Whisper.APIKey,
			BaseURL: rc.Whisper.BaseURL,
			Model:   rc.Whisper.Model,
		}))
	}

	reg.Register(recognizer.NewWhisperLocal(recognizer.WhisperLocalConfig{
		BinPath:   rc.WhisperLocal.BinPath,
		ModelPath: rc.WhisperLocal.ModelPath,
	}))

	if rc.StreamURL != "" {
		reg.Register(recognizer.NewStream(recognizer.StreamConfig{URL: rc.StreamURL}))
	}

	slog.Info("recognition providers initialized", "count", len(reg.List()))
	return reg
}

// forwardEvents pumps converter channels into webview events. Blocks
// until the converter closes its channels; run in a goroutine.
func (s *Service) forwardEvents(emit func(name string, data any)) {
	var wg sync.WaitGroup

	wg.Go(func() {
		for st := range s.converter.States() {
			s.handleState(st, emit)
		}
	})

	wg.Go(func() {
		for tr := range s.converter.Transcripts() {
			s.handleTranscript(tr, emit)
		}
	})

	wg.Go(func() {
		for copied := range s.converter.CopiedChanges() {
			emit(EventCopied, copied)
		}
	})

	wg.Go(func() {
		for err := range s.converter.Errors() {
			slog.Error("recording error", "error", err)
			emit(EventRecordingError, err.Error())
		}
	})

	wg.Wait()
}

func (s *Service) handleState(st types.StateChange, emit func(name string, data any)) {
	emit(EventRecordingState, st)
	if st.State == types.StateIdle && st.Reason == types.ReasonTimeout {
		s.notify("Voicepad", "Recording stopped: no speech detected")
	}
}

func (s *Service) handleTranscript(tr types.Transcript, emit func(name string, data any)) {
	emit(EventTranscript, tr)
	if tr.Interim || tr.Text == "" {
		return
	}

	code, name := s.detector.Detect(tr.Text)

	s.mu.Lock()
	s.detected = types.DetectResult{Code: code, Name: name}
	auto := s.cfg.Recognizer.Language == "auto"
	s.mu.Unlock()

	// An auto language hint follows the speaker.
	if auto && code != "auto" && s.converter != nil {
		s.converter.SetLanguage(code)
	}
}

// Toggle flips recording on or off.
func (s *Service) Toggle() error {
	if s.converter == nil {
		return fmt.Errorf("converter not initialized")
	}
	return s.converter.Toggle(context.Background())
}

// Start begins a recording session.
func (s *Service) Start() error {
	if s.converter == nil {
		return fmt.Errorf("converter not initialized")
	}
	return s.converter.Start(context.Background())
}

// Stop ends the active recording session.
func (s *Service) Stop() error {
	if s.converter == nil {
		return nil
	}
	return s.converter.Stop()
}

// Transcript returns the current transcript text.
func (s *Service) Transcript() string {
	if s.converter == nil {
		return ""
	}
	return s.converter.Transcript()
}

// SetTranscript replaces the transcript with edited text.
func (s *Service) SetTranscript(text string) {
	if s.converter != nil {
		s.converter.SetTranscript(text)
	}
}

// Copy puts the transcript on the clipboard.
func (s *Service) Copy() error {
	if s.converter == nil {
		return fmt.Errorf("converter not initialized")
	}
	return s.converter.Copy()
}

// SetCanvasSize tells the renderer the canvas dimensions in CSS pixels.
func (s *Service) SetCanvasSize(width, height float64) {
	if s.converter != nil {
		s.converter.SetCanvasSize(width, height)
	}
}

// Status reports a snapshot for UI chrome, including the last detected
// transcript language.
func (s *Service) Status() types.Status {
	if s.converter == nil {
		return types.Status{}
	}
	st := s.converter.Status()

	s.mu.RLock()
	if s.detected.Code != "" && s.detected.Code != "auto" {
		st.Language = s.detected.Code
	}
	s.mu.RUnlock()
	return st
}

// Settings returns the current configuration view.
func (s *Service) Settings() types.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return types.Settings{}
	}
	return s.cfg.Settings()
}

// UpdateSettings validates, persists, and applies a settings change.
func (s *Service) UpdateSettings(settings types.Settings) error {
	s.mu.Lock()
	if s.cfg == nil {
		s.mu.Unlock()
		return fmt.Errorf("config not loaded")
	}
	if err := s.cfg.ApplySettings(settings); err != nil {
		s.mu.Unlock()
		return err
	}
	s.registry = buildRegistry(s.cfg)
	auto := s.cfg.AutoStop()
	style := s.cfg.Waveform.Style()
	provider := s.registry.Pick(s.cfg.Recognizer.Provider)
	lang := s.languageLocked()
	chord := s.cfg.Hotkey
	s.mu.Unlock()

	if s.converter != nil {
		s.converter.SetAutoStop(auto)
		s.converter.SetStyle(style)
		s.converter.SetProvider(provider)
		s.converter.SetLanguage(lang)
	}
	s.rewireHotkey(chord)

	s.emit(EventSettingsChanged, s.Settings())
	return nil
}

// Providers lists the recognition backends for the settings UI.
func (s *Service) Providers() []types.ProviderInfo {
	s.mu.RLock()
	reg := s.registry
	s.mu.RUnlock()
	if reg == nil {
		return nil
	}

	providers := reg.List()
	out := make([]types.ProviderInfo, len(providers))
	for i, p := range providers {
		out[i] = types.ProviderInfo{
			Name:        p.Name(),
			DisplayName: p.DisplayName(),
			Available:   p.Available(),
		}
	}
	return out
}

// DetectLanguage classifies the given text.
func (s *Service) DetectLanguage(text string) types.DetectResult {
	code, name := s.detector.Detect(text)
	return types.DetectResult{Code: code, Name: name}
}

// ShowWindow brings the pad to the front.
func (s *Service) ShowWindow() {
	if s.window != nil {
		s.window.Show()
		s.window.Focus()
	}
}

// sessionLanguage resolves the configured language to a session hint.
func (s *Service) sessionLanguage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.languageLocked()
}

// languageLocked maps "auto" to the last detected language, or to the
// provider default when nothing has been detected yet. Caller holds mu.
func (s *Service) languageLocked() string {
	lang := s.cfg.Recognizer.Language
	if lang != "auto" {
		return lang
	}
	if s.detected.Code != "" && s.detected.Code != "auto" {
		return s.detected.Code
	}
	return ""
}

// rewireHotkey replaces the global chord registration. An empty chord
// disables the hotkey.
func (s *Service) rewireHotkey(chord string) {
	s.mu.Lock()
	old := s.hotkey
	s.hotkey = nil
	s.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	if chord == "" {
		return
	}

	m := hotkey.NewManager()
	if err := m.Start(chord, s.toggleFromHotkey); err != nil {
		slog.Error("start hotkey", "error", err)
		return
	}
	s.mu.Lock()
	s.hotkey = m
	s.mu.Unlock()
}

func (s *Service) toggleFromHotkey() {
	if err := s.Toggle(); err != nil {
		slog.Error("hotkey toggle", "error", err)
	}
}

// emit is a safe wrapper around app.Event.Emit
func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}
