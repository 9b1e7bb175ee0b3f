// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/voicepadhq/voicepad/audiocapture"
	"github.com/voicepadhq/voicepad/internal/types"
	"github.com/voicepadhq/voicepad/waveform"
)

const (
	appName        = "voicepad"
	configFileName = "config.json"
)

// DefaultAutoStopMs is the inactivity timeout applied when the config
// file does not set one.
const DefaultAutoStopMs = 15000

// Canvas layouts.
const (
	LayoutOverlay = "overlay"
	LayoutInline  = "inline"
)

// Config represents the application configuration.
type Config struct {
	// Legacy field (deprecated, kept for migration)
	Variant string `json:"variant,omitempty"`

	Capture      Capture    `json:"capture"`
	AutoStopMs   *int       `json:"autoStopMs,omitempty"`
	CanvasLayout string     `json:"canvasLayout"`
	Waveform     Waveform   `json:"waveform"`
	Recognizer   Recognizer `json:"recognizer"`
	Hotkey       string     `json:"hotkey,omitempty"`

	path string
}

// Capture configures microphone acquisition. Absent fields fall back
// to the capture defaults, so the booleans are pointers.
type Capture struct {
	SampleRate       int   `json:"sampleRate,omitempty"`
	EchoCancellation *bool `json:"echoCancellation,omitempty"`
	NoiseSuppression *bool `json:"noiseSuppression,omitempty"`
	AutoGainControl  *bool `json:"autoGainControl,omitempty"`
}

// Constraints converts the block into capture constraints, filling
// defaults for absent fields.
func (c Capture) Constraints() audiocapture.Constraints {
	out := audiocapture.DefaultConstraints()
	if c.SampleRate > 0 {
		out.SampleRate = c.SampleRate
	}
	if c.EchoCancellation != nil {
		out.EchoCancellation = *c.EchoCancellation
	}
	if c.NoiseSuppression != nil {
		out.NoiseSuppression = *c.NoiseSuppression
	}
	if c.AutoGainControl != nil {
		out.AutoGainControl = *c.AutoGainControl
	}
	return out
}

// Waveform configures the rendered stroke. GlowRadius is a pointer
// because zero (no glow) is a valid choice.
type Waveform struct {
	Color      string   `json:"color,omitempty"`
	LineWidth  float64  `json:"lineWidth,omitempty"`
	GlowRadius *float64 `json:"glowRadius,omitempty"`
	TargetFPS  int      `json:"targetFps,omitempty"`
}

// Style converts the block into a renderer style, filling defaults for
// absent fields. The glow inherits the stroke color.
func (w Waveform) Style() waveform.Style {
	s := waveform.DefaultStyle()
	if w.Color != "" {
		s.Color = w.Color
		s.GlowColor = w.Color
	}
	if w.LineWidth > 0 {
		s.LineWidth = w.LineWidth
	}
	if w.GlowRadius != nil {
		s.GlowRadius = *w.GlowRadius
	}
	return s
}

// FrameInterval returns the delay between rendered frames.
func (w Waveform) FrameInterval() time.Duration {
	if w.TargetFPS <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(w.TargetFPS)
}

// Recognizer selects and configures the speech backends.
type Recognizer struct {
	// Provider is "auto" or a provider name.
	Provider string `json:"provider"`
	// Language is "auto" or an ISO 639-1 code.
	Language     string       `json:"language"`
	OpenAI       OpenAI       `json:"openai"`
	Whisper      Whisper      `json:"whisper"`
	WhisperLocal WhisperLocal `json:"whisperLocal"`
	StreamURL    string       `json:"streamUrl,omitempty"`
}

// OpenAI configures the Realtime transcription backend.
type OpenAI struct {
	APIKey string `json:"apiKey,omitempty"`
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// Whisper configures the hosted transcription API backend.
type Whisper struct {
	BaseURL string `json:"baseUrl,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
	Model   string `json:"model,omitempty"`
}

// WhisperLocal configures the on-device whisper.cpp backend.
type WhisperLocal struct {
	BinPath   string `json:"binPath,omitempty"`
	ModelPath string `json:"modelPath,omitempty"`
}

// Load loads configuration from the config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from an explicit path. Subsequent Save
// calls write back to the same path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			cfg.path = path
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.path = path

	migrated := cfg.migrateVariant()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	cfg.applyDefaults()

	if migrated {
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("save migrated config: %w", err)
		}
	}
	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		p, err := configPath()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Path returns where the configuration is persisted.
func (c *Config) Path() string {
	return c.path
}

// AutoStop returns the inactivity timeout. Zero means disabled.
func (c *Config) AutoStop() time.Duration {
	if c.AutoStopMs == nil {
		return DefaultAutoStopMs * time.Millisecond
	}
	return time.Duration(*c.AutoStopMs) * time.Millisecond
}

// SetAutoStopMs records the timeout in milliseconds.
func (c *Config) SetAutoStopMs(ms int) {
	c.AutoStopMs = &ms
}

// Settings returns the frontend-facing view of the configuration.
func (c *Config) Settings() types.Settings {
	style := c.Waveform.Style()
	return types.Settings{
		AutoStopMs:   int(c.AutoStop() / time.Millisecond),
		CanvasLayout: c.CanvasLayout,
		Provider:     c.Recognizer.Provider,
		Language:     c.Recognizer.Language,
		Hotkey:       c.Hotkey,
		Waveform: types.WaveformStyle{
			Color:      style.Color,
			LineWidth:  style.LineWidth,
			GlowRadius: style.GlowRadius,
		},
	}
}

// ApplySettings merges a settings update from the UI and persists it.
func (c *Config) ApplySettings(s types.Settings) error {
	if s.AutoStopMs < 0 {
		return fmt.Errorf("negative auto-stop: %d", s.AutoStopMs)
	}
	switch s.CanvasLayout {
	case LayoutOverlay, LayoutInline:
	default:
		return fmt.Errorf("unknown canvas layout: %q", s.CanvasLayout)
	}

	c.SetAutoStopMs(s.AutoStopMs)
	c.CanvasLayout = s.CanvasLayout
	c.Recognizer.Provider = s.Provider
	c.Recognizer.Language = s.Language
	c.Hotkey = s.Hotkey
	c.Waveform.Color = s.Waveform.Color
	c.Waveform.LineWidth = s.Waveform.LineWidth
	glow := s.Waveform.GlowRadius
	c.Waveform.GlowRadius = &glow

	return c.Save()
}

// Helper functions

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

func defaultConfig() *Config {
	ms := DefaultAutoStopMs
	return &Config{
		AutoStopMs:   &ms,
		CanvasLayout: LayoutOverlay,
		Recognizer:   Recognizer{Provider: "auto", Language: "auto"},
	}
}

// migrateVariant rewrites the retired variant field into its
// replacement settings. The overlay widget ran without an inactivity
// timeout; the inline widget carried the 15 second default. Reports
// whether anything changed.
func (c *Config) migrateVariant() bool {
	if c.Variant == "" {
		return false
	}
	if c.CanvasLayout == "" {
		c.CanvasLayout = c.Variant
	}
	if c.AutoStopMs == nil {
		ms := 0
		if c.Variant == LayoutInline {
			ms = DefaultAutoStopMs
		}
		c.AutoStopMs = &ms
	}
	c.Variant = ""
	return true
}

func (c *Config) validate() error {
	switch c.CanvasLayout {
	case "", LayoutOverlay, LayoutInline:
	default:
		return fmt.Errorf("unknown canvas layout: %q", c.CanvasLayout)
	}
	if c.AutoStopMs != nil && *c.AutoStopMs < 0 {
		return fmt.Errorf("negative auto-stop: %d", *c.AutoStopMs)
	}
	if c.Capture.SampleRate < 0 {
		return fmt.Errorf("negative sample rate: %d", c.Capture.SampleRate)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.AutoStopMs == nil {
		ms := DefaultAutoStopMs
		c.AutoStopMs = &ms
	}
	if c.CanvasLayout == "" {
		c.CanvasLayout = LayoutOverlay
	}
	if c.Recognizer.Provider == "" {
		c.Recognizer.Provider = "auto"
	}
	if c.Recognizer.Language == "" {
		c.Recognizer.Language = "auto"
	}
}
