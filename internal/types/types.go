// Package types provides shared type definitions for the application.
package types

// RecordingState is the component's lifecycle state. There are exactly
// two observable states; transient phases (mid-acquisition, mid-stop)
// never escape the converter.
type RecordingState string

const (
	StateIdle      RecordingState = "idle"
	StateRecording RecordingState = "recording"
)

// Stop reasons carried on state changes.
const (
	ReasonUser     = "user"     // explicit toggle/stop
	ReasonTimeout  = "timeout"  // inactivity auto-stop
	ReasonError    = "error"    // session failure mid-recording
	ReasonShutdown = "shutdown" // component teardown
)

// StateChange reports a recording lifecycle transition.
type StateChange struct {
	State  RecordingState `json:"state"`
	Reason string         `json:"reason"`
}

// Transcript is the full transcript text after a recognition update.
// Text replaces the previous value wholesale; it is never a delta.
type Transcript struct {
	Text    string `json:"text"`
	Interim bool   `json:"interim"` // true while the tail segment is still a hypothesis
}

// Status is a point-in-time snapshot for UI chrome.
type Status struct {
	Recording       bool   `json:"recording"`
	Copied          bool   `json:"copied"`
	Provider        string `json:"provider"` // active recognition provider, "" when degraded
	Language        string `json:"language"` // detected transcript language code, "" if unknown
	TranscriptChars int    `json:"transcriptChars"`
	DurationMs      int64  `json:"durationMs"` // current/last session length
}

// ProviderInfo describes a recognition provider for the settings UI.
type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Available   bool   `json:"available"`
}

// DetectResult is the outcome of transcript language detection.
type DetectResult struct {
	Code string `json:"code"` // ISO 639-1, "auto" when undetermined
	Name string `json:"name"` // English display name
}

// Settings is the frontend-facing view of the configuration.
type Settings struct {
	AutoStopMs   int           `json:"autoStopMs"` // 0 disables the inactivity auto-stop
	CanvasLayout string        `json:"canvasLayout"`
	Provider     string        `json:"provider"`
	Language     string        `json:"language"`
	Hotkey       string        `json:"hotkey"`
	Waveform     WaveformStyle `json:"waveform"`
}

// WaveformStyle mirrors config.Waveform for the painter.
type WaveformStyle struct {
	Color      string  `json:"color"`
	LineWidth  float64 `json:"lineWidth"`
	GlowRadius float64 `json:"glowRadius"`
}
