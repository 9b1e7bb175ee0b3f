// Package app provides the core application service for Wails bindings.
package app

// Event names for frontend communication.
const (
	EventRecordingState  = "recording-state"
	EventTranscript      = "transcript"
	EventCopied          = "copied"
	EventRecordingError  = "recording-error"
	EventWaveformFrame   = "waveform-frame"
	EventSettingsChanged = "settings-changed"
)
