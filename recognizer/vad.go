package recognizer

import (
	"math"
	"time"
)

// SpeechEvent describes a voice-activity transition.
type SpeechEvent int

const (
	EventNone SpeechEvent = iota
	// EventSpeechStart fires on the first batch above the threshold.
	EventSpeechStart
	// EventSpeechEnd fires when trailing silence closes an utterance.
	EventSpeechEnd
	// EventSpeechMax fires when an utterance hits the maximum length
	// and must be split without waiting for silence.
	EventSpeechMax
)

// VADConfig tunes the energy-based voice activity detector.
type VADConfig struct {
	// Threshold is the RMS level above which a batch counts as speech.
	Threshold float32
	// MinSpeech is the shortest utterance worth transcribing.
	MinSpeech time.Duration
	// MaxSpeech forces an utterance boundary after this long.
	MaxSpeech time.Duration
	// Silence is the trailing quiet that ends an utterance.
	Silence time.Duration
}

// DefaultVADConfig returns thresholds tuned for close-mic dictation.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		Threshold: 0.015,
		MinSpeech: 400 * time.Millisecond,
		MaxSpeech: 15 * time.Second,
		Silence:   600 * time.Millisecond,
	}
}

func (c VADConfig) withDefaults() VADConfig {
	d := DefaultVADConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.MinSpeech <= 0 {
		c.MinSpeech = d.MinSpeech
	}
	if c.MaxSpeech <= 0 {
		c.MaxSpeech = d.MaxSpeech
	}
	if c.Silence <= 0 {
		c.Silence = d.Silence
	}
	return c
}

// VAD segments a sample stream into utterances by RMS energy. Time is
// derived from sample counts, not the wall clock, so identical input
// always yields identical boundaries. Not safe for concurrent use.
type VAD struct {
	cfg        VADConfig
	sampleRate int

	inSpeech       bool
	speechSamples  int
	silenceSamples int
}

// NewVAD creates a detector for audio at the given sample rate.
func NewVAD(cfg VADConfig, sampleRate int) *VAD {
	return &VAD{cfg: cfg.withDefaults(), sampleRate: sampleRate}
}

// VADResult is the outcome of processing one batch. Transcribe is set
// on EventSpeechEnd and EventSpeechMax when the closed stretch was at
// least MinSpeech long; shorter blips are dropped.
type VADResult struct {
	Event      SpeechEvent
	Transcribe bool
}

// Process consumes one batch of samples and reports the transition it
// caused, if any.
func (v *VAD) Process(samples []float32) VADResult {
	if len(samples) == 0 || v.sampleRate <= 0 {
		return VADResult{}
	}

	loud := calculateRMS(samples) > v.cfg.Threshold

	switch {
	case loud && !v.inSpeech:
		v.inSpeech = true
		v.speechSamples = len(samples)
		v.silenceSamples = 0
		return VADResult{Event: EventSpeechStart}
	case loud:
		v.speechSamples += len(samples)
		v.silenceSamples = 0
	case v.inSpeech:
		v.speechSamples += len(samples)
		v.silenceSamples += len(samples)
	default:
		return VADResult{}
	}

	if v.duration(v.silenceSamples) >= v.cfg.Silence {
		long := v.longEnough()
		v.reset()
		return VADResult{Event: EventSpeechEnd, Transcribe: long}
	}
	if v.duration(v.speechSamples) >= v.cfg.MaxSpeech {
		long := v.longEnough()
		// Stay in speech but restart the length counter so the next
		// split happens a full MaxSpeech later.
		v.speechSamples = 0
		v.silenceSamples = 0
		return VADResult{Event: EventSpeechMax, Transcribe: long}
	}
	return VADResult{}
}

// Flush closes any open utterance as if silence had ended it. Used
// when the stream stops mid-utterance.
func (v *VAD) Flush() VADResult {
	if !v.inSpeech {
		return VADResult{}
	}
	long := v.longEnough()
	v.reset()
	return VADResult{Event: EventSpeechEnd, Transcribe: long}
}

// InSpeech reports whether an utterance is currently open.
func (v *VAD) InSpeech() bool { return v.inSpeech }

// SpeechDuration returns the length of the open utterance, trailing
// silence included.
func (v *VAD) SpeechDuration() time.Duration {
	if !v.inSpeech {
		return 0
	}
	return v.duration(v.speechSamples)
}

func (v *VAD) longEnough() bool {
	return v.duration(v.speechSamples-v.silenceSamples) >= v.cfg.MinSpeech
}

// Reset drops all detector state.
func (v *VAD) Reset() { v.reset() }

func (v *VAD) reset() {
	v.inSpeech = false
	v.speechSamples = 0
	v.silenceSamples = 0
}

func (v *VAD) duration(samples int) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(v.sampleRate)
}

// calculateRMS returns the root mean square level of a batch.
func calculateRMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
