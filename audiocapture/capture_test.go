package audiocapture

import (
	"testing"
)

func TestDefaultConstraints(t *testing.T) {
	c := DefaultConstraints()
	if c.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", c.SampleRate)
	}
	if !c.EchoCancellation || !c.NoiseSuppression || !c.AutoGainControl {
		t.Errorf("input processing defaults = %+v, want all enabled", c)
	}
}

func TestConstraintsWithDefaults(t *testing.T) {
	tests := []struct {
		name     string
		in       Constraints
		wantRate int
	}{
		{"zero_rate", Constraints{}, 48000},
		{"negative_rate", Constraints{SampleRate: -1}, 48000},
		{"whisper_16k", Constraints{SampleRate: 16000}, 16000},
		{"webrtc_48k", Constraints{SampleRate: 48000}, 48000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.withDefaults()
			if got.SampleRate != tt.wantRate {
				t.Errorf("SampleRate = %d, want %d", got.SampleRate, tt.wantRate)
			}
		})
	}
}

func TestConvertSamples(t *testing.T) {
	tests := []struct {
		name string
		in   int16
		want float32
	}{
		{"silence", 0, 0},
		{"full_positive", 32767, 32767.0 / 32768},
		{"full_negative", -32768, -1},
		{"half", 16384, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make([]float32, 1)
			convertSamples([]int16{tt.in}, out)
			if out[0] != tt.want {
				t.Errorf("convertSamples(%d) = %v, want %v", tt.in, out[0], tt.want)
			}
		})
	}
}
