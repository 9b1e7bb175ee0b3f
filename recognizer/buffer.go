package recognizer

import "time"

// utteranceBuffer accumulates samples between voice-activity
// boundaries. Extract keeps a small tail of the previous utterance so
// the next transcription call has acoustic context across the cut.
// Not safe for concurrent use.
type utteranceBuffer struct {
	samples    []float32
	sampleRate int
	overlap    float64
}

func newUtteranceBuffer(sampleRate int, overlap float64) *utteranceBuffer {
	if overlap < 0 || overlap >= 1 {
		overlap = 0
	}
	return &utteranceBuffer{sampleRate: sampleRate, overlap: overlap}
}

func (b *utteranceBuffer) Append(samples []float32) {
	b.samples = append(b.samples, samples...)
}

// Extract returns a copy of the buffered utterance and retains the
// trailing overlap fraction for the next one.
func (b *utteranceBuffer) Extract() []float32 {
	if len(b.samples) == 0 {
		return nil
	}
	out := make([]float32, len(b.samples))
	copy(out, b.samples)

	keep := int(float64(len(b.samples)) * b.overlap)
	if keep > 0 {
		tail := b.samples[len(b.samples)-keep:]
		b.samples = append(b.samples[:0], tail...)
	} else {
		b.samples = b.samples[:0]
	}
	return out
}

func (b *utteranceBuffer) Clear() {
	b.samples = b.samples[:0]
}

// TrimTo drops all but the last n samples. Used to cap the pre-roll
// kept while waiting for speech to start.
func (b *utteranceBuffer) TrimTo(n int) {
	if n < 0 {
		n = 0
	}
	if len(b.samples) <= n {
		return
	}
	tail := b.samples[len(b.samples)-n:]
	b.samples = append(b.samples[:0], tail...)
}

func (b *utteranceBuffer) Len() int {
	return len(b.samples)
}

func (b *utteranceBuffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.samples)) * time.Second / time.Duration(b.sampleRate)
}
