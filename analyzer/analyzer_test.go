package analyzer

import (
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"defaults", Config{}, nil},
		{"explicit", Config{WindowSize: 512, Smoothing: 0.5}, nil},
		{"window_too_small", Config{WindowSize: 1}, ErrWindowTooSmall},
		{"smoothing_too_high", Config{Smoothing: 1}, ErrBadSmoothing},
		{"smoothing_negative", Config{Smoothing: -0.1}, ErrBadSmoothing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg)
			if err != tt.wantErr {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			wantSize := tt.cfg.WindowSize
			if wantSize == 0 {
				wantSize = DefaultWindowSize
			}
			if a.WindowSize() != wantSize {
				t.Errorf("WindowSize() = %d, want %d", a.WindowSize(), wantSize)
			}
		})
	}
}

func TestTimeDomainBytesSilence(t *testing.T) {
	a, err := New(Config{WindowSize: 8, Smoothing: 0.5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dst := make([]byte, 8)
	n := a.TimeDomainBytes(dst)
	if n != 8 {
		t.Fatalf("n = %d, want 8", n)
	}
	for i, b := range dst {
		if b != 128 {
			t.Errorf("dst[%d] = %d, want 128 (silence midline)", i, b)
		}
	}
}

func TestTimeDomainBytesMapping(t *testing.T) {
	// Near-zero smoothing so the first read reflects the raw samples.
	// (A zero Smoothing is replaced by the default constant.)
	a, err := New(Config{WindowSize: 4, Smoothing: 0.0001})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a.Feed([]float32{1, -1, 0.5, 0})
	dst := make([]byte, 4)
	a.TimeDomainBytes(dst)

	wants := []byte{255, 1, 192, 128}
	for i, want := range wants {
		if diff := int(dst[i]) - int(want); diff > 1 || diff < -1 {
			t.Errorf("dst[%d] = %d, want %d (±1)", i, dst[i], want)
		}
	}
}

func TestTimeDomainBytesSmoothing(t *testing.T) {
	a, err := New(Config{WindowSize: 2, Smoothing: 0.8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dst := make([]byte, 2)

	// First read establishes the baseline at silence.
	a.TimeDomainBytes(dst)
	if dst[0] != 128 {
		t.Fatalf("baseline = %d, want 128", dst[0])
	}

	// A full-scale step should move only 20% of the way on the next read.
	a.Feed([]float32{1, 1})
	a.TimeDomainBytes(dst)
	// 0*0.8 + 1*0.2 = 0.2 -> 128 + 0.2*127 ≈ 153
	if dst[0] < 151 || dst[0] > 155 {
		t.Errorf("smoothed step = %d, want ≈153", dst[0])
	}

	// Repeated reads converge toward full scale, never overshooting.
	prev := dst[0]
	for i := 0; i < 20; i++ {
		a.TimeDomainBytes(dst)
		if dst[0] < prev {
			t.Fatalf("read %d regressed: %d < %d", i, dst[0], prev)
		}
		prev = dst[0]
	}
	if prev < 250 {
		t.Errorf("converged value = %d, want ≥250", prev)
	}
}

func TestChronologicalOrder(t *testing.T) {
	a, err := New(Config{WindowSize: 4, Smoothing: 0.0001})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Wrap the ring: the last four samples fed should come out oldest first.
	a.Feed([]float32{0, 0, 0, 0})
	a.Feed([]float32{-1, 1})

	dst := make([]byte, 4)
	a.TimeDomainBytes(dst)

	// Window now holds [0, 0, -1, 1] chronologically.
	if dst[2] >= 128 || dst[3] <= 128 {
		t.Errorf("window order = %v, want trailing [-1, 1] mapped below/above 128", dst)
	}
}

func TestActiveAndClose(t *testing.T) {
	a, err := New(Config{WindowSize: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if a.Active() {
		t.Error("Active() = true before any feed")
	}
	a.Feed([]float32{0.1})
	if !a.Active() {
		t.Error("Active() = false after feed")
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if a.Active() {
		t.Error("Active() = true after close")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// Feeds after close are ignored.
	a.Feed([]float32{1})
	if a.Active() {
		t.Error("Active() = true after feed on closed analyzer")
	}
}
