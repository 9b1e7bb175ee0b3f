// Package waveform turns live amplitude samples into smoothed stroke
// paths, one frame at a time.
package waveform

import (
	"sync"
	"time"
)

// Scheduler runs a repeating frame task. Start returns a cancel
// function; after cancel returns, fn will not be invoked again. Cancel
// is idempotent. A session holds exactly one cancel token.
type Scheduler interface {
	Start(fn func()) (cancel func())
}

// TickScheduler drives frames on a fixed interval, approximating the
// display refresh rate.
type TickScheduler struct {
	// Interval between frames. Defaults to 1/60 s.
	Interval time.Duration
}

var _ Scheduler = TickScheduler{}

// Start begins invoking fn on every tick until cancelled.
func (s TickScheduler) Start(fn func()) (cancel func()) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second / 60
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-stopped
	}
}
