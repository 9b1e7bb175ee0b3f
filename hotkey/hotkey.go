// Package hotkey registers a global keyboard chord so recording can be
// toggled while the window is unfocused or hidden.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// ErrEmptyChord is returned when parsing an empty chord string.
var ErrEmptyChord = errors.New("hotkey: empty chord")

// ErrNilCallback is returned when starting without a callback.
var ErrNilCallback = errors.New("hotkey: nil callback")

// aliases maps common chord spellings onto the key names the hook
// library knows.
var aliases = map[string]string{
	"control": "ctrl",
	"command": "cmd",
	"meta":    "cmd",
	"super":   "cmd",
	"option":  "alt",
	"opt":     "alt",
	"return":  "enter",
	"escape":  "esc",
}

// ParseChord splits a "+"-separated chord like "ctrl+shift+space" into
// normalized key names. Matching is case-insensitive and tolerates
// whitespace around the separators.
func ParseChord(chord string) ([]string, error) {
	if strings.TrimSpace(chord) == "" {
		return nil, ErrEmptyChord
	}
	parts := strings.Split(chord, "+")
	keys := make([]string, 0, len(parts))
	for _, part := range parts {
		k := strings.ToLower(strings.TrimSpace(part))
		if k == "" {
			return nil, fmt.Errorf("hotkey: malformed chord %q", chord)
		}
		if alias, ok := aliases[k]; ok {
			k = alias
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Manager owns the process-wide chord registration. The underlying
// keyboard hook is global state, so create at most one manager per
// process.
type Manager struct {
	mu      sync.Mutex
	running bool
	done    chan bool
}

// NewManager creates an idle manager.
func NewManager() *Manager {
	return &Manager{}
}

// Start registers chord and begins listening. The callback runs on a
// fresh goroutine for every press, so it may block freely. Starting a
// running manager replaces the previous chord.
func (m *Manager) Start(chord string, fn func()) error {
	keys, err := ParseChord(chord)
	if err != nil {
		return err
	}
	if fn == nil {
		return ErrNilCallback
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()

	hook.Register(hook.KeyDown, keys, func(hook.Event) {
		// The hook loop must never wait on the app.
		go fn()
	})
	m.done = hook.Process(hook.Start())
	m.running = true
	slog.Info("global hotkey registered", "chord", chord)
	return nil
}

// Stop unregisters the chord and ends the hook. Safe to call when
// idle.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if !m.running {
		return
	}
	hook.End()
	<-m.done
	m.done = nil
	m.running = false
	slog.Info("global hotkey unregistered")
}
