// Package clipboard provides system clipboard access behind a small
// interface so callers can substitute fakes in tests.
package clipboard

import (
	"fmt"

	"github.com/atotto/clipboard"
)

// Writer reads and writes the system clipboard as plain text.
type Writer interface {
	WriteText(text string) error
	ReadText() (string, error)
}

// System is the platform clipboard.
type System struct{}

var _ Writer = System{}

// NewSystem returns the platform clipboard.
func NewSystem() System {
	return System{}
}

// WriteText replaces the clipboard contents with text.
func (System) WriteText(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// ReadText returns the current clipboard contents.
func (System) ReadText() (string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return text, nil
}
