//go:build !darwin

package recognizer

import "fmt"

// Apple is only backed by the Speech framework on macOS. Elsewhere it
// registers as permanently unavailable so callers degrade cleanly.
type Apple struct{}

func NewApple() *Apple { return &Apple{} }

func (a *Apple) Name() string        { return "apple" }
func (a *Apple) DisplayName() string { return "Apple Speech" }
func (a *Apple) Available() bool     { return false }

func (a *Apple) NewSession(cfg SessionConfig) (Session, error) {
	return nil, fmt.Errorf("apple: %w", ErrUnavailable)
}
