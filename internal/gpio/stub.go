//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealPulser is not available on non-Linux platforms.
type RealPulser struct{}

// NewRealPulser returns an error on non-Linux platforms.
func NewRealPulser(pinTrigger, pinEcho int) (*RealPulser, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Trigger is not implemented on non-Linux platforms.
func (p *RealPulser) Trigger() error {
	return errors.New("gpio: not supported")
}

// Echo is not implemented on non-Linux platforms.
func (p *RealPulser) Echo() (time.Duration, bool, error) {
	return 0, false, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (p *RealPulser) Close() error {
	return nil
}
