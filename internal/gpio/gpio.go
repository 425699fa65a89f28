// Package gpio drives the trigger/echo pin pair of an HC-SR04 ultrasonic
// rangefinder. The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Pulser sends trigger pulses and reports echo pulse widths. Nothing here
// blocks on the sensor: Trigger returns once the pulse is emitted and Echo
// reports whatever has completed so far.
type Pulser interface {
	// Trigger emits one ~10µs trigger pulse and begins a new echo
	// measurement, discarding any previous one.
	Trigger() error

	// Echo reports the measurement started by the last Trigger. done is
	// false while the echo pulse is still outstanding. A measurement that
	// exceeds EchoTimeout completes with the zero-width sentinel.
	Echo() (width time.Duration, done bool, err error)

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinTrigger = 23
	DefaultPinEcho    = 24
)

// EchoTimeout bounds how long an echo measurement may stay outstanding.
// The HC-SR04 holds its echo line for at most ~38ms when nothing reflects,
// so anything past this is a missed or stuck echo.
const EchoTimeout = 60 * time.Millisecond
