// Package sonar contains the sampling state machine for one HC-SR04
// rangefinder. It is pure scheduling and averaging logic: pin-level timing
// lives in internal/gpio and the clock is always passed in by the caller.
// Nothing here blocks, sleeps, or spawns goroutines; the host loop drives
// everything through Poll.
package sonar

import "time"

// MicrosPerCM is the echo round-trip time per centimeter of target
// distance. The HC-SR04 datasheet convention: divide the echo width in
// microseconds by 58 to get centimeters.
const MicrosPerCM = 58.0

// Defaults applied by New.
const (
	DefaultInactivity = 50 * time.Millisecond
	DefaultSamples    = 3
	// DefaultMaxEcho rejects echoes beyond the sensor's ~4m rated range.
	DefaultMaxEcho = 25 * time.Millisecond
)

// Reading is the result of one completed sampling burst.
//
// The sample callback fires exactly once per completed burst, even when
// every pulse was rejected: in that case Valid is false and Distance is
// zero, so consumers observe "sensor saw nothing" as an event rather than
// silence.
type Reading struct {
	// Time is the poll clock value at which the burst finalized.
	Time time.Time

	// Distance is the averaged distance in centimeters. Meaningful only
	// when Valid.
	Distance float64

	// Valid is false when no pulse in the burst produced an in-range echo.
	Valid bool

	// Pulses is the number of trigger pulses sent in the burst.
	Pulses int

	// ValidSamples is the number of echoes that passed the range check.
	ValidSamples int
}

// SampleFunc receives one Reading per completed burst, always from inside
// a Poll call and never re-entrantly.
type SampleFunc func(Reading)

// Counts accumulates burst statistics since Start, for diagnostics and
// heartbeats.
type Counts struct {
	// Bursts is the number of completed bursts.
	Bursts int
	// NoReading is the number of bursts in which every echo was rejected.
	NoReading int
	// Rejected is the number of individual echoes outside the valid range
	// (including timeouts and failed triggers).
	Rejected int
}
