package gpio

import "time"

// FakePulser is a test double that returns scripted echo widths.
type FakePulser struct {
	// Widths contains the echo pulse widths to report, one per Trigger.
	// A zero width is the timeout sentinel. When the script is exhausted
	// the last width repeats.
	Widths []time.Duration

	// Delay is the number of Echo calls that report an outstanding
	// measurement before each completes. Zero completes immediately.
	Delay int

	// Triggers counts Trigger calls.
	Triggers int

	// Closed tracks if Close was called.
	Closed bool

	// TriggerError, if set, will be returned by Trigger.
	TriggerError error

	// EchoError, if set, will be returned by Echo.
	EchoError error

	index int
	armed bool
	polls int
}

// NewFakePulser creates a FakePulser with the given scripted widths.
func NewFakePulser(widths []time.Duration) *FakePulser {
	return &FakePulser{Widths: widths}
}

// Trigger arms the next scripted measurement.
func (f *FakePulser) Trigger() error {
	if f.TriggerError != nil {
		return f.TriggerError
	}
	if f.Triggers > 0 && f.index < len(f.Widths)-1 {
		f.index++
	}
	f.Triggers++
	f.armed = true
	f.polls = 0
	return nil
}

// Echo reports the current scripted measurement, completing it after
// Delay outstanding polls.
func (f *FakePulser) Echo() (time.Duration, bool, error) {
	if f.EchoError != nil {
		return 0, false, f.EchoError
	}
	if !f.armed || len(f.Widths) == 0 {
		return 0, false, nil
	}
	if f.polls < f.Delay {
		f.polls++
		return 0, false, nil
	}
	return f.Widths[f.index], true, nil
}

// Close marks the pulser as closed.
func (f *FakePulser) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the script and clears recorded state.
func (f *FakePulser) Reset() {
	f.index = 0
	f.armed = false
	f.polls = 0
	f.Triggers = 0
	f.Closed = false
}
