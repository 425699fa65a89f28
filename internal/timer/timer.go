// Package timer provides a polled deadline timer for cooperative scheduling.
// Nothing fires on its own: the owner calls Poll from its loop, passing the
// current clock value, and every state change happens inside that call.
// Time is always injected so tests and callers control the clock.
package timer

import "time"

// Callback is invoked from Poll when a deadline elapses. now is the clock
// value the firing Poll was called with; firing counts completed firings
// since the last Start, beginning at 1.
type Callback func(now time.Time, firing uint64)

// Timer tracks a single absolute deadline and invokes a callback when a
// polled clock value reaches it. In continuous mode the timer rearms itself
// from the firing poll's clock value, so one Start sustains a cadence and a
// late poll shifts the schedule instead of firing repeatedly to catch up.
//
// Timer is not safe for concurrent use. It is meant to be owned and polled
// by a single loop; the clock values passed to Poll should come from a
// monotonic source.
type Timer struct {
	interval   time.Duration
	continuous bool
	onNext     Callback

	deadline time.Time
	firings  uint64
	running  bool
}

// New returns a stopped timer with no interval or callback configured.
func New() *Timer {
	return &Timer{}
}

// Interval sets the duration between firings. It takes effect on the next
// Start or continuous rearm; a deadline already computed is unchanged.
func (t *Timer) Interval(d time.Duration) *Timer {
	t.interval = d
	return t
}

// Continuous controls whether the timer rearms after firing (true) or stops
// after a single firing (false).
func (t *Timer) Continuous(c bool) *Timer {
	t.continuous = c
	return t
}

// OnNext registers the callback invoked on each firing, replacing any
// previous registration. With a nil callback firings still advance, rearm
// and stop the timer exactly as if one were registered.
func (t *Timer) OnNext(fn Callback) *Timer {
	t.onNext = fn
	return t
}

// Start arms the timer: the deadline becomes now plus the configured
// interval and the firing count resets to zero.
func (t *Timer) Start(now time.Time) *Timer {
	t.deadline = now.Add(t.interval)
	t.firings = 0
	t.running = true
	return t
}

// StartInterval arms the timer with an explicit interval, which replaces
// the configured one for this and subsequent cycles.
func (t *Timer) StartInterval(now time.Time, d time.Duration) *Timer {
	t.interval = d
	return t.Start(now)
}

// Stop disarms the timer. Idempotent. A stopped timer's deadline is
// meaningless until the next Start.
func (t *Timer) Stop() *Timer {
	t.running = false
	return t
}

// Restart is Stop followed by Start with the configured interval. The
// firing count resets; there is no way to extend a deadline while keeping
// the count.
func (t *Timer) Restart(now time.Time) *Timer {
	return t.Stop().Start(now)
}

// IsRunning reports whether the timer is counting toward a deadline.
func (t *Timer) IsRunning() bool {
	return t.running
}

// FiringCount returns the number of firings completed since the last Start.
func (t *Timer) FiringCount() uint64 {
	return t.firings
}

// Deadline returns the absolute time of the next firing. Valid only while
// IsRunning.
func (t *Timer) Deadline() time.Time {
	return t.deadline
}

// Poll fires the timer if now has reached the deadline. Not running, or
// now before the deadline, is a no-op. The timer rearms or stops before
// the callback runs, so a callback may Stop or Restart the timer and win.
// A consumed deadline cannot fire twice: repeated or non-monotonic now
// values after a firing are measured against the new deadline only.
func (t *Timer) Poll(now time.Time) *Timer {
	if !t.running || now.Before(t.deadline) {
		return t
	}
	t.firings++
	if t.continuous {
		t.deadline = now.Add(t.interval)
	} else {
		t.running = false
	}
	if t.onNext != nil {
		t.onNext(now, t.firings)
	}
	return t
}
