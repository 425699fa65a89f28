package sonar

import (
	"fmt"
	"time"

	"github.com/sweeney/sonar-sensor/internal/gpio"
	"github.com/sweeney/sonar-sensor/internal/timer"
)

// Controller drives trigger/echo cycles for one rangefinder. A burst of
// Samples pulses is sent strictly sequentially (no pulse while an echo is
// outstanding, which prevents cross-talk), valid echo widths are averaged,
// and one Reading is delivered per burst. An owned timer.Timer schedules
// the inactivity gap between bursts; polling the controller polls the
// timer, so a single Poll call per loop iteration advances everything.
//
// Controller is not safe for concurrent use. All state changes happen
// inside Start, Stop and Poll.
type Controller struct {
	driver gpio.Pulser

	inactivity time.Duration
	samples    int
	maxEcho    time.Duration
	onSample   SampleFunc

	sampling    bool
	outstanding bool
	pulsesSent  int
	valid       int
	total       time.Duration
	counts      Counts
	err         error

	tm *timer.Timer
}

// New creates a Controller bound to the given pin driver, with defaults
// for inactivity, samples per burst and the echo validity bound. The
// driver's pins must already be requested; the controller never touches
// pin state except through it.
func New(driver gpio.Pulser) *Controller {
	c := &Controller{
		driver:     driver,
		inactivity: DefaultInactivity,
		samples:    DefaultSamples,
		maxEcho:    DefaultMaxEcho,
		tm:         timer.New(),
	}
	// The timer only ever means "send the next pulse". Continuous mode
	// keeps the inter-burst cadence self-sustaining.
	c.tm.Continuous(true).OnNext(func(now time.Time, _ uint64) {
		c.send(now)
	})
	return c
}

// Inactivity sets the delay between completed bursts. Effective from the
// next burst onward.
func (c *Controller) Inactivity(d time.Duration) *Controller {
	c.inactivity = d
	return c
}

// Samples sets the number of pulses averaged per burst. Values below 1
// are clamped to 1.
func (c *Controller) Samples(n int) *Controller {
	if n < 1 {
		n = 1
	}
	c.samples = n
	return c
}

// MaxEcho sets the upper bound on a believable echo width. Wider echoes
// (and the zero-width timeout sentinel) are counted but excluded from the
// average.
func (c *Controller) MaxEcho(d time.Duration) *Controller {
	c.maxEcho = d
	return c
}

// OnSample registers the callback that receives one Reading per completed
// burst, replacing any previous registration.
func (c *Controller) OnSample(fn SampleFunc) *Controller {
	c.onSample = fn
	return c
}

// Start begins sampling: the first pulse is sent immediately and the
// inactivity timer is armed so the cadence sustains itself once the burst
// finishes. Counters reset.
func (c *Controller) Start(now time.Time) *Controller {
	c.sampling = true
	c.outstanding = false
	c.pulsesSent = 0
	c.valid = 0
	c.total = 0
	c.send(now)
	return c
}

// Stop halts sampling and the inner timer. A partially accumulated burst
// is discarded; no partial Reading is delivered.
func (c *Controller) Stop() *Controller {
	c.tm.Stop()
	c.sampling = false
	c.outstanding = false
	c.pulsesSent = 0
	c.valid = 0
	c.total = 0
	return c
}

// Sampling reports whether a burst is active (as opposed to idling between
// bursts or stopped).
func (c *Controller) Sampling() bool {
	return c.sampling
}

// CountsSnapshot returns the burst statistics accumulated since Start.
func (c *Controller) CountsSnapshot() Counts {
	return c.counts
}

// Poll advances the controller and must be called at high frequency from
// the host loop. It never blocks: if the echo for the last pulse has not
// completed, Poll returns having done nothing for it. Before Start (or
// after Stop) Poll is a no-op. Driver errors are returned after being
// folded into the burst as rejected measurements, so a burst always
// terminates after exactly Samples pulses.
func (c *Controller) Poll(now time.Time) error {
	c.tm.Poll(now)

	if c.outstanding {
		width, done, err := c.driver.Echo()
		switch {
		case err != nil:
			c.err = fmt.Errorf("echo: %w", err)
			c.outstanding = false
			c.record(now, 0)
		case done:
			c.outstanding = false
			c.record(now, width)
		}
	}

	err := c.err
	c.err = nil
	return err
}

// send emits the next trigger pulse. Fired by the inactivity timer between
// bursts and called directly within one. Never sends while an echo is
// outstanding.
func (c *Controller) send(now time.Time) {
	if c.outstanding {
		return
	}
	c.sampling = true
	// Keep the timer a full inactivity interval away while the burst is
	// in flight; it only drives the first pulse of a burst. Rearming here
	// also picks up an inactivity changed since the previous burst.
	c.tm.StartInterval(now, c.inactivity)
	if err := c.driver.Trigger(); err != nil {
		c.err = fmt.Errorf("trigger: %w", err)
		c.record(now, 0)
		return
	}
	c.outstanding = true
}

// record consumes one completed measurement and advances the burst. A
// width of zero (timeout or failure) or beyond maxEcho is rejected.
func (c *Controller) record(now time.Time, width time.Duration) {
	c.pulsesSent++
	if width > 0 && width <= c.maxEcho {
		c.valid++
		c.total += width
	} else {
		c.counts.Rejected++
	}

	if c.pulsesSent < c.samples {
		c.send(now)
		return
	}
	c.finalize(now)
}

// finalize completes the burst: average, convert, deliver, rearm.
func (c *Controller) finalize(now time.Time) {
	r := Reading{
		Time:         now,
		Pulses:       c.pulsesSent,
		ValidSamples: c.valid,
	}
	if c.valid > 0 {
		meanMicros := float64(c.total) / float64(c.valid) / float64(time.Microsecond)
		r.Distance = meanMicros / MicrosPerCM
		r.Valid = true
	} else {
		c.counts.NoReading++
	}
	c.counts.Bursts++

	c.sampling = false
	c.pulsesSent = 0
	c.valid = 0
	c.total = 0
	c.tm.StartInterval(now, c.inactivity)

	if c.onSample != nil {
		c.onSample(r)
	}
}
