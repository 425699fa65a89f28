//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealPulser drives an HC-SR04 on actual hardware using the Linux GPIO
// character device. The echo pin is watched with edge events so pulse
// widths come from kernel timestamps rather than userspace polling.
type RealPulser struct {
	chip    *gpiocdev.Chip
	trigger *gpiocdev.Line
	echo    *gpiocdev.Line

	mu      sync.Mutex
	armed   bool          // a measurement is in progress or completed
	started time.Time     // wall clock at Trigger, for the timeout bound
	rose    bool          // rising edge seen
	riseTS  time.Duration // kernel timestamp of the rising edge
	done    bool
	width   time.Duration
}

// NewRealPulser creates a pulse driver for actual Raspberry Pi hardware.
func NewRealPulser(pinTrigger, pinEcho int) (*RealPulser, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	p := &RealPulser{chip: chip}

	trigLine, err := chip.RequestLine(pinTrigger, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request trigger pin %d: %w", pinTrigger, err)
	}
	p.trigger = trigLine

	// Pull-down matches the Pi boot default and keeps a disconnected echo
	// line from floating high.
	echoLine, err := chip.RequestLine(pinEcho,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(p.handleEdge))
	if err != nil {
		trigLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request echo pin %d: %w", pinEcho, err)
	}
	p.echo = echoLine

	return p, nil
}

// handleEdge runs on the gpiocdev event goroutine.
func (p *RealPulser) handleEdge(evt gpiocdev.LineEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.armed || p.done {
		return
	}

	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		p.rose = true
		p.riseTS = evt.Timestamp
	case gpiocdev.LineEventFallingEdge:
		if !p.rose {
			return // falling edge from a stale pulse
		}
		p.width = evt.Timestamp - p.riseTS
		p.done = true
	}
}

// Trigger emits the 10µs trigger pulse and arms a fresh echo measurement.
func (p *RealPulser) Trigger() error {
	p.mu.Lock()
	p.armed = true
	p.started = time.Now()
	p.rose = false
	p.done = false
	p.width = 0
	p.mu.Unlock()

	if err := p.trigger.SetValue(0); err != nil {
		return fmt.Errorf("trigger low: %w", err)
	}
	time.Sleep(2 * time.Microsecond)
	if err := p.trigger.SetValue(1); err != nil {
		return fmt.Errorf("trigger high: %w", err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := p.trigger.SetValue(0); err != nil {
		return fmt.Errorf("trigger low: %w", err)
	}
	return nil
}

// Echo reports the most recent measurement. A measurement outstanding
// longer than EchoTimeout completes with width zero.
func (p *RealPulser) Echo() (time.Duration, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.armed {
		return 0, false, nil
	}
	if p.done {
		return p.width, true, nil
	}
	if time.Since(p.started) > EchoTimeout {
		p.done = true
		p.width = 0
		return 0, true, nil
	}
	return 0, false, nil
}

// Close releases GPIO resources. The trigger pin is reconfigured to input
// with pull-down (the Pi boot default) so the sensor is not left mid-pulse
// across a restart.
func (p *RealPulser) Close() error {
	var errs []error

	if p.trigger != nil {
		if err := p.trigger.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure trigger pin: %w", err))
		}
		if err := p.trigger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trigger pin: %w", err))
		}
	}
	if p.echo != nil {
		if err := p.echo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close echo pin: %w", err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
