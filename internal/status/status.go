// Package status provides a thread-safe status tracker for the rangefinder
// daemon. It is read by HTTP handlers and feeds MQTT status snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sonar-sensor/internal/sonar"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs       int64
	InactivityMs int64
	Samples      int
	MaxEchoMs    int64
	HeartbeatMs  int64
	Broker       string
	HTTPPort     string
	WSBroker     string // Websocket broker URL for browser MQTT (empty = disabled)
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Last          sonar.Reading
	HaveReading   bool
	Sampling      bool
	Counts        sonar.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu            sync.RWMutex
	snap          Snapshot
	lastHeartbeat time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		lastHeartbeat: startTime,
	}
}

// Update records the latest reading and burst counters.
// Called from the poll loop whenever a burst completes.
func (t *Tracker) Update(r sonar.Reading, counts sonar.Counts) {
	t.mu.Lock()
	t.snap.Last = r
	t.snap.HaveReading = true
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetSampling records whether a burst is currently active.
func (t *Tracker) SetSampling(sampling bool) {
	t.mu.Lock()
	t.snap.Sampling = sampling
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// HeartbeatDue reports whether the heartbeat interval has elapsed since the
// last heartbeat (or startup), consuming the interval when it has. Always
// false for interval <= 0 (disabled).
func (t *Tracker) HeartbeatDue(now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastHeartbeat) < interval {
		return false
	}
	t.lastHeartbeat = now
	return true
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
