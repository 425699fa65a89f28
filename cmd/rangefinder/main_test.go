package main

import (
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/sonar-sensor/internal/gpio"
	"github.com/sweeney/sonar-sensor/internal/mqtt"
	"github.com/sweeney/sonar-sensor/internal/sonar"
	"github.com/sweeney/sonar-sensor/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants — not the other way around.
func TestEnvVarNames(t *testing.T) {
	// These are the canonical names from pi-helper.
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "RobotNet")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	if info.Type != "wifi" {
		t.Errorf("Type: got %q", info.Type)
	}
	if info.IP != "192.168.1.100" {
		t.Errorf("IP: got %q", info.IP)
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q", info.Status)
	}
	if info.Gateway != "192.168.1.1" {
		t.Errorf("Gateway: got %q", info.Gateway)
	}
	if info.SSID != "RobotNet" {
		t.Errorf("SSID: got %q", info.SSID)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	os.Unsetenv(envNetworkStatus)
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestResolveWSBroker(t *testing.T) {
	cases := []struct {
		name   string
		ws     string
		broker string
		want   string
	}{
		{"off disables", "off", "tcp://192.168.1.200:1883", ""},
		{"explicit URL passes through", "ws://example:9001", "tcp://192.168.1.200:1883", "ws://example:9001"},
		{"derived from broker", "=broker", "tcp://192.168.1.200:1883", "ws://192.168.1.200:9001"},
		{"unparseable broker disables", "=broker", "://bad", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveWSBroker(tc.ws, tc.broker); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatDistance(t *testing.T) {
	valid := sonar.Reading{Distance: 42.5, Valid: true, Pulses: 3, ValidSamples: 2}
	if got := formatDistance(valid); got != "Distance: 42.50 cm (2/3 samples)" {
		t.Errorf("valid reading: got %q", got)
	}

	invalid := sonar.Reading{Pulses: 3}
	if got := formatDistance(invalid); !strings.Contains(got, "No reading") {
		t.Errorf("invalid reading: got %q", got)
	}
}

// pumpLoop runs runLoop with a synthetic clock advancing stepMs per now()
// call, feeds it n ticks, then delivers SIGTERM.
func pumpLoop(t *testing.T, pulser gpio.Pulser, pub *mqtt.FakePublisher, tracker *status.Tracker, heartbeat time.Duration, n int) {
	t.Helper()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cur := base
	now := func() time.Time {
		cur = cur.Add(2 * time.Millisecond)
		return cur
	}

	tick := make(chan time.Time)
	sig := make(chan os.Signal)
	done := make(chan error, 1)

	go func() {
		done <- runLoop(pulser, pub, pub, tracker, 50*time.Millisecond, 1, sonar.DefaultMaxEcho, heartbeat, now, tick, sig)
	}()

	for i := 0; i < n; i++ {
		tick <- time.Time{}
	}
	sig <- syscall.SIGTERM

	if err := <-done; err != nil {
		t.Fatalf("runLoop: %v", err)
	}
}

func TestRunLoopPublishesReadings(t *testing.T) {
	pulser := gpio.NewFakePulser([]time.Duration{300 * time.Microsecond})
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), status.Config{})

	pumpLoop(t, pulser, pub, tracker, 0, 40)

	if len(pub.Readings) < 2 {
		t.Fatalf("expected at least 2 readings over 80ms of ticks, got %d", len(pub.Readings))
	}
	for i, r := range pub.Readings {
		if !r.Valid {
			t.Errorf("reading %d: expected valid", i)
		}
	}

	snap := tracker.Snapshot()
	if !snap.HaveReading {
		t.Error("expected tracker to record a reading")
	}
	if !snap.MQTTConnected {
		t.Error("expected tracker to record mqtt connectivity")
	}
}

func TestRunLoopShutdownEvent(t *testing.T) {
	pulser := gpio.NewFakePulser([]time.Duration{300 * time.Microsecond})
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), status.Config{})

	pumpLoop(t, pulser, pub, tracker, 0, 3)

	if len(pub.SystemEvents) == 0 {
		t.Fatal("expected a shutdown system event")
	}
	last := pub.SystemEvents[len(pub.SystemEvents)-1]
	if last.Event != "SHUTDOWN" {
		t.Errorf("event: got %q", last.Event)
	}
	if last.Reason != "SIGTERM" {
		t.Errorf("reason: got %q", last.Reason)
	}
	if !last.Retained {
		t.Error("shutdown event should be retained")
	}
	if last.RawPayload == nil {
		t.Error("shutdown event should carry a status snapshot")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	pulser := gpio.NewFakePulser([]time.Duration{300 * time.Microsecond})
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), status.Config{})

	pumpLoop(t, pulser, pub, tracker, 10*time.Millisecond, 20)

	var heartbeats int
	for _, e := range pub.SystemEvents {
		if e.Event == "HEARTBEAT" {
			heartbeats++
		}
	}
	if heartbeats == 0 {
		t.Error("expected at least one heartbeat event")
	}
}

func TestRunLoopSurvivesPublishErrors(t *testing.T) {
	pulser := gpio.NewFakePulser([]time.Duration{300 * time.Microsecond})
	pub := mqtt.NewFakePublisher()
	pub.PublishError = os.ErrClosed
	tracker := status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), status.Config{})

	// Must not return or panic despite every publish failing.
	pumpLoop(t, pulser, pub, tracker, 0, 10)
}
