// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/sonar-sensor/internal/sonar"
)

// Topic is the MQTT topic for distance readings.
const Topic = "robot/sonar/sensor/readings"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "robot/sonar/sensor/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a distance reading to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(r sonar.Reading) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Sonar SonarPayload `json:"sonar"`
}

// SonarPayload contains one burst's result. DistanceCM is null when the
// burst produced no valid echo, so consumers can tell "nothing in range"
// from a zero-distance object.
type SonarPayload struct {
	Timestamp    string   `json:"timestamp"`
	DistanceCM   *float64 `json:"distance_cm"`
	Valid        bool     `json:"valid"`
	Pulses       int      `json:"pulses"`
	ValidSamples int      `json:"valid_samples"`
}

// FormatPayload creates the JSON payload for a distance reading. Distances
// are rounded to a hundredth of a centimeter; finer digits are noise from
// the averaging division.
func FormatPayload(r sonar.Reading) ([]byte, error) {
	payload := Payload{
		Sonar: SonarPayload{
			Timestamp:    r.Time.UTC().Format(time.RFC3339Nano),
			Valid:        r.Valid,
			Pulses:       r.Pulses,
			ValidSamples: r.ValidSamples,
		},
	}
	if r.Valid {
		cm := math.Round(r.Distance*100) / 100
		payload.Sonar.DistanceCM = &cm
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
