package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/sonar-sensor/internal/sonar"
)

func testReading() sonar.Reading {
	return sonar.Reading{
		Time:         time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Distance:     3.879,
		Valid:        true,
		Pulses:       3,
		ValidSamples: 2,
	}
}

func TestFormatPayloadValidReading(t *testing.T) {
	data, err := FormatPayload(testReading())
	if err != nil {
		t.Fatalf("format payload: %v", err)
	}

	var got Payload
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Sonar.Timestamp != "2026-01-01T12:00:00Z" {
		t.Errorf("timestamp: got %q", got.Sonar.Timestamp)
	}
	if got.Sonar.DistanceCM == nil {
		t.Fatal("expected distance_cm to be set for a valid reading")
	}
	if *got.Sonar.DistanceCM != 3.88 {
		t.Errorf("distance_cm: got %v, want 3.88 (rounded)", *got.Sonar.DistanceCM)
	}
	if !got.Sonar.Valid {
		t.Error("expected valid=true")
	}
	if got.Sonar.Pulses != 3 || got.Sonar.ValidSamples != 2 {
		t.Errorf("pulses/valid_samples: got %d/%d", got.Sonar.Pulses, got.Sonar.ValidSamples)
	}
}

func TestFormatPayloadNoReading(t *testing.T) {
	r := sonar.Reading{
		Time:   time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Pulses: 3,
	}
	data, err := FormatPayload(r)
	if err != nil {
		t.Fatalf("format payload: %v", err)
	}

	// distance_cm must serialize as an explicit null.
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	dist, ok := raw["sonar"]["distance_cm"]
	if !ok {
		t.Fatal("expected distance_cm field to be present")
	}
	if string(dist) != "null" {
		t.Errorf("expected distance_cm null, got %s", dist)
	}

	var got Payload
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Sonar.Valid {
		t.Error("expected valid=false")
	}
	if got.Sonar.ValidSamples != 0 {
		t.Errorf("expected 0 valid samples, got %d", got.Sonar.ValidSamples)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}
	data, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("format system payload: %v", err)
	}

	var got SystemPayload
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.System.Event != "SHUTDOWN" {
		t.Errorf("event: got %q", got.System.Event)
	}
	if got.System.Reason != "SIGTERM" {
		t.Errorf("reason: got %q", got.System.Reason)
	}
	if got.System.Timestamp != "2026-01-01T12:00:00Z" {
		t.Errorf("timestamp: got %q", got.System.Timestamp)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Event:     "STARTUP",
	}
	data, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("format system payload: %v", err)
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["system"]["reason"]; ok {
		t.Error("expected reason to be omitted when empty")
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"custom":true}}`)
	event := SystemEvent{Event: "HEARTBEAT", RawPayload: raw}
	data, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("format system payload: %v", err)
	}
	if string(data) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", data)
	}
}

func TestFakePublisherRecords(t *testing.T) {
	f := NewFakePublisher()
	if err := f.Publish(testReading()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(f.Readings) != 1 || len(f.Payloads) != 1 {
		t.Fatalf("expected 1 recorded reading/payload, got %d/%d", len(f.Readings), len(f.Payloads))
	}

	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err != nil {
		t.Fatalf("publish system: %v", err)
	}
	if len(f.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(f.SystemEvents))
	}

	f.Close()
	if !f.Closed {
		t.Error("expected Closed")
	}

	f.Reset()
	if len(f.Readings) != 0 || len(f.SystemEvents) != 0 || f.Closed {
		t.Error("Reset should clear recorded state")
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("boom")
	if err := f.Publish(testReading()); err == nil {
		t.Error("expected publish error")
	}
	if len(f.Readings) != 0 {
		t.Error("failed publish should not record")
	}

	f.PublishSystemError = errors.New("boom")
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected publish system error")
	}
}
