package ingest

import (
	"testing"

	"github.com/homestream/homestream/internal/notify"
)

func TestNormalizeDeviceStateChanged(t *testing.T) {
	n, ok := normalize(Event{
		Type:     notify.TypeDeviceStateChanged,
		UserID:   7,
		DeviceID: 3,
		State:    map[string]any{"on": true},
	})
	if !ok {
		t.Fatal("normalize() rejected a valid event")
	}
	if n.UserID == nil || *n.UserID != 7 {
		t.Fatalf("UserID = %v, want 7", n.UserID)
	}
	if n.Message != "Device 3 state changed" {
		t.Fatalf("Message = %q", n.Message)
	}
	if n.Data["deviceId"] != int64(3) {
		t.Fatalf("Data[deviceId] = %v, want 3", n.Data["deviceId"])
	}
	state, ok := n.Data["state"].(map[string]any)
	if !ok || state["on"] != true {
		t.Fatalf("Data[state] = %v, want on:true", n.Data["state"])
	}
	if n.Broadcast {
		t.Fatal("device.state_changed must not be broadcast")
	}
}

func TestNormalizeBroadcastTypes(t *testing.T) {
	// Broadcast types need no recipient.
	n, ok := normalize(Event{Type: notify.TypeSecurityAlert})
	if !ok {
		t.Fatal("normalize() rejected a broadcast event without user")
	}
	if !n.Broadcast || n.UserID != nil {
		t.Fatalf("normalize() = %+v, want broadcast without user", n)
	}
	if n.Message != "Security alert" {
		t.Fatalf("Message = %q", n.Message)
	}
}

func TestNormalizeCustomMessageWins(t *testing.T) {
	n, ok := normalize(Event{
		Type:    notify.TypeMotionDetected,
		UserID:  7,
		Message: "Motion in the hallway",
	})
	if !ok {
		t.Fatal("normalize() rejected a valid event")
	}
	if n.Message != "Motion in the hallway" {
		t.Fatalf("Message = %q, want the event's own text", n.Message)
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{"unknown type", Event{Type: "thermostat.exploded", UserID: 7}},
		{"empty type", Event{UserID: 7}},
		{"targeted without user", Event{Type: notify.TypeMotionDetected}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := normalize(tt.ev); ok {
				t.Fatalf("normalize(%+v) accepted, want rejected", tt.ev)
			}
		})
	}
}

func TestNormalizePassesDataThrough(t *testing.T) {
	n, ok := normalize(Event{
		Type: notify.TypeDeviceAdded,
		Data: map[string]any{"name": "Hallway lamp"},
	})
	if !ok {
		t.Fatal("normalize() rejected a valid event")
	}
	if n.Data["name"] != "Hallway lamp" {
		t.Fatalf("Data = %v, want name preserved", n.Data)
	}
}
