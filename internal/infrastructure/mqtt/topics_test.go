package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		got  string
		want string
	}{
		{topics.Event("motion", "sensor-hall-01"), "homestream/event/motion/sensor-hall-01"},
		{topics.Event("state", "light-kitchen"), "homestream/event/state/light-kitchen"},
		{topics.AllEvents(), "homestream/event/+/+"},
		{topics.SystemStatus(), "homestream/system/status"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}
