package automation

import "time"

// TriggerType identifies what kind of event fires a rule.
type TriggerType string

const (
	// TriggerTime rules fire on schedule ticks delivered through the
	// command queue.
	TriggerTime TriggerType = "time"

	// TriggerDevice rules fire on device state changes.
	TriggerDevice TriggerType = "device"

	// TriggerSensor rules fire on sensor readings delivered through the
	// command queue or the telemetry source.
	TriggerSensor TriggerType = "sensor"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerTime, TriggerDevice, TriggerSensor:
		return true
	default:
		return false
	}
}

// Trigger describes when a rule fires.
//
// For device triggers, Conditions must name the device ("deviceId") and
// may constrain state fields; every listed field must match the reported
// state exactly. A rule with no conditions never fires.
type Trigger struct {
	Type       TriggerType    `json:"type"`
	Conditions map[string]any `json:"conditions"`
}

// Action is one device command a rule issues when it fires.
type Action struct {
	DeviceID int64          `json:"deviceId"`
	State    map[string]any `json:"state"`
}

// Rule is a user-defined automation: when the trigger matches, the
// actions are issued in order.
type Rule struct {
	ID           string     `json:"id"`
	UserID       int64      `json:"userId"`
	Name         string     `json:"name"`
	Enabled      bool       `json:"enabled"`
	Trigger      Trigger    `json:"trigger"`
	Actions      []Action   `json:"actions"`
	LastExecuted *time.Time `json:"lastExecuted,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// DeviceCommand is the payload published to the command stream for each
// executed action. Device services consume these and drive the hardware.
type DeviceCommand struct {
	DeviceID     int64          `json:"deviceId"`
	State        map[string]any `json:"state"`
	UserID       int64          `json:"userId,omitempty"`
	AutomationID string         `json:"automationId,omitempty"`
	Timestamp    string         `json:"timestamp"`
}
