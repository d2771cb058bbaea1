package ingest

// Event is the wire shape of a raw event arriving from any source: the
// log broker, the work queue, or the telemetry feed. Fields beyond Type
// are optional; normalization decides what each type requires.
type Event struct {
	Type     string         `json:"type"`
	UserID   int64          `json:"userId,omitempty"`
	DeviceID int64          `json:"deviceId,omitempty"`
	State    map[string]any `json:"state,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// triggerRequest is the work-queue payload that fires time and sensor
// automations directly, bypassing event normalization.
type triggerRequest struct {
	Type    string `json:"type"`
	UserID  int64  `json:"userId"`
	Trigger string `json:"trigger"`
}

// triggerRequestType marks a queue payload as an automation trigger
// request rather than an event.
const triggerRequestType = "automation.trigger"
