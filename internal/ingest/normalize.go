package ingest

import (
	"fmt"

	"github.com/homestream/homestream/internal/notify"
)

// defaultMessages supplies the human-readable text for events that carry
// none of their own. Unknown types have no entry and are dropped.
var defaultMessages = map[string]string{
	notify.TypeDeviceStateChanged: "Device state changed",
	notify.TypeDeviceAdded:        "New device added",
	notify.TypeMotionDetected:     "Motion detected",
	notify.TypeSecurityAlert:      "Security alert",
	notify.TypeAutomationExecuted: "Automation executed",
	notify.TypeAutomationCreated:  "Automation created",
}

// normalize converts a raw event into a deliverable notification. It
// returns false when the event cannot be delivered: an unknown type, or
// a targeted type without a recipient. Callers drop such events with a
// warning; they are never an error worth redelivering.
func normalize(ev Event) (notify.Notification, bool) {
	message, known := defaultMessages[ev.Type]
	if !known {
		return notify.Notification{}, false
	}
	if ev.Message != "" {
		message = ev.Message
	}

	data := make(map[string]any, len(ev.Data)+2)
	for k, v := range ev.Data {
		data[k] = v
	}
	if ev.DeviceID > 0 {
		data["deviceId"] = ev.DeviceID
		if message == defaultMessages[ev.Type] && ev.Type == notify.TypeDeviceStateChanged {
			message = fmt.Sprintf("Device %d state changed", ev.DeviceID)
		}
	}
	if len(ev.State) > 0 {
		data["state"] = ev.State
	}
	if len(data) == 0 {
		data = nil
	}

	if notify.IsBroadcastType(ev.Type) {
		return notify.NewBroadcast(ev.Type, message, data), true
	}

	if ev.UserID <= 0 {
		return notify.Notification{}, false
	}
	return notify.New(ev.Type, ev.UserID, message, data), true
}
