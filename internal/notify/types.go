package notify

import "time"

// Notification types pushed to clients. The type string doubles as the
// routing key: broadcast types reach every authenticated connection,
// everything else is targeted at a single user.
const (
	TypeDeviceStateChanged = "device.state_changed"
	TypeDeviceAdded        = "device.added"
	TypeMotionDetected     = "motion.detected"
	TypeSecurityAlert      = "security.alert"
	TypeAutomationExecuted = "automation.executed"
	TypeAutomationCreated  = "automation.created"
)

// broadcastTypes lists the notification types delivered to every
// authenticated user rather than a single recipient.
var broadcastTypes = map[string]struct{}{
	TypeDeviceAdded:   {},
	TypeSecurityAlert: {},
}

// IsBroadcastType reports whether notifications of this type go to all
// authenticated users.
func IsBroadcastType(notificationType string) bool {
	_, ok := broadcastTypes[notificationType]
	return ok
}

// Notification is the JSON payload pushed over a websocket connection.
//
// UserID is nil for broadcast notifications. Data carries type-specific
// detail (device state, rule name) and is passed through untouched.
type Notification struct {
	Type      string         `json:"type"`
	UserID    *int64         `json:"userId,omitempty"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
	Broadcast bool           `json:"broadcast,omitempty"`
}

// New builds a targeted notification for a user.
func New(notificationType string, userID int64, message string, data map[string]any) Notification {
	return Notification{
		Type:      notificationType,
		UserID:    &userID,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewBroadcast builds a notification for every authenticated user.
func NewBroadcast(notificationType, message string, data map[string]any) Notification {
	return Notification{
		Type:      notificationType,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Broadcast: true,
	}
}
