package mqtt

import "fmt"

// Topic prefixes for the Homestream MQTT namespace.
//
// Protocol bridges publish sensor and device telemetry on the flat scheme
// homestream/event/{kind}/{entity_id}.
const (
	// TopicPrefix is the base for all Homestream topics.
	TopicPrefix = "homestream"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "homestream/system"
)

// Topics provides builders for Homestream MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// Event returns the telemetry topic for one entity.
//
// Example: homestream/event/motion/sensor-hall-01
func (Topics) Event(kind, entityID string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, kind, entityID)
}

// AllEvents returns the wildcard subscription covering every telemetry
// event from every bridge.
//
// Example: homestream/event/+/+
func (Topics) AllEvents() string {
	return TopicPrefix + "/event/+/+"
}

// SystemStatus returns the topic carrying this service's online status
// and Last Will.
//
// Example: homestream/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
