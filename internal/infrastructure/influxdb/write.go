package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteEventMetric records one normalized ingestion event.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - source: Where the raw event arrived ("kafka", "queue", "mqtt", "internal")
//   - eventType: The canonical notification type (e.g., "device.state_changed")
func (c *Client) WriteEventMetric(source, eventType string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"ingest_events",
		map[string]string{
			"source": source,
			"type":   eventType,
		},
		map[string]interface{}{
			"count": int64(1),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeliveryMetric records one local fan-out delivery attempt.
//
// Parameters:
//   - eventType: The notification type delivered
//   - recipients: Number of local connections written to
//   - broadcast: Whether this was a broadcast delivery
func (c *Client) WriteDeliveryMetric(eventType string, recipients int, broadcast bool) {
	if !c.IsConnected() {
		return
	}

	kind := "user"
	if broadcast {
		kind = "broadcast"
	}

	point := write.NewPoint(
		"deliveries",
		map[string]string{
			"type": eventType,
			"kind": kind,
		},
		map[string]interface{}{
			"recipients": int64(recipients),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSessionMetric records the registry's connection gauges.
// Called periodically by the liveness supervisor.
func (c *Client) WriteSessionMetric(users, connections int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sessions",
		nil,
		map[string]interface{}{
			"users":       int64(users),
			"connections": int64(connections),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
