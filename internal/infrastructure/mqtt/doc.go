// Package mqtt wraps paho.mqtt.golang for the optional sensor-telemetry
// source.
//
// Protocol bridges publish motion and device telemetry on
// homestream/event/{kind}/{entity_id}; the ingestion multiplexer
// subscribes to the wildcard and normalizes these alongside the broker
// sources. The wrapper handles reconnection with backoff, subscription
// restoration, LWT-based offline detection, and panic-safe handlers.
//
// This source is config-gated (mqtt.enabled) and the service runs fully
// without it.
package mqtt
