// Package ingest funnels raw events from every source into one
// processing path.
//
// Events arrive from the log broker, the work queue, and optionally the
// sensor telemetry feed. Each is normalized into a notification, handed
// to the fan-out stage, and, for device state changes, evaluated against
// the owning user's automations. Sources deliver at least once; the
// multiplexer only surfaces infrastructure failures back to them, so a
// poisoned message is dropped rather than redelivered forever.
package ingest
