// Package influxdb provides batched, non-blocking delivery telemetry.
//
// Homestream records ingestion throughput per source and event type,
// fan-out delivery counts, and session gauges. Writes never block the
// hot path; failures surface through an async error callback and are
// logged, not retried. The integration is disabled by default
// (influxdb.enabled in config.yaml).
package influxdb
