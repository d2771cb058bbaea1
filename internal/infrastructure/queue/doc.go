// Package queue implements the acknowledge/requeue work queue on Redis
// Streams.
//
// Each stream is consumed through a consumer group shared by all Homestream
// instances, giving point-to-point (work-queue) delivery: every message is
// handled by exactly one instance per delivery attempt. A message is
// acknowledged (XACK) only after its handler succeeds; a failed handler
// requeues a fresh copy. Messages stranded in a dead instance's pending
// list are auto-claimed after an idle threshold.
//
// Delivery is at-least-once and unordered.
package queue
