// Package kafka wraps the sarama consumer-group client for the log broker.
//
// Domain events (device state changes, sensor detections, automation
// outcomes) arrive on partitioned topics keyed by entity id. The wrapper
// guarantees:
//
//   - Sequential handling per partition, preserving per-key ordering
//   - Offset commit only after a handler succeeds (at-least-once)
//   - Resume from committed offsets after rebalance or crash
//   - An infinite reconnect loop; broker loss never kills the consumer
//
// Delivery across partitions and topics is unordered. Redelivery after a
// crash between handling and commit is expected and handled downstream.
package kafka
