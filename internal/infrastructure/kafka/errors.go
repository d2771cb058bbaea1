package kafka

import "errors"

// Package errors for the kafka consumer wrapper.
var (
	// ErrInvalidConfig is returned when consumer configuration is unusable.
	ErrInvalidConfig = errors.New("kafka: invalid config")

	// ErrConnectionFailed is returned when the broker cluster is unreachable
	// at construction time. Failures after construction are retried forever
	// by Run and never surface as errors.
	ErrConnectionFailed = errors.New("kafka: connection failed")
)
