package queue

import "errors"

// ErrPublishFailed is returned when a message cannot be appended to a
// stream. Callers decide whether to retry; the queue does not buffer
// unpublished messages.
var ErrPublishFailed = errors.New("queue: publish failed")
