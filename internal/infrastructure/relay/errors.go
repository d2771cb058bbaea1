package relay

import "errors"

// ErrPublishFailed is returned when a relay publish fails. Local delivery
// has usually already happened by then; callers log and continue.
var ErrPublishFailed = errors.New("relay: publish failed")
