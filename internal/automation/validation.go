package automation

import (
	"fmt"
	"strings"
)

// maxNameLength caps rule names. Long names are a UI problem, not a
// storage one, but the cap keeps log lines sane.
const maxNameLength = 128

// maxActions caps the actions a single rule may issue.
const maxActions = 32

// Validate checks a rule before it is persisted. It returns the first
// problem found, wrapped around the matching sentinel error.
func (r *Rule) Validate() error {
	if r.UserID <= 0 {
		return fmt.Errorf("%w: user id %d", ErrInvalidUser, r.UserID)
	}

	name := strings.TrimSpace(r.Name)
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}

	if !r.Trigger.Type.Valid() {
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, r.Trigger.Type)
	}

	if len(r.Actions) == 0 {
		return ErrNoActions
	}
	if len(r.Actions) > maxActions {
		return fmt.Errorf("%w: %d actions exceeds limit of %d", ErrInvalidAction, len(r.Actions), maxActions)
	}
	for i, action := range r.Actions {
		if action.DeviceID <= 0 {
			return fmt.Errorf("%w: action %d has device id %d", ErrInvalidAction, i, action.DeviceID)
		}
		if len(action.State) == 0 {
			return fmt.Errorf("%w: action %d has no state", ErrInvalidAction, i)
		}
	}

	return nil
}
