package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrRuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("automation: rule not found")

	// ErrRuleExists is returned when creating a rule with an ID that already exists.
	ErrRuleExists = errors.New("automation: rule already exists")

	// ErrInvalidName is returned when a rule name is empty or too long.
	ErrInvalidName = errors.New("automation: invalid name")

	// ErrInvalidTrigger is returned when a trigger type is unknown.
	ErrInvalidTrigger = errors.New("automation: invalid trigger")

	// ErrInvalidAction is returned when a rule action is invalid.
	ErrInvalidAction = errors.New("automation: invalid action")

	// ErrNoActions is returned when a rule has no actions defined.
	ErrNoActions = errors.New("automation: no actions")

	// ErrInvalidUser is returned when a rule has no owning user.
	ErrInvalidUser = errors.New("automation: invalid user")
)
