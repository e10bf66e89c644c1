package automation

import "errors"

var (
	// ErrInvalidRule is returned when a configured rule is invalid.
	ErrInvalidRule = errors.New("automation: invalid rule")

	// ErrInvalidAction is returned when a rule action is invalid.
	ErrInvalidAction = errors.New("automation: invalid action")

	// ErrPublisherUnavailable is returned for publish actions without an
	// MQTT publisher.
	ErrPublisherUnavailable = errors.New("automation: no publisher")
)
