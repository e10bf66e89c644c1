package mqttlink

import "errors"

var (
	// ErrNotReady is returned when the daemon did not report ready in time.
	ErrNotReady = errors.New("mqttlink: engine daemon not ready")

	// ErrNotStarted is returned for requests made before Begin.
	ErrNotStarted = errors.New("mqttlink: link not started")

	// ErrInvalidMessage is returned for undecodable daemon messages.
	ErrInvalidMessage = errors.New("mqttlink: invalid message")
)
