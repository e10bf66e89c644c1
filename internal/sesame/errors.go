package sesame

import "errors"

// Domain errors for the sesame package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, sesame.ErrFailed) {
//	    // component refused to start or reset failed
//	}
var (
	// ErrSetupFailed is returned when Setup cannot bring the server up.
	// The server is marked failed and performs no further work.
	ErrSetupFailed = errors.New("sesame: setup failed")

	// ErrFailed is returned by operations on a server in the failed state.
	ErrFailed = errors.New("sesame: component failed")

	// ErrNotStarted is returned when an operation needs a running server.
	ErrNotStarted = errors.New("sesame: server not started")

	// ErrStarted is returned by configuration-time operations after Setup.
	ErrStarted = errors.New("sesame: server already started")

	// ErrUnknownTrigger is returned when no trigger matches a name or address.
	ErrUnknownTrigger = errors.New("sesame: unknown trigger")

	// ErrDuplicateTrigger is returned when two triggers share a name or address.
	ErrDuplicateTrigger = errors.New("sesame: duplicate trigger")

	// ErrUnknownLock is returned when no lock entity matches an ID.
	ErrUnknownLock = errors.New("sesame: unknown lock")

	// ErrNoSession is returned when sending to a peer without an active session.
	ErrNoSession = errors.New("sesame: no session")

	// ErrSendFailed is returned when the engine rejects a status frame.
	ErrSendFailed = errors.New("sesame: send failed")

	// ErrSecretStore is returned when the secret cannot be loaded or persisted.
	ErrSecretStore = errors.New("sesame: secret store")

	// ErrInvalidAddress is returned when a peer address cannot be parsed.
	ErrInvalidAddress = errors.New("sesame: invalid address")

	// ErrInvalidSecret is returned for secrets of the wrong size.
	ErrInvalidSecret = errors.New("sesame: invalid secret")

	// ErrInvalidLockState is returned when a lock state name is not recognised.
	ErrInvalidLockState = errors.New("sesame: invalid lock state")

	// ErrDispatcherStopped is returned by Call when the dispatch loop has exited.
	ErrDispatcherStopped = errors.New("sesame: dispatcher stopped")
)
