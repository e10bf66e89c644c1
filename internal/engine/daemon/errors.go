package daemon

import "errors"

var (
	// ErrNotRunning is returned by HealthCheck when the daemon is down.
	ErrNotRunning = errors.New("engine daemon not running")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("engine daemon already started")

	// ErrWatchdog is the exit cause when the watchdog killed the daemon.
	ErrWatchdog = errors.New("engine daemon unhealthy")
)
