package sesame

import "context"

// Handlers are the callbacks an Engine delivers from inside its own state
// machine step. Implementations must not call back into the Engine; the
// Server's handlers only capture their arguments and defer the work.
type Handlers struct {
	OnRegistration func(addr PeerAddress, secret Secret)
	OnCommand      func(addr PeerAddress, item ItemCode, tag string, tagType float64) ResultCode
	OnConnect      func(addr PeerAddress)
	OnDisconnect   func(addr PeerAddress, reason int)
}

// Engine is the wireless protocol engine: advertising, pairing, session
// encryption and frame decoding. Calls return immediately with success or
// failure; there is no retry at this layer.
type Engine interface {
	// Begin initialises the engine as a SESAME 5 device with the given UUID.
	Begin(ctx context.Context, uuid string) error
	// Update runs one poll step of the engine state machine. Handlers fire
	// from inside Update or from the engine's own goroutine.
	Update()
	StartAdvertising() error
	StopAdvertising() error
	// SendStatus sends f to dest, or to every session when dest is nil.
	SendStatus(dest *PeerAddress, f LockStatusFrame) error
	Disconnect(addr PeerAddress) error
	HasSession(addr PeerAddress) bool
	IsRegistered() bool
	SetRegistered(secret Secret) error
	SetHandlers(h Handlers)
}

// Restarter restarts the process after a successful reset.
type Restarter interface {
	Restart()
}

// RestartFunc adapts a function to Restarter.
type RestartFunc func()

// Restart calls f.
func (f RestartFunc) Restart() { f() }

// LockStateStore persists the shared lock state. Optional.
type LockStateStore interface {
	LoadLockState(ctx context.Context) (state LockState, found bool, err error)
	SaveLockState(ctx context.Context, state LockState) error
}

// Logger is the logging interface used by the sesame package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
