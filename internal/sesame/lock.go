package sesame

import (
	"fmt"
	"strings"
)

// LockState is the three-valued lock state shown to peers.
type LockState uint8

const (
	// LockUnlocked is the zero value.
	LockUnlocked LockState = iota
	LockLocked
	LockJammed
)

// String returns the canonical lower-case name.
func (s LockState) String() string {
	switch s {
	case LockLocked:
		return "locked"
	case LockUnlocked:
		return "unlocked"
	case LockJammed:
		return "jammed"
	default:
		return fmt.Sprintf("lockstate(%d)", uint8(s))
	}
}

// ParseLockState accepts the canonical names as well as the LOCK/UNLOCK
// command words, case-insensitively.
func ParseLockState(s string) (LockState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "locked", "lock":
		return LockLocked, nil
	case "unlocked", "unlock":
		return LockUnlocked, nil
	case "jammed":
		return LockJammed, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLockState, s)
}

// MarshalText implements encoding.TextMarshaler.
func (s LockState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LockState) UnmarshalText(text []byte) error {
	v, err := ParseLockState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// LockStatusFrame is the outbound status representation sent to peers.
type LockStatusFrame struct {
	Stopped   bool `json:"stopped"`
	Critical  bool `json:"critical"`
	Locked    bool `json:"locked"`
	Unlocking bool `json:"unlocking"`
}

// FrameFor derives the status frame for a lock state. A jammed lock is
// critical and neither locked nor unlocking.
func FrameFor(state LockState) LockStatusFrame {
	f := LockStatusFrame{Stopped: true}
	if state == LockJammed {
		f.Critical = true
		return f
	}
	f.Locked = state == LockLocked
	f.Unlocking = !f.Locked
	return f
}

// LockEntity is a controllable lock. The shared lock carries the
// server-wide state; any other entity is bound to exactly one Trigger.
type LockEntity struct {
	ID    string
	Name  string
	State LockState
}

// LockSnapshot is a copy of a lock entity's observable state.
type LockSnapshot struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	State   LockState `json:"state"`
	Shared  bool      `json:"shared"`
	Trigger string    `json:"trigger,omitempty"`
}
