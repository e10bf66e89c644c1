package sesame

import (
	"context"
	"errors"
	"fmt"
)

// Synchronizer decides which lock status frame goes to which peer.
//
// A bound Trigger's LockEntity is the only source of truth for its peer.
// Every other Trigger mirrors the shared lock. Methods run on the dispatch
// goroutine.
type Synchronizer struct {
	engine     Engine
	registry   *Registry
	shared     *LockEntity
	store      LockStateStore
	observer   Observer
	logger     Logger
	echoOrigin bool
}

// SynchronizerOptions configures a Synchronizer.
type SynchronizerOptions struct {
	Engine   Engine
	Registry *Registry
	Shared   *LockEntity

	// Store persists shared lock state changes. Optional.
	Store LockStateStore
	// Observer receives lock state and send notifications. Optional.
	Observer Observer
	Logger   Logger

	// EchoOrigin re-sends the resulting status to the peer whose physical
	// command caused the change.
	EchoOrigin bool
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(opts SynchronizerOptions) (*Synchronizer, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Shared == nil {
		return nil, fmt.Errorf("shared lock is required")
	}
	s := &Synchronizer{
		engine:     opts.Engine,
		registry:   opts.Registry,
		shared:     opts.Shared,
		store:      opts.Store,
		observer:   opts.Observer,
		logger:     opts.Logger,
		echoOrigin: opts.EchoOrigin,
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s, nil
}

// Shared returns the shared lock entity.
func (s *Synchronizer) Shared() *LockEntity {
	return s.shared
}

// SendTo sends the frame for state to one trigger's peer. A peer without a
// session is not contacted and ErrNoSession is returned.
func (s *Synchronizer) SendTo(t *Trigger, state LockState) error {
	frame := FrameFor(state)
	addr := t.address
	if !s.engine.HasSession(addr) {
		err := fmt.Errorf("%w: %s", ErrNoSession, t)
		s.logger.Warn("no session, cannot send lock status", "trigger", t.name, "address", addr.String())
		s.observer.StatusSent(addr, frame, err)
		return err
	}

	s.logger.Debug("sending lock status", "trigger", t.name, "address", addr.String(), "state", state.String())
	err := s.engine.SendStatus(&addr, frame)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrSendFailed, t, err)
		s.logger.Warn("failed to send lock status", "trigger", t.name, "error", err)
	}
	s.observer.StatusSent(addr, frame, err)
	return err
}

// Broadcast sends state to every shared Trigger that holds a session, in
// registration order, skipping bound Triggers and exclude. A failure to one
// peer does not stop delivery to the rest; the joined errors of all failed
// sends are returned.
func (s *Synchronizer) Broadcast(state LockState, exclude *PeerAddress) error {
	var errs []error
	for _, t := range s.registry.All() {
		if t.kind == TriggerBound {
			continue
		}
		if exclude != nil && t.address == *exclude {
			continue
		}
		if !s.engine.HasSession(t.address) {
			continue
		}
		if err := s.SendTo(t, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reconcile sends the state a freshly connected peer should see: its bound
// entity's state, or the shared state.
func (s *Synchronizer) Reconcile(t *Trigger) error {
	if t.kind == TriggerBound {
		return s.SendTo(t, t.lock.State)
	}
	return s.SendTo(t, s.shared.State)
}

// ApplyPhysical reflects a lock or unlock command received from t's peer.
// Other item codes are ignored. changed reports whether a state was
// written.
func (s *Synchronizer) ApplyPhysical(ctx context.Context, t *Trigger, item ItemCode) (changed bool, err error) {
	var state LockState
	switch item {
	case ItemLock:
		state = LockLocked
	case ItemUnlock:
		state = LockUnlocked
	default:
		return false, nil
	}

	if t.kind == TriggerBound {
		s.setBound(t, state)
		if s.echoOrigin {
			return true, s.SendTo(t, state)
		}
		return true, nil
	}

	s.setShared(ctx, state)
	var exclude *PeerAddress
	if !s.echoOrigin {
		addr := t.address
		exclude = &addr
	}
	return true, s.Broadcast(state, exclude)
}

// Control is the local control path for a lock entity. A bound entity's
// state goes to its own peer only; the shared state goes to every shared
// Trigger with a session.
func (s *Synchronizer) Control(ctx context.Context, lockID string, state LockState) error {
	if lockID == s.shared.ID {
		s.setShared(ctx, state)
		return s.Broadcast(state, nil)
	}
	t := s.registry.ByLock(lockID)
	if t == nil {
		return fmt.Errorf("%w: %q", ErrUnknownLock, lockID)
	}
	s.setBound(t, state)
	return s.SendTo(t, state)
}

// Lock returns the snapshot of a lock entity by ID.
func (s *Synchronizer) Lock(lockID string) (LockSnapshot, bool) {
	if lockID == s.shared.ID {
		return s.sharedSnapshot(), true
	}
	t := s.registry.ByLock(lockID)
	if t == nil {
		return LockSnapshot{}, false
	}
	return boundSnapshot(t), true
}

// Locks returns every lock entity, the shared lock first.
func (s *Synchronizer) Locks() []LockSnapshot {
	out := []LockSnapshot{s.sharedSnapshot()}
	for _, t := range s.registry.All() {
		if t.kind == TriggerBound {
			out = append(out, boundSnapshot(t))
		}
	}
	return out
}

func (s *Synchronizer) setBound(t *Trigger, state LockState) {
	t.lock.State = state
	s.observer.LockState(boundSnapshot(t))
}

func (s *Synchronizer) setShared(ctx context.Context, state LockState) {
	s.shared.State = state
	if s.store != nil {
		if err := s.store.SaveLockState(ctx, state); err != nil {
			s.logger.Error("failed to persist shared lock state", "state", state.String(), "error", err)
		}
	}
	s.observer.LockState(s.sharedSnapshot())
}

func (s *Synchronizer) sharedSnapshot() LockSnapshot {
	return LockSnapshot{ID: s.shared.ID, Name: s.shared.Name, State: s.shared.State, Shared: true}
}

func boundSnapshot(t *Trigger) LockSnapshot {
	return LockSnapshot{ID: t.lock.ID, Name: t.lock.Name, State: t.lock.State, Trigger: t.name}
}
