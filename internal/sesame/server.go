package sesame

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultPollInterval is the engine poll period when none is configured.
	DefaultPollInterval = 20 * time.Millisecond

	// DefaultSharedLockID identifies the server-wide shared lock.
	DefaultSharedLockID = "shared"

	// storeTimeout bounds persistence calls made from deferred work.
	storeTimeout = 5 * time.Second
)

// ServerOptions configures a Server.
type ServerOptions struct {
	// UUID is the SESAME device UUID the engine advertises. Required.
	UUID string
	// Engine is the wireless protocol engine. Required.
	Engine Engine
	// Store persists the pairing secret. Required.
	Store SecretStore

	// SharedLock seeds the shared lock entity. Its State is used when
	// LockStore holds no saved state. ID defaults to DefaultSharedLockID.
	SharedLock LockEntity
	// LockStore persists the shared lock state. Optional.
	LockStore LockStateStore

	// Observer receives notifications on the dispatch goroutine. Optional.
	Observer Observer
	// Restarter is invoked after a successful Reset. Optional.
	Restarter Restarter

	// EchoOrigin re-sends status to the peer that caused the change.
	EchoOrigin bool
	// PollInterval is the engine poll period. Default DefaultPollInterval.
	PollInterval time.Duration
	// Now overrides the clock. Default time.Now.
	Now func() time.Time
}

// Status is a summary of the server state.
type Status struct {
	Started    bool `json:"started"`
	Running    bool `json:"running"`
	Failed     bool `json:"failed"`
	Registered bool `json:"registered"`
	Triggers   int  `json:"triggers"`
}

// Server owns the registry, synchronizer and dispatcher and wires them to
// the engine callbacks.
type Server struct {
	uuid         string
	engine       Engine
	store        SecretStore
	lockStore    LockStateStore
	observer     Observer
	restarter    Restarter
	pollInterval time.Duration
	now          func() time.Time

	registry   *Registry
	sync       *Synchronizer
	dispatcher *Dispatcher
	shared     *LockEntity

	// reg is owned by the dispatch goroutine; registered mirrors it for
	// readers elsewhere.
	reg        RegistrationState
	registered atomic.Bool
	// erased is set on the dispatch goroutine once Reset has erased the
	// secret; later registrations are not persisted.
	erased bool

	started atomic.Bool
	running atomic.Bool
	failed  atomic.Bool
	halt    chan struct{}
	haltOne sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewServer creates a Server. Triggers are added with AddTrigger before
// Setup.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.UUID == "" {
		return nil, fmt.Errorf("uuid is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("secret store is required")
	}

	shared := opts.SharedLock
	if shared.ID == "" {
		shared.ID = DefaultSharedLockID
	}
	if shared.Name == "" {
		shared.Name = shared.ID
	}

	s := &Server{
		uuid:         opts.UUID,
		engine:       opts.Engine,
		store:        opts.Store,
		lockStore:    opts.LockStore,
		observer:     opts.Observer,
		restarter:    opts.Restarter,
		pollInterval: opts.PollInterval,
		now:          opts.Now,
		registry:     NewRegistry(),
		dispatcher:   NewDispatcher(),
		shared:       &shared,
		halt:         make(chan struct{}),
		logger:       noopLogger{},
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.now == nil {
		s.now = time.Now
	}

	var err error
	s.sync, err = NewSynchronizer(SynchronizerOptions{
		Engine:     s.engine,
		Registry:   s.registry,
		Shared:     s.shared,
		Store:      s.lockStore,
		Observer:   s.observer,
		Logger:     s.logger,
		EchoOrigin: opts.EchoOrigin,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SetLogger sets the logger. Must be called before Setup.
func (s *Server) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	s.loggerMu.Lock()
	s.logger = l
	s.sync.logger = l
	s.loggerMu.Unlock()
}

func (s *Server) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// AddTrigger registers a trigger. Configuration-time only.
func (s *Server) AddTrigger(cfg TriggerConfig) (*Trigger, error) {
	if s.started.Load() {
		return nil, ErrStarted
	}
	if cfg.Lock != nil && cfg.Lock.ID == s.shared.ID {
		return nil, fmt.Errorf("%w: lock %q is the shared lock", ErrDuplicateTrigger, cfg.Lock.ID)
	}
	return s.registry.Add(cfg)
}

// Dispatcher returns the server's dispatcher.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Setup restores the secret, installs the engine callbacks and starts the
// engine. Any failure marks the server failed and stops initialisation.
func (s *Server) Setup(ctx context.Context) error {
	if s.failed.Load() {
		return ErrFailed
	}
	if s.started.Load() {
		return ErrStarted
	}

	if err := s.prepareSecret(ctx); err != nil {
		return s.fail(err)
	}
	s.restoreSharedState(ctx)

	handlers := Handlers{
		OnCommand:    s.onCommand,
		OnConnect:    s.onConnect,
		OnDisconnect: s.onDisconnect,
	}
	if !s.engine.IsRegistered() {
		handlers.OnRegistration = s.onRegistration
	}
	s.engine.SetHandlers(handlers)

	if err := s.engine.Begin(ctx, s.uuid); err != nil {
		return s.fail(fmt.Errorf("begin engine: %w", err))
	}
	if err := s.engine.StartAdvertising(); err != nil {
		return s.fail(fmt.Errorf("start advertising: %w", err))
	}

	s.started.Store(true)
	registered := s.reg.Registered()
	if registered {
		s.log().Info("SESAME server started as registered", "uuid", s.uuid, "triggers", s.registry.Len())
	} else {
		s.log().Info("SESAME server started as not registered", "uuid", s.uuid, "triggers", s.registry.Len())
	}

	s.observer.Registration(registered)
	for _, l := range s.sync.Locks() {
		s.observer.LockState(l)
	}
	for _, t := range s.registry.All() {
		s.observer.TriggerConnection(t.Snapshot())
	}
	return nil
}

func (s *Server) prepareSecret(ctx context.Context) error {
	secret, found, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: load secret: %w", ErrSecretStore, err)
	}
	if !found || secret.IsZero() {
		return nil
	}
	if err := s.engine.SetRegistered(secret); err != nil {
		s.log().Error("failed to restore secret", "error", err)
		return fmt.Errorf("restore secret: %w", err)
	}
	s.setRegistration(RegistrationState{Secret: secret})
	return nil
}

func (s *Server) restoreSharedState(ctx context.Context) {
	if s.lockStore == nil {
		return
	}
	state, found, err := s.lockStore.LoadLockState(ctx)
	if err != nil {
		s.log().Warn("failed to restore shared lock state", "error", err)
		return
	}
	if found {
		s.shared.State = state
	}
}

// markFailed puts the server in its terminal failed state and stops Run.
func (s *Server) markFailed() {
	s.failed.Store(true)
	s.haltOne.Do(func() { close(s.halt) })
}

func (s *Server) fail(err error) error {
	s.markFailed()
	s.log().Error("failed to start SESAME server", "error", err)
	return fmt.Errorf("%w: %w", ErrSetupFailed, err)
}

func (s *Server) setRegistration(r RegistrationState) {
	s.reg = r
	s.registered.Store(r.Registered())
}

// Run polls the engine and drains deferred work until ctx is cancelled or
// the server fails, in which case it returns ErrFailed.
func (s *Server) Run(ctx context.Context) error {
	if s.failed.Load() {
		return ErrFailed
	}
	if !s.started.Load() {
		return ErrNotStarted
	}
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sesame: server already running")
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.halt:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.dispatcher.Run(ctx, s.pollInterval, func() {
		if !s.failed.Load() {
			s.engine.Update()
		}
	})
	if s.failed.Load() {
		return ErrFailed
	}
	return nil
}

// ============================================================
// Engine callbacks
// ============================================================

// The callbacks below run inside the engine. They only capture their
// arguments and defer.

func (s *Server) onRegistration(addr PeerAddress, secret Secret) {
	s.dispatcher.Defer(func() { s.handleRegistration(addr, secret) })
}

func (s *Server) onCommand(addr PeerAddress, item ItemCode, tag string, tagType float64) ResultCode {
	s.dispatcher.Defer(func() { s.handleCommand(addr, item, tag, tagType) })
	return ResultSuccess
}

func (s *Server) onConnect(addr PeerAddress) {
	s.dispatcher.Defer(func() { s.handleConnect(addr) })
}

func (s *Server) onDisconnect(addr PeerAddress, reason int) {
	s.dispatcher.Defer(func() { s.handleDisconnect(addr, reason) })
}

func (s *Server) handleRegistration(addr PeerAddress, secret Secret) {
	if s.failed.Load() {
		return
	}
	if s.erased {
		s.log().Warn("registration after reset ignored", "address", addr.String())
		return
	}
	s.setRegistration(RegistrationState{Secret: secret})
	s.log().Info("SESAME registered", "address", addr.String())

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Save(ctx, secret); err != nil {
		s.log().Error("failed to store secret", "error", err)
	}
	s.observer.Registration(true)
}

func (s *Server) handleCommand(addr PeerAddress, item ItemCode, tag string, tagType float64) {
	if s.failed.Load() {
		return
	}
	s.log().Debug("command received", "address", addr.String(), "item", item.String(), "tag", tag)

	t := s.registry.Resolve(addr)
	if t == nil {
		s.log().Warn("command received from unlisted device", "address", addr.String(), "item", item.String(), "tag", tag)
		s.observer.UnlistedCommand(addr, item)
		return
	}

	ev, _, ok := t.Invoke(item, tag, tagType, s.now())
	if ok {
		s.log().Debug("triggering event", "trigger", t.name, "event", string(ev.Kind))
		s.observer.TriggerEvent(t.Snapshot(), ev)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if _, err := s.sync.ApplyPhysical(ctx, t, item); err != nil {
		s.log().Warn("failed to send lock status", "trigger", t.name, "error", err)
	}
}

func (s *Server) handleConnect(addr PeerAddress) {
	if s.failed.Load() {
		return
	}
	s.log().Info("peer connected", "address", addr.String())
	t := s.registry.Resolve(addr)
	if t == nil {
		return
	}
	t.setConnected(true, 0)
	s.observer.TriggerConnection(t.Snapshot())
	if err := s.sync.Reconcile(t); err != nil {
		s.log().Warn("failed to send lock status", "trigger", t.name, "error", err)
	}
}

func (s *Server) handleDisconnect(addr PeerAddress, reason int) {
	if s.failed.Load() {
		return
	}
	s.log().Info("peer disconnected", "address", addr.String(), "reason", reason)
	t := s.registry.Resolve(addr)
	if t == nil {
		return
	}
	t.setConnected(false, reason)
	s.observer.TriggerConnection(t.Snapshot())
}

// ============================================================
// Operations
// ============================================================

// call runs fn on the dispatch goroutine and waits for it.
func (s *Server) call(ctx context.Context, fn func()) error {
	if s.failed.Load() {
		return ErrFailed
	}
	if !s.running.Load() {
		return ErrNotStarted
	}
	return s.dispatcher.Call(ctx, fn)
}

// Reset erases the stored secret and, once the erase is durable, restarts
// through the Restarter. While the server runs the erase happens on the
// dispatch goroutine, after any registration already queued. If the erase
// fails the server is marked failed and the previous secret is left in
// place.
func (s *Server) Reset(ctx context.Context) error {
	if s.failed.Load() {
		return ErrFailed
	}

	var err error
	erase := func() { err = s.erase(ctx) }
	if s.running.Load() {
		cerr := s.dispatcher.Call(ctx, erase)
		switch {
		case errors.Is(cerr, ErrDispatcherStopped):
			erase()
		case cerr != nil:
			return cerr
		}
	} else {
		erase()
	}
	if err != nil {
		return err
	}

	s.log().Info("reset done, restarting")
	if s.restarter != nil {
		s.restarter.Restart()
	}
	return nil
}

func (s *Server) erase(ctx context.Context) error {
	if err := s.store.Erase(ctx); err != nil {
		s.markFailed()
		s.log().Error("failed to erase secret", "error", err)
		return fmt.Errorf("%w: erase secret: %w", ErrSecretStore, err)
	}
	s.erased = true
	s.setRegistration(RegistrationState{})
	s.observer.Registration(false)
	return nil
}

// ControlLock sets a lock entity's state from a local control action.
func (s *Server) ControlLock(ctx context.Context, lockID string, state LockState) error {
	s.log().Debug("lock control", "lock", lockID, "state", state.String())
	var err error
	if cerr := s.call(ctx, func() {
		opCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		err = s.sync.Control(opCtx, lockID, state)
	}); cerr != nil {
		return cerr
	}
	return err
}

// Disconnect closes the session with addr if one exists.
func (s *Server) Disconnect(ctx context.Context, addr PeerAddress) error {
	var err error
	if cerr := s.call(ctx, func() {
		if !s.engine.HasSession(addr) {
			err = fmt.Errorf("%w: %s", ErrNoSession, addr)
			return
		}
		s.log().Info("disconnecting", "address", addr.String())
		err = s.engine.Disconnect(addr)
	}); cerr != nil {
		return cerr
	}
	return err
}

// DisconnectTrigger closes the session of the named trigger's peer.
func (s *Server) DisconnectTrigger(ctx context.Context, name string) error {
	t := s.registry.ByName(name)
	if t == nil {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, name)
	}
	return s.Disconnect(ctx, t.address)
}

// StartAdvertising resumes advertising.
func (s *Server) StartAdvertising(ctx context.Context) error {
	var err error
	if cerr := s.call(ctx, func() {
		if err = s.engine.StartAdvertising(); err != nil {
			s.log().Warn("failed to start advertising", "error", err)
		}
	}); cerr != nil {
		return cerr
	}
	return err
}

// StopAdvertising stops advertising.
func (s *Server) StopAdvertising(ctx context.Context) error {
	var err error
	if cerr := s.call(ctx, func() {
		if err = s.engine.StopAdvertising(); err != nil {
			s.log().Warn("failed to stop advertising", "error", err)
		}
	}); cerr != nil {
		return cerr
	}
	return err
}

// Triggers returns snapshots of every trigger in registration order.
func (s *Server) Triggers(ctx context.Context) ([]TriggerSnapshot, error) {
	var out []TriggerSnapshot
	err := s.call(ctx, func() {
		out = make([]TriggerSnapshot, 0, s.registry.Len())
		for _, t := range s.registry.All() {
			out = append(out, t.Snapshot())
		}
	})
	return out, err
}

// Trigger returns the snapshot of the named trigger.
func (s *Server) Trigger(ctx context.Context, name string) (TriggerSnapshot, error) {
	var (
		out   TriggerSnapshot
		found bool
	)
	if err := s.call(ctx, func() {
		if t := s.registry.ByName(name); t != nil {
			out, found = t.Snapshot(), true
		}
	}); err != nil {
		return TriggerSnapshot{}, err
	}
	if !found {
		return TriggerSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownTrigger, name)
	}
	return out, nil
}

// Locks returns every lock entity, the shared lock first.
func (s *Server) Locks(ctx context.Context) ([]LockSnapshot, error) {
	var out []LockSnapshot
	err := s.call(ctx, func() { out = s.sync.Locks() })
	return out, err
}

// Lock returns one lock entity.
func (s *Server) Lock(ctx context.Context, id string) (LockSnapshot, error) {
	var (
		out   LockSnapshot
		found bool
	)
	if err := s.call(ctx, func() { out, found = s.sync.Lock(id) }); err != nil {
		return LockSnapshot{}, err
	}
	if !found {
		return LockSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownLock, id)
	}
	return out, nil
}

// Status reports the server state. It does not touch the dispatch
// goroutine and is safe in any state.
func (s *Server) Status() Status {
	return Status{
		Started:    s.started.Load(),
		Running:    s.running.Load(),
		Failed:     s.failed.Load(),
		Registered: s.registered.Load(),
		Triggers:   s.registry.Len(),
	}
}

// IsRegistered reports whether the server holds a pairing secret.
func (s *Server) IsRegistered() bool {
	return s.registered.Load()
}

// HasTrigger reports whether addr belongs to a configured trigger.
func (s *Server) HasTrigger(addr PeerAddress) bool {
	return s.registry.Contains(addr)
}

// SharedLockID returns the shared lock's ID.
func (s *Server) SharedLockID() string {
	return s.shared.ID
}
