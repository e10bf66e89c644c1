package sesametest

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// Store is an in-memory sesame.SecretStore and sesame.LockStateStore.
type Store struct {
	mu        sync.Mutex
	secret    sesame.Secret
	hasSecret bool
	state     sesame.LockState
	hasState  bool
	saves     int

	// Errors returned by the corresponding calls when set.
	LoadErr      error
	SaveErr      error
	EraseErr     error
	LockStateErr error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// NewStoreWithSecret returns a store holding secret.
func NewStoreWithSecret(secret sesame.Secret) *Store {
	return &Store{secret: secret, hasSecret: true}
}

// Load implements sesame.SecretStore.
func (s *Store) Load(context.Context) (sesame.Secret, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return sesame.Secret{}, false, s.LoadErr
	}
	return s.secret, s.hasSecret, nil
}

// Save implements sesame.SecretStore.
func (s *Store) Save(_ context.Context, secret sesame.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.secret = secret
	s.hasSecret = true
	s.saves++
	return nil
}

// Erase implements sesame.SecretStore. On error the stored secret is left
// untouched.
func (s *Store) Erase(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EraseErr != nil {
		return s.EraseErr
	}
	s.secret = sesame.Secret{}
	s.hasSecret = true
	return nil
}

// LoadLockState implements sesame.LockStateStore.
func (s *Store) LoadLockState(context.Context) (sesame.LockState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LockStateErr != nil {
		return 0, false, s.LockStateErr
	}
	return s.state, s.hasState, nil
}

// SaveLockState implements sesame.LockStateStore.
func (s *Store) SaveLockState(_ context.Context, state sesame.LockState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LockStateErr != nil {
		return s.LockStateErr
	}
	s.state = state
	s.hasState = true
	return nil
}

// Secret returns the stored secret.
func (s *Store) Secret() sesame.Secret {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secret
}

// Saves returns the number of successful Save calls.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// LockState returns the persisted shared lock state.
func (s *Store) LockState() (sesame.LockState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.hasState
}
