// Package preferences is a small SQLite key/value store for values that
// must survive a restart: the pairing secret and the shared lock state.
//
// Writes are committed in a transaction on a synchronous=FULL connection;
// the commit is the durability point. A WAL checkpoint follows each write
// and only logs when it fails.
package preferences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// Preference keys.
const (
	SecretKey          = "sesame_server.secret"
	SharedLockStateKey = "sesame_server.shared_lock_state"
)

// ErrNotFound is returned by Get for a key that was never written.
var ErrNotFound = errors.New("preferences: key not found")

// Logger is the logging interface used by the Store.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Store is a SQLite-backed preference store. It implements
// sesame.SecretStore and sesame.LockStateStore.
type Store struct {
	db         *database.DB
	now        func() time.Time
	checkpoint func(context.Context) error
	logger     Logger
}

// NewStore creates a Store on an open, migrated database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, now: time.Now, checkpoint: db.Checkpoint, logger: noopLogger{}}
}

// SetLogger sets the logger for checkpoint failures.
func (s *Store) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	s.logger = l
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading preference %s: %w", key, err)
	}
	return value, nil
}

// Put durably stores value under key, replacing any previous value. A nil
// error means the write committed; on error the previous value is left in
// place.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, s.now().UTC().Format(time.RFC3339),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("writing preference %s: %w", key, err)
	}
	if err := s.checkpoint(ctx); err != nil {
		s.logger.Warn("preference checkpoint failed", "key", key, "error", err)
	}
	return nil
}

// Load implements sesame.SecretStore.
func (s *Store) Load(ctx context.Context) (sesame.Secret, bool, error) {
	value, err := s.Get(ctx, SecretKey)
	if errors.Is(err, ErrNotFound) {
		return sesame.Secret{}, false, nil
	}
	if err != nil {
		return sesame.Secret{}, false, err
	}
	secret, err := sesame.SecretFromBytes(value)
	if err != nil {
		return sesame.Secret{}, false, fmt.Errorf("stored secret: %w", err)
	}
	return secret, true, nil
}

// Save implements sesame.SecretStore.
func (s *Store) Save(ctx context.Context, secret sesame.Secret) error {
	return s.Put(ctx, SecretKey, secret[:])
}

// Erase implements sesame.SecretStore by overwriting the secret with zeros.
func (s *Store) Erase(ctx context.Context) error {
	var zero sesame.Secret
	return s.Put(ctx, SecretKey, zero[:])
}

// LoadLockState implements sesame.LockStateStore.
func (s *Store) LoadLockState(ctx context.Context) (sesame.LockState, bool, error) {
	value, err := s.Get(ctx, SharedLockStateKey)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	state, err := sesame.ParseLockState(string(value))
	if err != nil {
		return 0, false, fmt.Errorf("stored lock state: %w", err)
	}
	return state, true, nil
}

// SaveLockState implements sesame.LockStateStore.
func (s *Store) SaveLockState(ctx context.Context, state sesame.LockState) error {
	return s.Put(ctx, SharedLockStateKey, []byte(state.String()))
}
