package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

const (
	dirMode  = 0o750
	fileMode = 0o600

	pingTimeout = 5 * time.Second
)

// Config maps to the database section of the configuration file.
type Config struct {
	Path        string // created along with its directory if missing
	WALMode     bool
	BusyTimeout int // seconds to wait on a locked database
}

// DB is the shared SQLite handle.
type DB struct {
	*sql.DB
	path string
	wal  bool
}

// dsn builds a go-sqlite3 connection string. Commits always fsync
// (synchronous=FULL).
func dsn(cfg Config) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout*int(time.Second/time.Millisecond)))
	q.Set("_foreign_keys", "on")
	q.Set("_synchronous", "FULL")
	if cfg.WALMode {
		q.Set("_journal_mode", "WAL")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Open opens or creates the database and checks that it answers.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirMode); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: SQLite serialises writers anyway, and pragmas are
	// per connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("opening database %s: %w", cfg.Path, err)
	}
	// The file holds the pairing secret.
	os.Chmod(cfg.Path, fileMode) //nolint:errcheck // Best effort

	return &DB{DB: conn, path: cfg.Path, wal: cfg.WALMode}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Close closes the handle. A nil DB is a no-op.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// HealthCheck runs a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}

// Checkpoint copies the write-ahead log into the main database file and
// fails unless every frame made it. Without WAL there is nothing to copy.
func (db *DB) Checkpoint(ctx context.Context) error {
	if !db.wal {
		return nil
	}
	var busy, frames, copied int
	if err := db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(FULL)").Scan(&busy, &frames, &copied); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if busy != 0 || copied < frames {
		return fmt.Errorf("wal checkpoint incomplete: %d of %d frames copied", copied, frames)
	}
	return nil
}

// WithTx runs fn inside a transaction and commits if it returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback() //nolint:errcheck // Reporting fn's error
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
