package database

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"time"
)

// MigrationsFS holds the migration files. The migrations package sets it
// from its embedded files in an init function.
var MigrationsFS fs.FS

// MigrationsDir is the directory within MigrationsFS holding the files.
var MigrationsDir = "."

// ErrMigrationModified is returned when an applied migration's file no
// longer matches the checksum recorded when it ran.
var ErrMigrationModified = errors.New("applied migration was modified")

// migrationFile matches "20260301_090000_name.up.sql". The name is
// optional.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})(?:_(.+?))?\.(up|down)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	UpSQL   string
	DownSQL string
}

// Checksum identifies the up script.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	Checksum  string
	AppliedAt time.Time
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL DEFAULT '',
	applied_at TEXT NOT NULL
)`

// Migrate applies pending migrations in version order, one transaction
// each. A failure leaves earlier migrations in place.
func (db *DB) Migrate(ctx context.Context) error {
	_, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	for _, m := range pending {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, checksum, applied_at) VALUES (?, ?, ?)",
				m.Version, m.Checksum(), time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the newest applied migration. It does nothing when
// none is applied.
func (db *DB) MigrateDown(ctx context.Context) error {
	applied, _, err := db.MigrationStatus(ctx)
	if err != nil || len(applied) == 0 {
		return err
	}
	version := applied[len(applied)-1].Version

	all, err := loadMigrations()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(all, func(m Migration) bool { return m.Version == version })
	switch {
	case i < 0:
		return fmt.Errorf("migration %s: file not found", version)
	case all[i].DownSQL == "":
		return fmt.Errorf("migration %s: no down script", version)
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, all[i].DownSQL); err != nil {
			return fmt.Errorf("reverting migration %s: %w", version, err)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", version)
		return err
	})
}

// MigrationStatus returns the applied migrations and those still pending.
// It fails with ErrMigrationModified if an applied file has changed.
func (db *DB) MigrationStatus(ctx context.Context) (applied []MigrationRecord, pending []Migration, err error) {
	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, nil, fmt.Errorf("creating migrations table: %w", err)
	}
	if applied, err = db.appliedMigrations(ctx); err != nil {
		return nil, nil, err
	}
	all, err := loadMigrations()
	if err != nil {
		return nil, nil, err
	}

	recorded := make(map[string]string, len(applied))
	for _, r := range applied {
		recorded[r.Version] = r.Checksum
	}
	for _, m := range all {
		sum, ok := recorded[m.Version]
		switch {
		case !ok:
			pending = append(pending, m)
		case sum != "" && sum != m.Checksum():
			return nil, nil, fmt.Errorf("%w: %s", ErrMigrationModified, m.Version)
		}
	}
	return applied, pending, nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, checksum, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("listing applied migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var (
			r  MigrationRecord
			at string
		)
		if err := rows.Scan(&r.Version, &r.Checksum, &at); err != nil {
			return nil, fmt.Errorf("scanning applied migration: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // Written by Migrate
		out = append(out, r)
	}
	return out, rows.Err()
}

// loadMigrations reads MigrationsFS. Files outside the naming scheme and
// down scripts without an up script are skipped.
func loadMigrations() ([]Migration, error) {
	if MigrationsFS == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	found := make(map[string]*Migration)
	for _, e := range entries {
		version, name, up, ok := parseMigrationFilename(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		body, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", e.Name(), err)
		}
		m, seen := found[version]
		if !seen {
			m = &Migration{Version: version}
			found[version] = m
		}
		if up {
			m.Name, m.UpSQL = name, string(body)
		} else {
			m.DownSQL = string(body)
		}
	}

	out := make([]Migration, 0, len(found))
	for _, m := range found {
		if m.UpSQL != "" {
			out = append(out, *m)
		}
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// parseMigrationFilename splits a migration filename. Without a name part
// the version doubles as the name.
func parseMigrationFilename(file string) (version, name string, up, ok bool) {
	m := migrationFile.FindStringSubmatch(file)
	if m == nil {
		return "", "", false, false
	}
	version, name = m[1], m[2]
	if name == "" {
		name = version
	}
	return version, name, m[3] == "up", true
}
