// Package database provides the SQLite connection shared by the sesame
// server's persistent stores (preferences, trigger history, audit trail).
//
// The connection is opened in WAL mode with a single writer. Schema changes
// are applied from embedded migration files named
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql, each in its own
// transaction, and recorded with a checksum in the schema_migrations table.
// Editing an applied migration makes Migrate fail with ErrMigrationModified.
//
// Durability: connections run with synchronous=FULL, so a committed
// transaction survives power loss. Checkpoint folds the WAL back into the
// main database file.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
