// Package sqlite implements the repository interfaces on an embedded
// SQLite database (modernc.org/sqlite, pure Go, no CGo toolchain needed).
//
// The store is the only mutual-exclusion boundary in the system: every
// multi-statement read-then-write sequence (poll creation with options,
// vote casting, cascading deletes) runs inside one transaction so that
// concurrent requests against the same poll serialize correctly.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

const (
	// Pool bounds. SQLite serializes writers anyway; beyond a handful of
	// connections the extra ones only queue.
	maxOpenConns    = 5
	connMaxIdleTime = time.Minute
)

// DB wraps a sql.DB pool and implements the repository interfaces.
type DB struct {
	conn *sql.DB
}

// New opens (creating if missing) the database at path and runs the
// schema migration. Use ":memory:" for tests.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Force an immediate connection so a bad path fails here, not on the
	// first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must stay
	// at exactly one or each connection sees its own empty database.
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(maxOpenConns)
	}
	conn.SetConnMaxIdleTime(connMaxIdleTime)

	// WAL allows reads to proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are off by default in SQLite.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the four tables. CREATE TABLE IF NOT EXISTS keeps it
// idempotent across restarts.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_admin      INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS polls (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_by  TEXT NOT NULL REFERENCES users(id),
			created_at  DATETIME NOT NULL,
			expires_at  DATETIME,
			is_active   INTEGER NOT NULL DEFAULT 1,
			voting_mode TEXT NOT NULL DEFAULT 'single'
			            CHECK (voting_mode IN ('single', 'multi'))
		);
		CREATE INDEX IF NOT EXISTS idx_polls_created_at ON polls(created_at);

		CREATE TABLE IF NOT EXISTS options (
			id        TEXT PRIMARY KEY,
			poll_id   TEXT NOT NULL REFERENCES polls(id),
			text      TEXT NOT NULL,
			is_date   INTEGER NOT NULL DEFAULT 0,
			date_time DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_options_poll_id ON options(poll_id);

		CREATE TABLE IF NOT EXISTS votes (
			id         TEXT PRIMARY KEY,
			poll_id    TEXT NOT NULL REFERENCES polls(id),
			option_id  TEXT NOT NULL REFERENCES options(id),
			user_id    TEXT NOT NULL REFERENCES users(id),
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_votes_poll_id ON votes(poll_id);
		CREATE INDEX IF NOT EXISTS idx_votes_option_id ON votes(option_id);
		CREATE INDEX IF NOT EXISTS idx_votes_poll_user ON votes(poll_id, user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// inTx runs fn inside a transaction, rolling back on error.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
