// Package store implements the embedded relational store for the Hive
// daemon: agents, conversations, messages, knowledge, episodes, tasks,
// platform conversations, and process metadata.
//
// The store is a single SQLite file in WAL mode, opened through the pure-Go
// modernc driver. All accessors are typed; records are returned by value and
// foreign keys are enforced by the database. Schema changes are applied as
// ordered migrations, each in its own transaction.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Store wraps the SQLite database handle.
type Store struct {
	db   *sqlx.DB
	path string
}

// Open opens or creates the store at path, applies pragmas and any pending
// migrations, and records the schema version in meta.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, wrapKind(ErrOpen, errors.Wrap(err, "failed to create store directory"))
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, wrapKind(ErrOpen, errors.Wrap(err, "failed to open database"))
	}

	// A single connection serializes writers and keeps WAL checkpointing
	// predictable for a single-process daemon.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := configure(ctx, db); err != nil {
		db.Close()
		return nil, wrapKind(ErrOpen, err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func configure(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to apply %s", pragma)
		}
	}

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled, current mode: %s", journalMode)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// CheckIntegrity runs SQLite's integrity check. A non-ok result is reported
// as ErrCorrupt.
func (s *Store) CheckIntegrity(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return classify(err)
	}
	if result != "ok" {
		return wrapKind(ErrCorrupt, errors.Errorf("integrity check failed: %s", result))
	}
	return nil
}

// newID mints an opaque identifier.
func newID() string {
	return uuid.New().String()
}

// nowStamp returns the current time as ISO-8601 text, the timestamp format
// used for every persisted record.
func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// errNoRows reports whether err is the empty-result sentinel.
func errNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
