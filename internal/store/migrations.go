package store

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// SchemaVersionKey is the meta key recording the current schema version.
const SchemaVersionKey = "schema_version"

// migration is one ordered schema change. Versions are applied strictly in
// order, each in its own transaction, and recorded in schema_migrations so
// re-opening the store is idempotent.
type migration struct {
	Version int
	Name    string
	Apply   func(tx *sqlx.Tx) error
}

func execAll(statements ...string) func(tx *sqlx.Tx) error {
	return func(tx *sqlx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_agents",
		Apply: execAll(`
			CREATE TABLE IF NOT EXISTS agents (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				provider TEXT NOT NULL,
				model TEXT NOT NULL,
				persona TEXT NOT NULL DEFAULT '',
				dob TEXT NOT NULL DEFAULT '',
				location TEXT NOT NULL DEFAULT '',
				profession TEXT NOT NULL DEFAULT '',
				about_raw TEXT NOT NULL DEFAULT '',
				agent_name TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`),
	},
	{
		Version: 2,
		Name:    "create_conversations_and_messages",
		Apply: execAll(`
			CREATE TABLE IF NOT EXISTS conversations (
				id TEXT PRIMARY KEY,
				agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
				title TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`, `
			CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role TEXT NOT NULL CHECK (role IN ('system','user','assistant')),
				content TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`, `
			CREATE INDEX IF NOT EXISTS idx_messages_conversation
				ON messages(conversation_id, created_at)`, `
			CREATE INDEX IF NOT EXISTS idx_conversations_updated
				ON conversations(updated_at)`),
	},
	{
		Version: 3,
		Name:    "create_knowledge_and_episodes",
		Apply: execAll(`
			CREATE TABLE IF NOT EXISTS knowledge (
				id TEXT PRIMARY KEY,
				content TEXT NOT NULL,
				created_at TEXT NOT NULL,
				pinned INTEGER NOT NULL DEFAULT 0 CHECK (pinned IN (0,1)),
				source TEXT NOT NULL CHECK (source IN ('manual','auto','auto_crystallized'))
			)`, `
			CREATE TABLE IF NOT EXISTS episodes (
				id TEXT PRIMARY KEY,
				content TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`, `
			CREATE INDEX IF NOT EXISTS idx_episodes_created ON episodes(created_at)`),
	},
	{
		Version: 4,
		Name:    "create_tasks",
		Apply: execAll(`
			CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('queued','running','done','failed')),
				result TEXT NOT NULL DEFAULT '',
				error TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				started_at TEXT NOT NULL DEFAULT '',
				completed_at TEXT NOT NULL DEFAULT '',
				agent_id TEXT
			)`, `
			CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at)`),
	},
	{
		Version: 5,
		Name:    "create_platform_conversations",
		Apply: execAll(`
			CREATE TABLE IF NOT EXISTS platform_conversations (
				id TEXT PRIMARY KEY,
				platform TEXT NOT NULL,
				external_id TEXT NOT NULL,
				messages TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(platform, external_id)
			)`),
	},
	{
		Version: 6,
		Name:    "create_meta",
		Apply: execAll(`
			CREATE TABLE IF NOT EXISTS meta (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`),
	},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return wrapKind(ErrOpen, errors.Wrap(err, "failed to create schema_migrations"))
	}

	applied := map[int]bool{}
	var versions []int
	if err := s.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return wrapKind(ErrOpen, errors.Wrap(err, "failed to read applied migrations"))
	}
	for _, v := range versions {
		applied[v] = true
	}

	latest := 0
	for _, m := range migrations {
		if m.Version > latest {
			latest = m.Version
		}
		if applied[m.Version] {
			continue
		}
		err := s.inTx(ctx, func(tx *sqlx.Tx) error {
			if err := m.Apply(tx); err != nil {
				return err
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				m.Version, m.Name, nowStamp(),
			)
			return err
		})
		if err != nil {
			return wrapKind(ErrOpen, errors.Wrapf(err, "migration %d (%s) failed", m.Version, m.Name))
		}
	}

	return s.SetMeta(ctx, SchemaVersionKey, strconv.Itoa(latest))
}
