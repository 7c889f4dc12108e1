// Package store persists users, tasks, and conversation transcripts in a
// single sqlite database.
//
// Invariants:
//   - every task/conversation/message lookup that serves a request is scoped
//     by the owning user id; there is no unscoped read path.
//   - messages are append-only; positions are assigned inside the append
//     transaction so concurrent appends to one conversation serialize.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a row does not exist for the given owner.
// An owner-scoped miss and a true miss are indistinguishable on purpose.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a uniqueness constraint is violated
// (currently only duplicate user emails).
var ErrConflict = errors.New("already exists")

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id),
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	completed   INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	title      TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	position        INTEGER NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	UNIQUE(conversation_id, position)
);

CREATE TABLE IF NOT EXISTS tool_invocations (
	id         TEXT PRIMARY KEY,
	message_id TEXT NOT NULL REFERENCES messages(id),
	tool_name  TEXT NOT NULL,
	arguments  TEXT NOT NULL,
	result     TEXT,
	error      TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invocations_message ON tool_invocations(message_id);
`

// Store wraps the sqlite handle. Safe for concurrent use; sqlite serializes
// writers via its own locking.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and applies
// the schema. Use ":memory:" for throwaway stores in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
