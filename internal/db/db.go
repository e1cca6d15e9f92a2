package db

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

func Connect(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}

// EnsureSchema creates the users, access_tokens and tasks tables if they
// don't exist. parent_id carries no foreign key: deleting a task leaves its
// children pointing at the removed id.
func EnsureSchema(ctx context.Context, db *sql.DB, driverName string) error {
	statements, ok := schema[driverName]
	if !ok {
		return fmt.Errorf("no schema for driver %q", driverName)
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schema = map[string][]string{
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS users (
  id                UUID PRIMARY KEY,
  name              TEXT NOT NULL,
  email             TEXT NOT NULL UNIQUE,
  password_hash     TEXT NOT NULL,
  email_verified_at TIMESTAMPTZ,
  created_at        TIMESTAMPTZ NOT NULL,
  updated_at        TIMESTAMPTZ NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS access_tokens (
  id         UUID PRIMARY KEY,
  user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  name       TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS tasks (
  id          UUID PRIMARY KEY,
  owner_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  title       VARCHAR(255) NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  priority    TEXT NOT NULL CHECK (priority IN ('low', 'medium', 'high')),
  completed   BOOLEAN NOT NULL DEFAULT FALSE,
  labels      TEXT[] NOT NULL DEFAULT '{}',
  parent_id   UUID,
  created_at  TIMESTAMPTZ NOT NULL,
  updated_at  TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_access_tokens_user_id ON access_tokens(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_owner_created ON tasks(owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent_id ON tasks(parent_id)`,
	},
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS users (
  id                TEXT PRIMARY KEY,
  name              TEXT NOT NULL,
  email             TEXT NOT NULL UNIQUE,
  password_hash     TEXT NOT NULL,
  email_verified_at TIMESTAMP,
  created_at        TIMESTAMP NOT NULL,
  updated_at        TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS access_tokens (
  id         TEXT PRIMARY KEY,
  user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  name       TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL,
  expires_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS tasks (
  id          TEXT PRIMARY KEY,
  owner_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  title       TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  priority    TEXT NOT NULL CHECK (priority IN ('low', 'medium', 'high')),
  completed   BOOLEAN NOT NULL DEFAULT FALSE,
  labels      TEXT NOT NULL DEFAULT '{}',
  parent_id   TEXT,
  created_at  TIMESTAMP NOT NULL,
  updated_at  TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_access_tokens_user_id ON access_tokens(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_owner_created ON tasks(owner_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent_id ON tasks(parent_id)`,
	},
}
