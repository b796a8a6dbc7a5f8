// Package store persists the tool-call audit log, the sandbox registries
// and the backup registry in a sqlite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tool_calls (
	id TEXT PRIMARY KEY,
	tool TEXT NOT NULL,
	action TEXT NOT NULL DEFAULT '',
	success INTEGER NOT NULL,
	error_code TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	called_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS tool_calls_called_at ON tool_calls (called_at);
CREATE TABLE IF NOT EXISTS windows_sandboxes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	wsb_path TEXT NOT NULL,
	pid INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	memory_mb INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	started_at TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS vm_sandboxes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	source_vm TEXT NOT NULL,
	state TEXT NOT NULL,
	run_dir TEXT NOT NULL DEFAULT '',
	network TEXT NOT NULL DEFAULT '',
	share_iso TEXT NOT NULL DEFAULT '',
	specification TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	start_time TEXT NOT NULL DEFAULT '',
	end_time TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS backups (
	id TEXT PRIMARY KEY,
	vm_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS backups_vm_name ON backups (vm_name, created_at);
`

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating when needed) the database at path and ensures the
// schema. ":memory:" yields a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("database path is required")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection keeps an in-memory database shared and serialises
	// writers on a file database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// timeLayout is fixed width so that text order in SQL is chronological.
// RFC3339Nano trims trailing zeros and would sort .1Z after .12Z.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}
