package sqlite

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

// timeLayout is fixed width so TEXT ordering matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

// OpenDB opens a SQLite database at path, or an in-memory one for
// ":memory:", enables foreign keys and applies the schema.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting WAL mode: %w", err)
		}
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS groups (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		parent_group_id TEXT REFERENCES groups(id) ON DELETE CASCADE,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS groups_parent_group_id_idx ON groups (parent_group_id)`,
	`CREATE TABLE IF NOT EXISTS content_items (
		id             TEXT PRIMARY KEY,
		group_id       TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		placement      INTEGER NOT NULL DEFAULT 0,
		kind           TEXT NOT NULL CHECK (kind IN ('link', 'text', 'deadline', 'group')),
		display_text   TEXT NOT NULL DEFAULT '',
		link_url       TEXT NOT NULL DEFAULT '',
		title          TEXT NOT NULL DEFAULT '',
		body           TEXT NOT NULL DEFAULT '',
		deadline_at    TEXT,
		start_at       TEXT,
		child_group_id TEXT REFERENCES groups(id) ON DELETE CASCADE,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL,
		CHECK ((kind = 'group') = (child_group_id IS NOT NULL)),
		CHECK (kind <> 'deadline' OR deadline_at IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS content_items_group_order_idx ON content_items (group_id, placement, id)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id              TEXT PRIMARY KEY,
		recorded_at     TEXT NOT NULL,
		operation       TEXT NOT NULL CHECK (operation IN ('create', 'update', 'delete')),
		content_type    TEXT NOT NULL,
		content_id      TEXT NOT NULL,
		parent_group_id TEXT NOT NULL DEFAULT '',
		old_values      TEXT NOT NULL DEFAULT '[]',
		new_values      TEXT NOT NULL DEFAULT '[]',
		fingerprint     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_recorded_at_idx ON audit_log (recorded_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		idempotency_key TEXT PRIMARY KEY,
		request_hash    TEXT NOT NULL,
		parent_group_id TEXT NOT NULL,
		content_id      TEXT NOT NULL,
		created_at      TEXT NOT NULL,
		expires_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idempotency_keys_expires_at_idx ON idempotency_keys (expires_at)`,
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", value, err)
	}
	return t.UTC(), nil
}

func parseNullableTime(value sql.NullString) (time.Time, error) {
	if !value.Valid || value.String == "" {
		return time.Time{}, nil
	}
	return parseTime(value.String)
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
