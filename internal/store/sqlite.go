// Package store provides SQLite-based persistence for singq.
// It manages queue entries, durable reorder plans, and the audit log.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store represents the SQLite database store
type Store struct {
	db *sql.DB
}

// New creates a new store connection
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize creates the database schema
func (s *Store) Initialize() error {
	schema := `
	-- Performance queue entries (owned by the queue subsystem)
	CREATE TABLE IF NOT EXISTS queue_entries (
		id TEXT PRIMARY KEY,
		event_id INTEGER NOT NULL,
		singer TEXT NOT NULL,
		vip BOOLEAN DEFAULT FALSE,
		on_break BOOLEAN DEFAULT FALSE,
		mature BOOLEAN DEFAULT FALSE,
		active BOOLEAN DEFAULT TRUE,
		skipped BOOLEAN DEFAULT FALSE,
		sung_at DATETIME,
		position INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Durable reorder plans (system of record for the preview->apply window)
	CREATE TABLE IF NOT EXISTS reorder_plans (
		id TEXT PRIMARY KEY,
		event_id INTEGER NOT NULL,
		based_on_version TEXT NOT NULL,
		proposed_version TEXT NOT NULL,
		items JSON NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	-- Reorder audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		plan_id TEXT,
		actor TEXT,
		created_at DATETIME NOT NULL
	);

	-- Config (schema version, etc.)
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_queue_event_position ON queue_entries(event_id, position);
	CREATE INDEX IF NOT EXISTS idx_plans_event ON reorder_plans(event_id);
	CREATE INDEX IF NOT EXISTS idx_plans_expires ON reorder_plans(expires_at);
	CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_log(event_id, id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.SetValue("schema_version", fmt.Sprint(currentSchemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

const currentSchemaVersion = 1

// DB returns the underlying database connection for advanced queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// GetValue gets a value from the key-value store
func (s *Store) GetValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetValue sets a value in the key-value store
func (s *Store) SetValue(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?",
		key, value, value,
	)
	return err
}

// parseTimestamp parses a timestamp string from SQLite in various formats
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999+07:00",
		"2006-01-02 15:04:05.999999-07:00",
		"2006-01-02 15:04:05.999999+07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05+07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
