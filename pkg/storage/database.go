package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNoKeysLeft = errors.New("no one-time keys left for device")
)

// SessionDB persists ratchet session state and published key bundles
type SessionDB struct {
	db *sql.DB
}

// NewSessionDB opens (or creates) the session database at dbPath
func NewSessionDB(dbPath string) (*SessionDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	sdb := &SessionDB{db: db}

	if err := sdb.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return sdb, nil
}

// initSchema creates database tables
func (s *SessionDB) initSchema() error {
	schema := `
	-- Pickled ratchet sessions, keyed by session ID
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		peer_id TEXT NOT NULL,
		pickle BLOB NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	-- Long-term identity keys published by devices
	CREATE TABLE IF NOT EXISTS identity_keys (
		device_id TEXT PRIMARY KEY,
		identity_key BLOB NOT NULL,
		published_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	-- One-time keys; claimed marks a key as handed out
	CREATE TABLE IF NOT EXISTS one_time_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		key_id TEXT NOT NULL,
		one_time_key BLOB NOT NULL,
		claimed INTEGER NOT NULL DEFAULT 0,
		published_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		UNIQUE(device_id, key_id)
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_sessions_peer ON sessions(peer_id);
	CREATE INDEX IF NOT EXISTS idx_otk_device ON one_time_keys(device_id, claimed);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}

	return nil
}

// Close closes the database connection
func (s *SessionDB) Close() error {
	return s.db.Close()
}
