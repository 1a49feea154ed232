package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with dbdiag-specific helpers.
type DB struct {
	*sql.DB
	mu   sync.RWMutex
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// RLock acquires the store's read lock, held by online serving paths while
// a full rebuild is not in progress.
func (d *DB) RLock() { d.mu.RLock() }

// RUnlock releases the store's read lock.
func (d *DB) RUnlock() { d.mu.RUnlock() }

// Lock acquires the store's exclusive write lock, held for the duration of
// a full index rebuild so readers never observe a partially-rebuilt graph.
func (d *DB) Lock() { d.mu.Lock() }

// Unlock releases the store's exclusive write lock.
func (d *DB) Unlock() { d.mu.Unlock() }

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS raw_tickets (
    ticket_id TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    root_cause_text TEXT NOT NULL DEFAULT '',
    solution TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS raw_anomalies (
    id TEXT PRIMARY KEY,
    ticket_id TEXT NOT NULL REFERENCES raw_tickets(ticket_id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    description TEXT NOT NULL,
    observation_method TEXT NOT NULL DEFAULT '',
    why_relevant TEXT NOT NULL DEFAULT '',
    phenomenon_id TEXT,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_anomalies_ticket ON raw_anomalies(ticket_id);
CREATE INDEX IF NOT EXISTS idx_anomalies_phenomenon ON raw_anomalies(phenomenon_id);

CREATE TABLE IF NOT EXISTS phenomena (
    id TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    observation_method TEXT NOT NULL DEFAULT '',
    cluster_size INTEGER NOT NULL DEFAULT 1,
    embedding TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS root_causes (
    id TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    solution TEXT NOT NULL DEFAULT '',
    cluster_size INTEGER NOT NULL DEFAULT 1,
    ticket_count INTEGER NOT NULL DEFAULT 0,
    embedding TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tickets (
    ticket_id TEXT PRIMARY KEY REFERENCES raw_tickets(ticket_id) ON DELETE CASCADE,
    description TEXT NOT NULL,
    root_cause_id TEXT REFERENCES root_causes(id),
    solution TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tickets_root_cause ON tickets(root_cause_id);

CREATE TABLE IF NOT EXISTS ticket_phenomena (
    ticket_id TEXT NOT NULL REFERENCES tickets(ticket_id) ON DELETE CASCADE,
    phenomenon_id TEXT NOT NULL REFERENCES phenomena(id) ON DELETE CASCADE,
    why_relevant TEXT NOT NULL DEFAULT '',
    raw_anomaly_id TEXT NOT NULL,
    PRIMARY KEY(ticket_id, phenomenon_id, raw_anomaly_id)
);

CREATE INDEX IF NOT EXISTS idx_ticket_phenomena_phenomenon ON ticket_phenomena(phenomenon_id);

CREATE TABLE IF NOT EXISTS phenomenon_root_cause (
    phenomenon_id TEXT NOT NULL REFERENCES phenomena(id) ON DELETE CASCADE,
    root_cause_id TEXT NOT NULL REFERENCES root_causes(id) ON DELETE CASCADE,
    ticket_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY(phenomenon_id, root_cause_id)
);

CREATE INDEX IF NOT EXISTS idx_phenomenon_root_cause_rc ON phenomenon_root_cause(root_cause_id);

CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    state TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_entries (
    id TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL DEFAULT (datetime('now')),
    actor_type TEXT NOT NULL CHECK(actor_type IN ('user','system','bot')),
    actor_id TEXT NOT NULL,
    action TEXT NOT NULL,
    scope TEXT NOT NULL,
    scope_id TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '',
    source_fact TEXT,
    affected_entities TEXT NOT NULL DEFAULT '[]',
    conversation_id TEXT,
    previous_value TEXT,
    new_value TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_entries(actor_id);
CREATE INDEX IF NOT EXISTS idx_audit_scope ON audit_entries(scope, scope_id);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action);

CREATE TABLE IF NOT EXISTS confidence_metadata (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    confidence TEXT NOT NULL CHECK(confidence IN ('auto_detected','confirmed','human_provided','external_import','ai_inferred')),
    source TEXT NOT NULL,
    source_detail TEXT,
    attributed_to TEXT,
    attributed_at DATETIME,
    last_verified DATETIME NOT NULL DEFAULT (datetime('now')),
    potentially_stale INTEGER NOT NULL DEFAULT 0,
    stale_reason TEXT,
    UNIQUE(entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_confidence_entity ON confidence_metadata(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_confidence_stale ON confidence_metadata(potentially_stale);
`
