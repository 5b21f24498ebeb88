// Package db opens the SQLite file that holds documents, chat history and
// import sources.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB is the shared SQLite handle.
type DB struct {
	*sql.DB
	path string
}

// Open opens path in WAL mode, creating its directory and bringing the
// schema up to date.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	return open(dsn, path, 0)
}

// OpenMemory opens a private in-memory database for tests.
func OpenMemory() (*DB, error) {
	// Every connection to :memory: sees its own database, so pin to one.
	return open(":memory:", ":memory:", 1)
}

func open(dsn, path string, maxConns int) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database %s: %w", path, err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return d, nil
}

func (d *DB) Path() string { return d.path }

// SchemaVersion reports how many migrations have been applied.
func (d *DB) SchemaVersion() (int, error) {
	var v int
	err := d.QueryRow(`PRAGMA user_version`).Scan(&v)
	return v, err
}

// migrate applies every migration past the stored user_version, each in
// its own transaction.
func (d *DB) migrate() error {
	current, err := d.SchemaVersion()
	if err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		tx, err := d.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// migrations are append-only. Embeddings are JSON arrays of floats; NULL
// marks a document still waiting for one.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT 'manual',
    embedding TEXT,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);
CREATE INDEX IF NOT EXISTS idx_documents_title ON documents(title);`,

	`CREATE TABLE IF NOT EXISTS chat_history (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL DEFAULT '',
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    relevant_documents TEXT NOT NULL DEFAULT '[]',
    mode TEXT NOT NULL DEFAULT '',
    image_types TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_chat_history_session ON chat_history(session_id, created_at);`,

	`CREATE TABLE IF NOT EXISTS import_sources (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL CHECK(type IN ('markdown')),
    name TEXT NOT NULL,
    config TEXT NOT NULL DEFAULT '{}',
    last_imported DATETIME,
    status TEXT NOT NULL DEFAULT 'configured' CHECK(status IN ('configured','importing','completed','failed')),
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);`,
}
