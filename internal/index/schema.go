// Package index keeps a SQLite mirror of the org tree: one row per
// document, its tags and outgoing wiki links, plus an optional FTS5 table
// when built with the sqlite_fts5 tag.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// migrations are applied in order; PRAGMA user_version records how many
// have run. Append only.
var migrations = []string{
	`CREATE TABLE documents (
		path       TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		type       TEXT NOT NULL DEFAULT '',
		status     TEXT,
		checksum   TEXT NOT NULL DEFAULT '',
		body       TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX documents_by_type ON documents(type);
	CREATE INDEX documents_by_updated ON documents(updated_at);`,

	`CREATE TABLE document_tags (
		path     TEXT NOT NULL REFERENCES documents(path) ON DELETE CASCADE,
		tag      TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (path, tag)
	);
	CREATE INDEX document_tags_by_tag ON document_tags(tag);`,

	`CREATE TABLE links (
		source TEXT NOT NULL REFERENCES documents(path) ON DELETE CASCADE,
		target TEXT NOT NULL,
		PRIMARY KEY (source, target)
	);
	CREATE INDEX links_by_target ON links(target);`,
}

// DB is the document index.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the index at dsn and brings its schema up to date.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("index: read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("index: schema version %d is newer than this build (%d)", version, len(migrations))
	}
	for i := version; i < len(migrations); i++ {
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("index: begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("index: migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("index: record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("index: commit migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}
