//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			path UNINDEXED, title, body, tags,
			tokenize = 'unicode61 remove_diacritics 2'
		)`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, title, body string, tags []string) error {
	ftsDelete(tx, path)
	if _, err := tx.Exec(`INSERT INTO documents_fts (path, title, body, tags) VALUES (?, ?, ?, ?)`,
		path, title, body, strings.Join(tags, " ")); err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM documents_fts WHERE path = ?`, path)
}

// Search runs an FTS5 MATCH. Title hits weigh ten times body hits and the
// snippet comes from the body.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT path, title, snippet(documents_fts, 2, '<b>', '</b>', '...', 24)
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY bm25(documents_fts, 0.0, 10.0, 1.0, 5.0)
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}
