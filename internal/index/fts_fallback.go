//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// Without FTS5 the documents table already holds every searchable column.
func initFTS(*sql.DB) error                                     { return nil }
func ftsUpsert(*sql.Tx, string, string, string, []string) error { return nil }
func ftsDelete(*sql.Tx, string)                                 {}

// likeEscaper escapes LIKE wildcards so the query matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches query as a case-insensitive substring of the title, the
// body or a tag. Title hits rank first.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	like := "%" + likeEscaper.Replace(query) + "%"
	rows, err := db.conn.Query(`
		SELECT d.path, d.title, substr(d.body, 1, 200)
		FROM documents d
		WHERE d.title LIKE ?1 ESCAPE '\' OR d.body LIKE ?1 ESCAPE '\'
		   OR EXISTS (SELECT 1 FROM document_tags t WHERE t.path = d.path AND t.tag LIKE ?1 ESCAPE '\')
		ORDER BY (d.title LIKE ?1 ESCAPE '\') DESC, d.path
		LIMIT ?2
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}
