package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path      string
	Title     string
	Type      string
	Status    *string
	Checksum  string
	Tags      []string
	UpdatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Backlink is an inbound reference: Source links to the queried document.
type Backlink struct {
	Source string `json:"source"`
	Title  string `json:"title"`
}

// GraphNode is one document in the link graph.
type GraphNode struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`
}

// GraphLink is a directed edge in the link graph.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// ListQuery filters and pages ListDocuments.
type ListQuery struct {
	Limit  int
	Offset int
	Type   string
	Tag    string
	Sort   string // "updated_at" (default), "title", "path"
}

// documentColumns selects a DocumentRow; tags come back as a JSON array in
// their frontmatter order.
const documentColumns = `d.path, d.title, d.type, d.status, d.checksum,
	(SELECT json_group_array(tag) FROM
		(SELECT tag FROM document_tags t WHERE t.path = d.path ORDER BY t.position)),
	d.updated_at`

// UpsertDocument writes a document row, its tags, its FTS entry and its
// outgoing links in one transaction.
func (db *DB) UpsertDocument(d DocumentRow, body string, targets []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = tx.Exec(`
		INSERT INTO documents (path, title, type, status, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title, type = excluded.type, status = excluded.status,
			checksum = excluded.checksum, body = excluded.body, updated_at = excluded.updated_at
	`, d.Path, d.Title, d.Type, d.Status, d.Checksum, body, updated)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if err := replaceSet(tx, `DELETE FROM document_tags WHERE path = ?`,
		`INSERT OR IGNORE INTO document_tags (path, tag, position) VALUES (?, ?, ?)`,
		d.Path, d.Tags, true); err != nil {
		return fmt.Errorf("index: tags: %w", err)
	}
	if err := replaceSet(tx, `DELETE FROM links WHERE source = ?`,
		`INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`,
		d.Path, targets, false); err != nil {
		return fmt.Errorf("index: links: %w", err)
	}
	if err := ftsUpsert(tx, d.Path, d.Title, body, d.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// replaceSet clears the rows owned by key and inserts one row per value,
// passing the value's index as a third argument when ordered is set.
func replaceSet(tx *sql.Tx, clear, insert, key string, values []string, ordered bool) error {
	if _, err := tx.Exec(clear, key); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(insert)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, v := range values {
		args := []any{key, v}
		if ordered {
			args = append(args, i)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDocument removes a document. Tags and outgoing links cascade.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for path, or "" when it is not indexed.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetDocument returns the indexed row for path, or nil when it is not indexed.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	row := db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents d WHERE d.path = ?`, path)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns a page of documents and the total matching count.
func (db *DB) ListDocuments(q ListQuery) ([]DocumentRow, int, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	var where []string
	var args []any
	if q.Type != "" {
		where = append(where, "d.type = ?")
		args = append(args, q.Type)
	}
	if q.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM document_tags t WHERE t.path = d.path AND t.tag = ?)")
		args = append(args, q.Tag)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents d`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count documents: %w", err)
	}

	order := "d.updated_at DESC, d.path"
	switch q.Sort {
	case "title":
		order = "d.title COLLATE NOCASE, d.path"
	case "path":
		order = "d.path"
	}
	rows, err := db.conn.Query(`SELECT `+documentColumns+` FROM documents d`+clause+
		` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

// Count returns the number of indexed documents.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// AllPaths returns every indexed document path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// AllChecksums returns path → checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns the documents linking to path, ordered by source path.
// Links may name the target with or without its .md extension.
func (db *DB) Backlinks(path string) ([]Backlink, error) {
	stem := strings.TrimSuffix(path, ".md")
	rows, err := db.conn.Query(`
		SELECT DISTINCT l.source, COALESCE(d.title, '')
		FROM links l
		LEFT JOIN documents d ON d.path = l.source
		WHERE l.target = ? OR l.target = ?
		ORDER BY l.source`, path, stem)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []Backlink
	for rows.Next() {
		var b Backlink
		if err := rows.Scan(&b.Source, &b.Title); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Graph returns every document as a node and every link whose target
// resolves to an indexed document as an edge.
func (db *DB) Graph() ([]GraphNode, []GraphLink, error) {
	rows, err := db.conn.Query(`SELECT path, title, type FROM documents ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer rows.Close()

	var nodes []GraphNode
	known := make(map[string]string)
	for rows.Next() {
		var n GraphNode
		if err := rows.Scan(&n.ID, &n.Title, &n.Type); err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, n)
		known[n.ID] = n.ID
		known[strings.TrimSuffix(n.ID, ".md")] = n.ID
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	lrows, err := db.conn.Query(`SELECT source, target FROM links ORDER BY source, target`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer lrows.Close()

	var links []GraphLink
	for lrows.Next() {
		var source, target string
		if err := lrows.Scan(&source, &target); err != nil {
			return nil, nil, err
		}
		if resolved, ok := known[target]; ok {
			links = append(links, GraphLink{Source: source, Target: resolved})
		}
	}
	return nodes, links, lrows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (*DocumentRow, error) {
	var (
		d        DocumentRow
		status   sql.NullString
		tagsJSON string
	)
	if err := s.Scan(&d.Path, &d.Title, &d.Type, &status, &d.Checksum, &tagsJSON, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if status.Valid {
		v := status.String
		d.Status = &v
	}
	if err := json.Unmarshal([]byte(tagsJSON), &d.Tags); err != nil {
		return nil, fmt.Errorf("index: decode tags of %s: %w", d.Path, err)
	}
	return &d, nil
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
