// Package docservice coordinates storage, parsing, and the index to serve
// documents to the API and MCP layers.
package docservice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/starford/orgview/internal/apperr"
	"github.com/starford/orgview/internal/checksum"
	"github.com/starford/orgview/internal/index"
	"github.com/starford/orgview/internal/models"
	"github.com/starford/orgview/internal/parser"
	"github.com/starford/orgview/internal/storage"
)

// DocumentSummary is a lightweight item in a list response.
type DocumentSummary struct {
	Path      string         `json:"path"`
	Title     string         `json:"title"`
	Type      models.DocType `json:"type"`
	Status    *string        `json:"status"`
	Checksum  string         `json:"checksum"`
	Tags      []string       `json:"tags"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Service coordinates storage and index operations.
type Service struct {
	store storage.Provider
	db    index.DocumentIndex
}

// NewService creates a new document service.
func NewService(store storage.Provider, db index.DocumentIndex) *Service {
	return &Service{store: store, db: db}
}

// GetDocument reads a document from storage, parses it, and enriches it with backlinks.
func (s *Service) GetDocument(_ context.Context, path string) (*models.Document, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return s.buildDocument(path, data)
}

// CreateDocument writes a new document and indexes it.
func (s *Service) CreateDocument(_ context.Context, path string, content []byte) (*models.Document, error) {
	if _, err := s.store.Stat(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err := validateRaw(content, nil); err != nil {
		return nil, err
	}
	return s.write(path, content)
}

// UpdateDocument replaces the frontmatter and body of an existing document.
// Keys already present in the file keep their position. A non-empty ifMatch
// must equal the current revision.
func (s *Service) UpdateDocument(_ context.Context, path string, fm models.Frontmatter, body, ifMatch string) (*models.Document, error) {
	existing, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	prev, order, _ := parser.SplitFrontmatter(existing)
	if err := models.ValidateChanges(fm, prev); err != nil {
		return nil, err
	}
	content, err := parser.Serialize(fm, order, body)
	if err != nil {
		return nil, err
	}
	return s.write(path, content)
}

// WriteRaw replaces an existing document with raw file content.
func (s *Service) WriteRaw(_ context.Context, path string, content []byte, ifMatch string) (*models.Document, error) {
	existing, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := validateRaw(content, existing); err != nil {
		return nil, err
	}
	return s.write(path, content)
}

// DeleteDocument removes a document from storage and index.
func (s *Service) DeleteDocument(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		return err
	}
	return s.db.DeleteDocument(path)
}

// List returns a page of documents matching q.
func (s *Service) List(_ context.Context, q index.ListQuery) ([]DocumentSummary, int, error) {
	rows, total, err := s.db.ListDocuments(q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]DocumentSummary, len(rows))
	for i, r := range rows {
		items[i] = DocumentSummary{
			Path:      r.Path,
			Title:     r.Title,
			Type:      models.DocType(r.Type),
			Status:    r.Status,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Graph returns all nodes and links for graph visualization.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []index.GraphLink, error) {
	return s.db.Graph()
}

// Backlinks returns the documents that link to path.
func (s *Service) Backlinks(_ context.Context, path string) ([]models.LinkRef, error) {
	bl, err := s.db.Backlinks(path)
	if err != nil {
		return nil, err
	}
	return backlinkRefs(bl), nil
}

// Count returns the number of indexed documents.
func (s *Service) Count(_ context.Context) (int, error) {
	return s.db.Count()
}

func (s *Service) read(path string) ([]byte, error) {
	if !strings.HasSuffix(path, ".md") {
		return nil, apperr.ErrNotFound
	}
	return s.store.Read(path)
}

func (s *Service) write(path string, content []byte) (*models.Document, error) {
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := index.IndexDocument(s.db, path, content); err != nil {
		return nil, err
	}
	return s.buildDocument(path, content)
}

// buildDocument constructs a Document from raw data without re-reading the file.
func (s *Service) buildDocument(path string, data []byte) (*models.Document, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(path)
	if err != nil {
		return nil, err
	}
	var updated time.Time
	if row, err := s.db.GetDocument(path); err == nil && row != nil {
		updated = row.UpdatedAt
	} else if meta, err := s.store.Stat(path); err == nil {
		updated = meta.UpdatedAt
	}
	fm := res.Frontmatter
	if fm == nil {
		fm = models.Frontmatter{}
	}
	return &models.Document{
		Path:        path,
		Title:       res.Title,
		Type:        res.Type,
		Status:      res.Status,
		Tags:        nonNilSlice(res.Tags),
		Content:     res.Body,
		Links:       nonNilSlice(res.Links),
		Backlinks:   backlinkRefs(bl),
		Frontmatter: fm,
		Revision:    checksum.Sum(data),
		UpdatedAt:   updated,
	}, nil
}

// validateRaw checks the frontmatter of content. With existing set, only
// fields that differ from it are checked.
func validateRaw(content, existing []byte) error {
	fm, _, _ := parser.SplitFrontmatter(content)
	if existing == nil {
		return models.ValidateFrontmatter(fm)
	}
	prev, _, _ := parser.SplitFrontmatter(existing)
	return models.ValidateChanges(fm, prev)
}

// backlinkRefs maps index backlinks to refs whose alias is the source title.
func backlinkRefs(bl []index.Backlink) []models.LinkRef {
	out := make([]models.LinkRef, len(bl))
	for i, b := range bl {
		alias := b.Title
		if alias == "" {
			alias = b.Source
		}
		out[i] = models.LinkRef{Target: b.Source, Alias: alias}
	}
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
