package api

import (
	"github.com/starford/orgview/internal/docservice"
	"github.com/starford/orgview/internal/index"
	"github.com/starford/orgview/internal/models"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Path    string `json:"path" example:"tasks/ship.md" validate:"required"`
	Content string `json:"content" example:"---\ntype: task\n---\nShip it" validate:"required"`
}

// UpdateDocumentRequest is the request body for PUT /files/*.
// Either Content (raw file) or Body with optional Frontmatter is set.
type UpdateDocumentRequest struct {
	Frontmatter models.Frontmatter `json:"frontmatter,omitempty"`
	Body        *string            `json:"body,omitempty" example:"Updated body"`
	Content     *string            `json:"content,omitempty" example:"---\ntitle: Raw\n---\nRaw body"`
}

// Document is the full document response type (aliased from the domain layer).
type Document = models.Document

// DocumentSummary is a lightweight list item (aliased from the domain layer).
type DocumentSummary = docservice.DocumentSummary

// FileListResponse wraps paginated document listings.
type FileListResponse struct {
	Files []DocumentSummary `json:"files" validate:"required"`
	Total int               `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// GraphResponse wraps the link graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes" validate:"required"`
	Links []index.GraphLink `json:"links" validate:"required"`
}

// BacklinksResponse lists the documents linking to a path.
type BacklinksResponse struct {
	Path      string           `json:"path" example:"tasks/ship.md"`
	Backlinks []models.LinkRef `json:"backlinks" validate:"required"`
}

// StatusResponse reports server state.
type StatusResponse struct {
	Status    string  `json:"status" example:"ok"`
	Uptime    float64 `json:"uptime_seconds" example:"12.5"`
	Documents int     `json:"documents" example:"42"`
	Clients   int     `json:"clients" example:"2"`
}

// PutProjectFileRequest is the request body for PUT /projects/{name}/file/*.
type PutProjectFileRequest struct {
	Content string `json:"content" validate:"required"`
}
