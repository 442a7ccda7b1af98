package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/orgview/internal/docservice"
	"github.com/starford/orgview/internal/index"
	"github.com/starford/orgview/internal/models"
	"github.com/starford/orgview/internal/projects"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc      *docservice.Service
	projects *projects.Browser
	started  time.Time
	clients  func() int
}

// NewHandler creates a new Handler. clients reports the number of connected
// change-feed subscribers and may be nil.
func NewHandler(svc *docservice.Service, browser *projects.Browser, clients func() int) *Handler {
	if clients == nil {
		clients = func() int { return 0 }
	}
	return &Handler{svc: svc, projects: browser, started: time.Now(), clients: clients}
}

// wildcardPath extracts the document path from the URL (the chi "*" param).
// Supports encoded slashes from OpenAPI clients (e.g. tasks%2Fship.md).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func writeDocument(w http.ResponseWriter, status int, doc *models.Document) {
	w.Header().Set("ETag", `"`+doc.Revision+`"`)
	writeJSON(w, status, doc)
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /api/status.
//
//	@Summary		Server status
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Count(r.Context())
	if err != nil {
		writeError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:    "ok",
		Uptime:    time.Since(h.started).Seconds(),
		Documents: n,
		Clients:   h.clients(),
	})
}

// ListFiles handles GET /api/files.
//
//	@Summary		List documents with optional pagination and filtering
//	@Tags			files
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			type	query		string	false	"Filter by document type"	Enums(task, knowledge, inbox, reminder)
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			sort	query		string	false	"Sort field"	Enums(updated_at, title, path)
//	@Success		200		{object}	FileListResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.List(r.Context(), index.ListQuery{
		Limit:  limit,
		Offset: offset,
		Type:   q.Get("type"),
		Tag:    q.Get("tag"),
		Sort:   q.Get("sort"),
	})
	if err != nil {
		writeError(w, "list files", err)
		return
	}
	writeJSON(w, http.StatusOK, FileListResponse{Files: items, Total: total})
}

// GetFile handles GET /api/files/*.
//
//	@Summary		Get a single document by path
//	@Tags			files
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	Document
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [get]
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), path)
	if err != nil {
		writeError(w, "get file", err, slog.String("path", path))
		return
	}
	writeDocument(w, http.StatusOK, doc)
}

// CreateFile handles POST /api/files.
//
//	@Summary		Create a new document
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	true	"Document to create"
//	@Success		201		{object}	Document
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [post]
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	if !strings.HasSuffix(req.Path, ".md") {
		writeJSON(w, http.StatusBadRequest, errorBody("path must end with .md"))
		return
	}
	doc, err := h.svc.CreateDocument(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, "create file", err, slog.String("path", req.Path))
		return
	}
	writeDocument(w, http.StatusCreated, doc)
}

// PutFile handles PUT /api/files/*.
//
//	@Summary		Update a document with optimistic concurrency
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string					true	"Document path"
//	@Param			If-Match	header	string					false	"Revision for optimistic concurrency"
//	@Param			body		body	UpdateDocumentRequest	true	"Structured or raw content"
//	@Success		200		{object}	Document
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [put]
func (h *Handler) PutFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	var (
		doc *models.Document
		err error
	)
	switch {
	case req.Content != nil:
		doc, err = h.svc.WriteRaw(r.Context(), path, []byte(*req.Content), ifMatch)
	case req.Body != nil:
		fm := req.Frontmatter
		if fm == nil {
			fm = models.Frontmatter{}
		}
		doc, err = h.svc.UpdateDocument(r.Context(), path, fm, *req.Body, ifMatch)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("body or content is required"))
		return
	}
	if err != nil {
		writeError(w, "update file", err, slog.String("path", path))
		return
	}
	writeDocument(w, http.StatusOK, doc)
}

// DeleteFile handles DELETE /api/files/*.
//
//	@Summary		Delete a document
//	@Tags			files
//	@Param			path	path	string	true	"Document path"
//	@Success		204		"Document deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [delete]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), path); err != nil {
		writeError(w, "delete file", err, slog.String("path", path))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Backlinks handles GET /api/backlinks/*.
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		writeError(w, "backlinks", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Path: path, Backlinks: bl})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across documents
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the document link graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	if nodes == nil {
		nodes = []index.GraphNode{}
	}
	if links == nil {
		links = []index.GraphLink{}
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Links: links})
}
