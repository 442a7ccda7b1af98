package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListProjects handles GET /api/projects.
func (h *Handler) ListProjects(w http.ResponseWriter, _ *http.Request) {
	list, err := h.projects.List()
	if err != nil {
		writeError(w, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ProjectTree handles GET /api/projects/{name}/tree.
func (h *Handler) ProjectTree(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tree, err := h.projects.Tree(name)
	if err != nil {
		writeError(w, "project tree", err, slog.String("project", name))
		return
	}
	if tree == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// GetProjectFile handles GET /api/projects/{name}/file/*.
func (h *Handler) GetProjectFile(w http.ResponseWriter, r *http.Request) {
	name, path := chi.URLParam(r, "name"), wildcardPath(r)
	f, err := h.projects.ReadFile(name, path)
	if err != nil {
		writeError(w, "read project file", err, slog.String("project", name), slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// PutProjectFile handles PUT /api/projects/{name}/file/*.
func (h *Handler) PutProjectFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	name, path := chi.URLParam(r, "name"), wildcardPath(r)

	var req PutProjectFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.projects.WriteFile(name, path, []byte(req.Content)); err != nil {
		writeError(w, "write project file", err, slog.String("project", name), slog.String("path", path))
		return
	}
	slog.Info("project file written", slog.String("project", name), slog.String("path", path))
	w.WriteHeader(http.StatusOK)
}
