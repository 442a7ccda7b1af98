// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes orgview document tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/orgview/internal/apperr"
	"github.com/starford/orgview/internal/docservice"
	"github.com/starford/orgview/internal/editbuf"
	"github.com/starford/orgview/internal/index"
)

const contractURI = "orgview://document-format"

// Server wraps the MCP server with orgview tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates a new MCP server with all orgview tools registered.
func New(svc *docservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"orgview",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search through document content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a document: parsed frontmatter, body, links and backlinks as JSON."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. tasks/ship.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("create_document",
		mcp.WithDescription("Create a new Markdown document at the specified path. "+
			"Content MUST follow the document format contract (YAML frontmatter with a type "+
			"and its fields, Markdown body with [[wikilinks]]). Read the contract first via "+
			"the get_document_contract tool or the "+contractURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new document (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the document format contract")),
	), s.createDocument)

	s.mcp.AddTool(mcp.NewTool("set_field",
		mcp.WithDescription("Set one typed frontmatter field (e.g. status, priority, tags) of an existing document. Other fields and the body are kept; an empty value clears the field."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document")),
		mcp.WithString("field", mcp.Required(), mcp.Description("Frontmatter key, e.g. status")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value; for tags a comma separated list")),
	), s.setField)

	s.mcp.AddTool(mcp.NewTool("get_document_contract",
		mcp.WithDescription("Returns the canonical document format contract. "+
			"Call this before creating or updating documents to ensure correct structure."),
	), s.getDocumentContract)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List documents, optionally filtered by type or tag."),
		mcp.WithString("type", mcp.Description("Optional document type: task, knowledge, inbox, reminder")),
		mcp.WithString("tag", mcp.Description("Optional tag filter")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all documents that link to the specified document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the document to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Document Format Contract",
			mcp.WithResourceDescription("Canonical Markdown document format."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns a service error into a tool-level error result.
func toolError(path string, err error) *mcp.CallToolResult {
	var verr *apperr.ValidationError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + path)
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError("document already exists: " + path)
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("document changed concurrently, read it again: " + path)
	case errors.As(err, &verr):
		keys := make([]string, 0, len(verr.Fields))
		for k := range verr.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msgs := make([]string, len(keys))
		for i, k := range keys {
			msgs[i] = k + ": " + verr.Fields[k]
		}
		return mcp.NewToolResultError("invalid document: " + strings.Join(msgs, "; "))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError("", err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no results"), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(doc), nil
}

func (s *Server) createDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !strings.HasSuffix(path, ".md") {
		return mcp.NewToolResultError("path must end with .md"), nil
	}
	if _, err := s.svc.CreateDocument(ctx, path, []byte(content)); err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText("created: " + path), nil
}

// setField edits one schema field the same way the edit command does:
// through an edit buffer, so untouched frontmatter survives and the value
// is validated against the document type.
func (s *Server) setField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := make([]string, 3)
	for i, name := range []string{"path", "field", "value"} {
		v, err := req.RequireString(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args[i] = v
	}
	path, field, value := args[0], args[1], args[2]

	doc, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	buf := editbuf.ToEditBuffer(doc)
	if err := buf.Set(field, value); err != nil {
		return toolError(path, err), nil
	}
	if err := buf.Validate(); err != nil {
		return toolError(path, err), nil
	}
	if !buf.Dirty() {
		return mcp.NewToolResultText("unchanged: " + path), nil
	}
	fm, body := editbuf.FromEditBuffer(buf, doc)
	if _, err := s.svc.UpdateDocument(ctx, path, fm, body, doc.Revision); err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText("updated: " + path), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := index.ListQuery{Limit: 1000, Sort: "path"}
	if t, err := req.RequireString("type"); err == nil {
		q.Type = t
	}
	if tag, err := req.RequireString("tag"); err == nil {
		q.Tag = tag
	}

	items, _, err := s.svc.List(ctx, q)
	if err != nil {
		return toolError("", err), nil
	}

	paths := make([]string, 0, len(items))
	for _, it := range items {
		paths = append(paths, it.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getDocumentContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormatContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	lines := make([]string, len(bl))
	for i, b := range bl {
		lines[i] = b.Target
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}
