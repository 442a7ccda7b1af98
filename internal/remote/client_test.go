package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/starford/orgview/internal/api"
	"github.com/starford/orgview/internal/apperr"
	"github.com/starford/orgview/internal/docservice"
	"github.com/starford/orgview/internal/models"
	"github.com/starford/orgview/internal/projects"
	"github.com/starford/orgview/internal/testutil"
)

// testServer runs the real API behind /api and returns a client for it.
func testServer(t *testing.T, token string) (*Client, *docservice.Service) {
	t.Helper()
	root, store := testutil.TestOrg(t)
	svc := docservice.NewService(store, testutil.TestDB(t))
	h := api.NewHandler(svc, projects.NewBrowser(root), func() int { return 0 })

	r := chi.NewRouter()
	r.Mount("/api", api.NewRouter(h, api.RouterConfig{AuthEnabled: token != "", Token: token}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, WithToken(token))
	if err != nil {
		t.Fatal(err)
	}
	return c, svc
}

func TestFetchDocument(t *testing.T) {
	c, svc := testServer(t, "secret")
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "tasks/a b.md", []byte("---\ntitle: A\ntype: task\nstatus: todo\n---\nBody\n")); err != nil {
		t.Fatal(err)
	}

	doc, err := c.FetchDocument(ctx, "tasks/a b.md")
	if err != nil {
		t.Fatalf("FetchDocument: %v", err)
	}
	if doc.Title != "A" || doc.Type != models.TypeTask || doc.Content != "Body\n" {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Revision == "" {
		t.Error("expected revision")
	}
}

func TestFetchDocument_NotFound(t *testing.T) {
	c, _ := testServer(t, "")
	_, err := c.FetchDocument(context.Background(), "missing.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if errors.Is(err, apperr.ErrTransport) {
		t.Error("not found must not be a transport error")
	}
}

func TestFetchDocument_Unauthorized(t *testing.T) {
	c, _ := testServer(t, "secret")
	c.token = "wrong"
	_, err := c.FetchDocument(context.Background(), "x.md")
	if !errors.Is(err, apperr.ErrTransport) || !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("err = %v, want transport 401", err)
	}
}

func TestSubmitDocument(t *testing.T) {
	c, svc := testServer(t, "")
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "tasks/s.md", []byte("---\ntitle: S\ntype: task\nstatus: todo\n---\nOld\n")); err != nil {
		t.Fatal(err)
	}

	doc, err := c.SubmitDocument(ctx, "tasks/s.md", models.Frontmatter{"title": "S", "type": "task", "status": "done"}, "New\n")
	if err != nil {
		t.Fatalf("SubmitDocument: %v", err)
	}
	if doc.Status == nil || *doc.Status != "done" || doc.Content != "New\n" {
		t.Errorf("doc = %+v", doc)
	}

	stored, err := svc.GetDocument(ctx, "tasks/s.md")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Revision != doc.Revision {
		t.Errorf("revision mismatch: %q vs %q", stored.Revision, doc.Revision)
	}
}

func TestSubmitDocument_Validation(t *testing.T) {
	c, svc := testServer(t, "")
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "tasks/v.md", []byte("---\ntype: task\nstatus: todo\n---\n")); err != nil {
		t.Fatal(err)
	}

	_, err := c.SubmitDocument(ctx, "tasks/v.md", models.Frontmatter{"type": "task", "status": "bogus"}, "")
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if _, ok := ve.Fields["status"]; !ok {
		t.Errorf("fields = %v, want status", ve.Fields)
	}
}

func TestStatusError_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"document changed"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.SubmitDocument(context.Background(), "a.md", nil, "")
	if !errors.Is(err, apperr.ErrConflict) || !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("err = %v, want conflict and transport", err)
	}
}

func TestStatusError_BadRequestWithoutFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.SubmitDocument(context.Background(), "a.md", nil, "")
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) || ve.Fields[""] != "invalid JSON body" {
		t.Fatalf("err = %v", err)
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(url)
	_, err := c.FetchDocument(context.Background(), "a.md")
	if !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("err = %v, want transport", err)
	}
}

func TestRequestPathEscaping(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"path":"x"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL + "/")
	if _, err := c.FetchDocument(context.Background(), "dir/a b#1.md"); err != nil {
		t.Fatal(err)
	}
	if got != "/api/files/dir/a%20b%231.md" {
		t.Errorf("path = %q", got)
	}
}

func TestEventsURL(t *testing.T) {
	tests := []struct {
		base, token, want string
	}{
		{"http://localhost:8080", "", "ws://localhost:8080/ws"},
		{"https://org.example.com/", "t0k", "wss://org.example.com/ws?token=t0k"},
	}
	for _, tt := range tests {
		c, err := New(tt.base, WithToken(tt.token))
		if err != nil {
			t.Fatal(err)
		}
		if got := c.EventsURL(); got != tt.want {
			t.Errorf("EventsURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestNew_BadScheme(t *testing.T) {
	if _, err := New("ftp://host"); err == nil || !strings.Contains(err.Error(), "scheme") {
		t.Errorf("err = %v", err)
	}
}
