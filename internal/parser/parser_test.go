package parser

import (
	"reflect"
	"testing"

	"github.com/starford/orgview/internal/models"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntype: task\nstatus: todo\ntags:\n  - go\n  - org\n---\n# Hello\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Title, "Hello")
	}
	if r.Type != models.TypeTask {
		t.Errorf("type = %q, want task", r.Type)
	}
	if r.Status == nil || *r.Status != "todo" {
		t.Errorf("status = %v, want todo", r.Status)
	}
	if len(r.Tags) < 2 || r.Tags[0] != "go" || r.Tags[1] != "org" {
		t.Errorf("tags = %v, want [go org]", r.Tags)
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
	if !reflect.DeepEqual(r.Keys, []string{"title", "type", "status", "tags"}) {
		t.Errorf("keys = %v", r.Keys)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
	if r.Type != models.TypeUnset || r.Status != nil {
		t.Errorf("type = %q, status = %v; want unset, nil", r.Type, r.Status)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Invalid YAML falls back to treating everything as body.
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
	if r.Body != string(input) {
		t.Errorf("body = %q", r.Body)
	}
}

func TestSplitFrontmatter_Unclosed(t *testing.T) {
	input := "---\ntitle: x\nno closing delimiter\n"
	fm, _, body := SplitFrontmatter([]byte(input))
	if fm != nil || body != input {
		t.Errorf("fm = %v, body = %q", fm, body)
	}
}

func TestSplitFrontmatter_EmptyBlock(t *testing.T) {
	fm, keys, body := SplitFrontmatter([]byte("---\n---\nbody"))
	if fm == nil || len(fm) != 0 || keys != nil {
		t.Errorf("fm = %v, keys = %v", fm, keys)
	}
	if body != "body" {
		t.Errorf("body = %q", body)
	}
}

func TestSplitFrontmatter_DotsCloseBlock(t *testing.T) {
	fm, _, body := SplitFrontmatter([]byte("---\ntitle: t\n...\nrest"))
	if v, _ := fm.String("title"); v != "t" {
		t.Errorf("fm = %v", fm)
	}
	if body != "rest" {
		t.Errorf("body = %q", body)
	}
}

func TestParse_LinksInFrontmatterIgnored(t *testing.T) {
	input := []byte("---\nrelated: \"[[hidden]]\"\n---\nSee [[visible|V]] and [[visible]].\n")
	r, _ := Parse(input)
	want := []models.LinkRef{{Target: "visible", Alias: "V"}, {Target: "visible", Alias: "visible"}}
	if !reflect.DeepEqual(r.Links, want) {
		t.Errorf("links = %+v, want %+v", r.Links, want)
	}
	if targets := r.Targets(); len(targets) != 1 || targets[0] != "visible" {
		t.Errorf("targets = %v", targets)
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := models.Frontmatter{
		"tags": []any{"alpha"},
	}
	body := "Some text #beta and #alpha again."
	tags := extractTags(body, fm)
	// alpha from FM, beta from body; alpha not duplicated.
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("tags = %v, want [alpha beta]", tags)
	}
}

func TestFrontmatterTags_CommaString(t *testing.T) {
	tags := FrontmatterTags(models.Frontmatter{"tags": "one, #two,one"})
	if !reflect.DeepEqual(tags, []string{"one", "two"}) {
		t.Errorf("tags = %v", tags)
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	fm := models.Frontmatter{"title": "FM Title"}
	body := "# H1 Title\ntext"
	title := deriveTitle(fm, body)
	if title != "FM Title" {
		t.Errorf("title = %q, want %q", title, "FM Title")
	}
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	title := deriveTitle(nil, "some text\n# My Heading\nmore")
	if title != "My Heading" {
		t.Errorf("title = %q, want %q", title, "My Heading")
	}
}

func TestDeriveStatus_NonString(t *testing.T) {
	s := deriveStatus(models.Frontmatter{"status": 3})
	if s == nil || *s != "3" {
		t.Errorf("status = %v", s)
	}
}
