package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/starford/orgview/internal/linkres"
	"github.com/starford/orgview/internal/models"
)

func TestRender_Wikilinks(t *testing.T) {
	r := New()
	body := linkres.RewriteForDisplay("Review [[tasks/a.md|Task A]] and [[tasks/b.md]]")
	out, err := r.Render(body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`<a href="#/doc/tasks%2Fa.md" class="wikilink">Task A</a>`,
		`<a href="#/doc/tasks%2Fb.md" class="wikilink">tasks/b.md</a>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
}

func TestRender_UnbalancedLinkLiteral(t *testing.T) {
	out, err := New().Render(linkres.RewriteForDisplay("see [[note"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "see [[note") || strings.Contains(out, "<a") {
		t.Errorf("out = %s", out)
	}
}

func TestRender_OrdinaryLinksUntouched(t *testing.T) {
	out, err := New().Render("[site](https://example.com)")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `<a href="https://example.com">site</a>`) {
		t.Errorf("out = %s", out)
	}
}

func TestRender_HighlightsFencedCode(t *testing.T) {
	out, err := New().Render("```go\nfunc main() {}\n```\n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<pre") || !strings.Contains(out, "style=") {
		t.Errorf("code not highlighted:\n%s", out)
	}
	if !strings.Contains(out, "main") {
		t.Errorf("code lost:\n%s", out)
	}
}

func TestRender_UnknownLanguageStillRenders(t *testing.T) {
	out, err := New(WithStyle("no-such-style")).Render("```nolang\n<b>x</b>\n```\n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "&lt;b&gt;x&lt;/b&gt;") {
		t.Errorf("out = %s", out)
	}
}

func TestRender_RawHTMLOmitted(t *testing.T) {
	out, err := New().Render("<script>alert(1)</script>\n")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("raw html passed through: %s", out)
	}
}

func TestWritePage(t *testing.T) {
	doc := &models.Document{
		Path:      "tasks/a.md",
		Title:     "A <task>",
		Content:   "Links to [[b.md]].",
		Backlinks: []models.LinkRef{{Target: "notes/c.md", Alias: "Note C"}},
	}
	var buf bytes.Buffer
	if err := New().WritePage(&buf, doc); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"<title>A &lt;task&gt;</title>",
		`href="#/doc/b.md"`,
		`class="wikilink"`,
		"Note C</a>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("page missing %s:\n%s", want, out)
		}
	}
}

func TestRender_BangBeforeWikilinkIsNotImage(t *testing.T) {
	out, err := New().Render(linkres.RewriteForDisplay("see ![[pic.png]] here"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "<img") {
		t.Errorf("wikilink rendered as image:\n%s", out)
	}
	if !strings.Contains(out, `!<a href="#/doc/pic.png" class="wikilink">pic.png</a>`) {
		t.Errorf("output:\n%s", out)
	}
}

func TestRender_IndentedCodeKeepsBrackets(t *testing.T) {
	out, err := New().Render(linkres.RewriteForDisplay("text\n\n    code [[a]]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "code [[a]]") || strings.Contains(out, "wikilink") {
		t.Errorf("output:\n%s", out)
	}
}
