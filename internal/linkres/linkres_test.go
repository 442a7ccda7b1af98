package linkres

import (
	"reflect"
	"testing"

	"github.com/starford/orgview/internal/models"
)

func TestExtractLinks_AliasAndPlain(t *testing.T) {
	body := "Review [[tasks/a.md|Task A]] and [[tasks/b.md]]"
	got := ExtractLinks(body)
	want := []models.LinkRef{
		{Target: "tasks/a.md", Alias: "Task A"},
		{Target: "tasks/b.md", Alias: "tasks/b.md"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("links = %+v, want %+v", got, want)
	}
}

func TestRewriteForDisplay_Scenario(t *testing.T) {
	body := "Review [[tasks/a.md|Task A]] and [[tasks/b.md]]"
	got := RewriteForDisplay(body)
	want := "Review [Task A](wikilink:tasks%2Fa.md) and [tasks/b.md](wikilink:tasks%2Fb.md)"
	if got != want {
		t.Errorf("display = %q, want %q", got, want)
	}
}

func TestExtractLinks_Unbalanced(t *testing.T) {
	body := "see [[note"
	if links := ExtractLinks(body); len(links) != 0 {
		t.Errorf("expected no links, got %+v", links)
	}
	if got := RewriteForDisplay(body); got != body {
		t.Errorf("display = %q, want literal %q", got, body)
	}
}

func TestExtractLinks_Idempotent(t *testing.T) {
	body := "[[a]] then [[b|B]] and [[a]] again, plus [[broken"
	first := ExtractLinks(body)
	second := ExtractLinks(body)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("first = %+v, second = %+v", first, second)
	}
	if len(first) != 3 {
		t.Errorf("len = %d, want 3 (duplicates kept)", len(first))
	}
}

func TestExtractLinks_MalformedCases(t *testing.T) {
	cases := []string{
		"empty [[ ]] link",
		"alias only [[|alias]]",
		"spans\n[[two\nlines]]",
		"closing only ]] here",
	}
	for _, body := range cases {
		if links := ExtractLinks(body); len(links) != 0 {
			t.Errorf("%q: expected no links, got %+v", body, links)
		}
	}
}

func TestExtractLinks_NestedOpenRecoversInnerLink(t *testing.T) {
	links := ExtractLinks("[[outer [[inner]]")
	if len(links) != 1 || links[0].Target != "inner" {
		t.Errorf("links = %+v, want [inner]", links)
	}
}

func TestExtractLinks_SkipsCode(t *testing.T) {
	body := "before [[a]]\n```\n[[in-fence]]\n```\nuse `[[in-span]]` and [[b]]\n"
	links := ExtractLinks(body)
	if len(links) != 2 || links[0].Target != "a" || links[1].Target != "b" {
		t.Errorf("links = %+v, want [a b]", links)
	}
}

func TestExtractLinks_UnclosedFenceSwallowsRest(t *testing.T) {
	links := ExtractLinks("~~~\n[[hidden]]\n")
	if len(links) != 0 {
		t.Errorf("links = %+v, want none", links)
	}
}

func TestRewriteForDisplay_EscapesLabel(t *testing.T) {
	got := RewriteForDisplay("[[x.md|a_b [c]]]")
	// The scanner stops at the first "]]", so the alias is "a_b [c".
	want := `[a\_b \[c](wikilink:x.md)]`
	if got != want {
		t.Errorf("display = %q, want %q", got, want)
	}
}

func TestTargetFromHref(t *testing.T) {
	cases := []struct {
		href   string
		target string
		ok     bool
	}{
		{"wikilink:tasks%2Fa.md", "tasks/a.md", true},
		{"#/doc/notes%2Fmy%20note", "notes/my note", true},
		{"https://example.com", "", false},
		{"wikilink:", "", false},
	}
	for _, c := range cases {
		target, ok := TargetFromHref(c.href)
		if target != c.target || ok != c.ok {
			t.Errorf("TargetFromHref(%q) = %q, %v; want %q, %v", c.href, target, ok, c.target, c.ok)
		}
	}
}

func TestResolver_Navigate(t *testing.T) {
	var got []string
	r := &Resolver{OnNavigate: func(target string) { got = append(got, target) }}

	if !r.Navigate("#/doc/tasks%2Fa.md") {
		t.Error("expected wikilink href to navigate")
	}
	if r.Navigate("https://example.com") {
		t.Error("external href should not navigate")
	}
	if len(got) != 1 || got[0] != "tasks/a.md" {
		t.Errorf("navigated = %v", got)
	}
}

func TestPrepare(t *testing.T) {
	doc := &models.Document{
		Path:      "x.md",
		Title:     "X",
		Content:   "see [[y.md|Y]]",
		Backlinks: []models.LinkRef{{Target: "z.md", Alias: "Z"}},
	}
	v := Prepare(doc)
	if v.Body != "see [Y](wikilink:y.md)" {
		t.Errorf("body = %q", v.Body)
	}
	if len(v.Links) != 1 || v.Links[0].Alias != "Y" {
		t.Errorf("links = %+v", v.Links)
	}
	if len(v.Backlinks) != 1 || v.Backlinks[0].Target != "z.md" {
		t.Errorf("backlinks = %+v", v.Backlinks)
	}
}

func TestHref_RoundTrip(t *testing.T) {
	for _, target := range []string{"tasks/a.md", "notes/with space.md", "x#y"} {
		got, ok := TargetFromHref(Href(target))
		if !ok || got != target {
			t.Errorf("TargetFromHref(Href(%q)) = %q, %v", target, got, ok)
		}
	}
}

func TestRewriteForDisplay_BangBeforeLinkStaysLink(t *testing.T) {
	cases := map[string]string{
		"see ![[pic.png]] here":  `see \![pic.png](wikilink:pic.png) here`,
		`see \![[pic.png]] here`: `see \![pic.png](wikilink:pic.png) here`,
		"wow!![[a]]":             `wow!\![a](wikilink:a)`,
	}
	for in, want := range cases {
		if got := RewriteForDisplay(in); got != want {
			t.Errorf("RewriteForDisplay(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractLinks_SkipsIndentedCode(t *testing.T) {
	body := "intro [[a]]\n\n    code [[in-code]]\n\n\tmore [[tabbed]]\n\nafter [[b]]\n"
	links := ExtractLinks(body)
	if len(links) != 2 || links[0].Target != "a" || links[1].Target != "b" {
		t.Errorf("links = %+v, want [a b]", links)
	}
}

func TestExtractLinks_IndentedParagraphContinuation(t *testing.T) {
	// Without a blank line before it an indented line continues the paragraph.
	links := ExtractLinks("first line\n    still prose [[c]]\n- item\n    - nested [[d]]\n")
	if len(links) != 2 || links[0].Target != "c" || links[1].Target != "d" {
		t.Errorf("links = %+v, want [c d]", links)
	}
}
