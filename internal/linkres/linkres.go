// Package linkres extracts wikilinks from document bodies and rewrites them
// into links the renderer can navigate.
//
// Scanning is best-effort: anything that does not form a complete
// [[target]] or [[target|alias]] on a single line is left as literal text.
// Bodies must already have their frontmatter stripped (see parser.SplitFrontmatter).
package linkres

import (
	"net/url"
	"strings"

	"github.com/starford/orgview/internal/models"
)

const (
	openDelim  = "[["
	closeDelim = "]]"

	// Scheme prefixes the destination of rewritten wikilinks.
	Scheme = "wikilink:"
	// HashPrefix prefixes the href emitted by the renderer for wikilinks.
	HashPrefix = "#/doc/"
)

type span struct {
	start, end int
	ref        models.LinkRef
}

// ExtractLinks returns every wikilink in body, in order, duplicates included.
func ExtractLinks(body string) []models.LinkRef {
	spans := scan(body)
	if len(spans) == 0 {
		return nil
	}
	out := make([]models.LinkRef, len(spans))
	for i, s := range spans {
		out[i] = s.ref
	}
	return out
}

// RewriteForDisplay replaces each wikilink with a markdown link whose text is
// the alias and whose destination carries the target behind Scheme.
func RewriteForDisplay(body string) string {
	spans := scan(body)
	if len(spans) == 0 {
		return body
	}
	var b strings.Builder
	b.Grow(len(body) + len(spans)*len(Scheme))
	last := 0
	for _, s := range spans {
		prefix := body[last:s.start]
		if bang := len(prefix) - 1; bang >= 0 && prefix[bang] == '!' && !escaped(body, last+bang) {
			// "![" would start an image.
			prefix = prefix[:bang] + `\!`
		}
		b.WriteString(prefix)
		b.WriteByte('[')
		b.WriteString(escapeLabel(s.ref.Alias))
		b.WriteString("](")
		b.WriteString(Scheme)
		b.WriteString(url.PathEscape(s.ref.Target))
		b.WriteByte(')')
		last = s.end
	}
	b.WriteString(body[last:])
	return b.String()
}

// Href returns the in-app href of the document at target.
func Href(target string) string {
	return HashPrefix + url.PathEscape(target)
}

// TargetFromHref recovers the raw target from a rewritten destination or a
// rendered href. ok is false for ordinary links.
func TargetFromHref(href string) (string, bool) {
	var escaped string
	switch {
	case strings.HasPrefix(href, Scheme):
		escaped = strings.TrimPrefix(href, Scheme)
	case strings.HasPrefix(href, HashPrefix):
		escaped = strings.TrimPrefix(href, HashPrefix)
	default:
		return "", false
	}
	target, err := url.PathUnescape(escaped)
	if err != nil || target == "" {
		return "", false
	}
	return target, true
}

// escaped reports whether body[i] is preceded by an odd run of backslashes.
func escaped(body string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && body[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func escapeLabel(s string) string {
	if !strings.ContainsAny(s, "\\[]*_`<") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '[', ']', '*', '_', '`', '<':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// scan walks body once. Fenced code blocks, indented code blocks and inline
// code spans are skipped. An indented line only counts as code when it does
// not continue a paragraph; list continuations indented by four columns
// after a blank line are treated as code too.
func scan(body string) []span {
	var out []span
	fence := ""
	// prevBlank and inIndented track the previous line for indented code.
	prevBlank, inIndented := true, false
	i := 0
	for i < len(body) {
		lineEnd := strings.IndexByte(body[i:], '\n')
		if lineEnd < 0 {
			lineEnd = len(body)
		} else {
			lineEnd += i
		}
		line := body[i:lineEnd]

		if marker := fenceMarker(line); marker != "" {
			switch {
			case fence == "":
				fence = marker
			case strings.HasPrefix(strings.TrimLeft(line, " "), fence):
				fence = ""
			}
			prevBlank, inIndented = true, false
			i = lineEnd + 1
			continue
		}
		if fence != "" {
			i = lineEnd + 1
			continue
		}

		blank := strings.TrimSpace(line) == ""
		switch {
		case blank:
			// Blank lines neither open nor close an indented block.
		case indentWidth(line) >= 4 && (prevBlank || inIndented):
			inIndented = true
		default:
			inIndented = false
		}
		if !inIndented && !blank {
			out = scanLine(body, i, lineEnd, out)
		}
		prevBlank = blank
		i = lineEnd + 1
	}
	return out
}

func scanLine(body string, start, end int, out []span) []span {
	i := start
	for i < end {
		switch {
		case body[i] == '`':
			n := 1
			for i+n < end && body[i+n] == '`' {
				n++
			}
			if close := closingTicks(body[i+n:end], n); close >= 0 {
				i += n + close + n
			} else {
				i += n
			}
		case strings.HasPrefix(body[i:end], openDelim):
			if ref, next, ok := parseLink(body[:end], i); ok {
				out = append(out, span{start: i, end: next, ref: ref})
				i = next
			} else {
				i++
			}
		default:
			i++
		}
	}
	return out
}

// parseLink parses the wikilink whose opening delimiter starts at i.
func parseLink(line string, i int) (models.LinkRef, int, bool) {
	rest := line[i+len(openDelim):]
	closeAt := strings.Index(rest, closeDelim)
	if closeAt < 0 {
		return models.LinkRef{}, 0, false
	}
	inner := rest[:closeAt]
	if strings.Contains(inner, openDelim) {
		return models.LinkRef{}, 0, false
	}
	target, alias := inner, ""
	if p := strings.IndexByte(inner, '|'); p >= 0 {
		target, alias = inner[:p], inner[p+1:]
	}
	target = strings.TrimSpace(target)
	alias = strings.TrimSpace(alias)
	if target == "" {
		return models.LinkRef{}, 0, false
	}
	if alias == "" {
		alias = target
	}
	return models.LinkRef{Target: target, Alias: alias}, i + len(openDelim) + closeAt + len(closeDelim), true
}

// closingTicks finds a run of exactly n backticks in s.
func closingTicks(s string, n int) int {
	for j := 0; j < len(s); {
		if s[j] != '`' {
			j++
			continue
		}
		k := j
		for k < len(s) && s[k] == '`' {
			k++
		}
		if k-j == n {
			return j
		}
		j = k
	}
	return -1
}

// indentWidth counts leading columns, with tabs advancing to the next
// multiple of four.
func indentWidth(line string) int {
	w := 0
	for _, c := range line {
		switch c {
		case ' ':
			w++
		case '\t':
			w += 4 - w%4
		default:
			return w
		}
	}
	return w
}

func fenceMarker(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 || len(trimmed) < 3 {
		return ""
	}
	c := trimmed[0]
	if c != '`' && c != '~' {
		return ""
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == c {
		n++
	}
	if n < 3 {
		return ""
	}
	return trimmed[:n]
}
