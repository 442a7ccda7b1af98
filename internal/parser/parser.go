// Package parser splits markdown documents into frontmatter and body and
// derives the fields the index and API expose.
//
// Parsing is two ordered passes: a delimiter scan that strips the leading
// frontmatter block, then a wikilink scan over the remaining body. Metadata
// blocks never reach the link scanner.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/orgview/internal/linkres"
	"github.com/starford/orgview/internal/models"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// Result holds the output of parsing a markdown file.
type Result struct {
	Frontmatter models.Frontmatter
	// Keys lists frontmatter keys in file order.
	Keys   []string
	Body   string
	Links  []models.LinkRef
	Tags   []string
	Title  string
	Type   models.DocType
	Status *string
}

// Targets returns the distinct link targets in first-seen order.
func (r *Result) Targets() []string {
	seen := make(map[string]struct{}, len(r.Links))
	var out []string
	for _, l := range r.Links {
		if _, ok := seen[l.Target]; ok {
			continue
		}
		seen[l.Target] = struct{}{}
		out = append(out, l.Target)
	}
	return out
}

// Parse extracts frontmatter, body, wikilinks, and tags from raw markdown bytes.
// Malformed frontmatter degrades to an all-body document.
func Parse(data []byte) (*Result, error) {
	fm, keys, body := SplitFrontmatter(data)

	return &Result{
		Frontmatter: fm,
		Keys:        keys,
		Body:        body,
		Links:       linkres.ExtractLinks(body),
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
		Type:        deriveType(fm),
		Status:      deriveStatus(fm),
	}, nil
}

// SplitFrontmatter separates a leading YAML block delimited by "---" lines from
// the body. Without a complete, valid block the whole input is body and fm is nil.
func SplitFrontmatter(data []byte) (fm models.Frontmatter, keys []string, body string) {
	trimmed := bytes.TrimLeft(data, "\n\r")

	first, rest, ok := cutLine(trimmed)
	if !ok || !isDelimiter(first, false) {
		return nil, nil, string(data)
	}

	var block []byte
	for offset := 0; ; {
		line, next, more := cutLine(rest[offset:])
		if isDelimiter(line, true) {
			block = rest[:offset]
			body = strings.TrimLeft(string(next), "\n\r")
			break
		}
		if !more {
			// No closing delimiter: everything is body.
			return nil, nil, string(data)
		}
		offset += len(rest[offset:]) - len(next)
	}

	fm, keys, err := decodeBlock(block)
	if err != nil {
		return nil, nil, string(data)
	}
	return fm, keys, body
}

// cutLine returns the first line of b without its terminator and the
// remainder. more is false when b has no newline.
func cutLine(b []byte) (line, rest []byte, more bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return b, nil, false
	}
	return b[:i], b[i+1:], true
}

func isDelimiter(line []byte, closing bool) bool {
	s := strings.TrimRight(string(line), " \t\r")
	if s == "---" {
		return true
	}
	return closing && s == "..."
}

func decodeBlock(block []byte) (models.Frontmatter, []string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		return nil, nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		// Empty block.
		return models.Frontmatter{}, nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("parser: frontmatter is not a mapping")
	}
	fm := make(models.Frontmatter, len(root.Content)/2)
	keys := make([]string, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		var v any
		if err := root.Content[i+1].Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, dup := fm[key]; !dup {
			keys = append(keys, key)
		}
		fm[key] = v
	}
	return fm, keys, nil
}

// FrontmatterTags returns the tags declared in the frontmatter "tags" field.
// Both YAML lists and comma separated strings are accepted.
func FrontmatterTags(fm models.Frontmatter) []string {
	raw, ok := fm["tags"]
	if !ok || raw == nil {
		return nil
	}
	var items []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			} else if item != nil {
				items = append(items, fmt.Sprint(item))
			}
		}
	case []string:
		items = v
	case string:
		items = strings.Split(v, ",")
	}
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, s := range items {
		s = strings.TrimPrefix(strings.TrimSpace(s), "#")
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// extractTags collects frontmatter tags followed by inline #tags from body.
func extractTags(body string, fm models.Frontmatter) []string {
	out := FrontmatterTags(fm)
	seen := make(map[string]struct{}, len(out))
	for _, t := range out {
		seen[t] = struct{}{}
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		t := m[1]
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm models.Frontmatter, body string) string {
	if t, ok := fm.String("title"); ok {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

func deriveType(fm models.Frontmatter) models.DocType {
	t, _ := fm.String("type")
	return models.ParseDocType(t)
}

func deriveStatus(fm models.Frontmatter) *string {
	v, ok := fm["status"]
	if !ok || v == nil {
		return nil
	}
	s := fmt.Sprint(v)
	return &s
}
