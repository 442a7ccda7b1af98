package parser

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/starford/orgview/internal/models"
)

// canonicalOrder places well-known keys first when no file order is known.
var canonicalOrder = []string{
	"title", "type", "status", "priority", "due", "remind_at", "repeat", "tags", "created", "updated",
}

// Serialize renders frontmatter and body back into a markdown file.
// Keys listed in order keep that order; the rest follow canonicalOrder and
// then sort alphabetically. An empty frontmatter yields the body alone.
func Serialize(fm models.Frontmatter, order []string, body string) ([]byte, error) {
	if len(fm) == 0 {
		return []byte(body), nil
	}

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range orderKeys(fm, order) {
		var val yaml.Node
		if err := val.Encode(fm[key]); err != nil {
			return nil, fmt.Errorf("parser: encode %q: %w", key, err)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&val,
		)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

func orderKeys(fm models.Frontmatter, order []string) []string {
	out := make([]string, 0, len(fm))
	placed := make(map[string]struct{}, len(fm))
	add := func(k string) {
		if _, ok := fm[k]; !ok {
			return
		}
		if _, done := placed[k]; done {
			return
		}
		placed[k] = struct{}{}
		out = append(out, k)
	}
	for _, k := range order {
		add(k)
	}
	for _, k := range canonicalOrder {
		add(k)
	}
	var rest []string
	for k := range fm {
		if _, done := placed[k]; !done {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		add(k)
	}
	return out
}
