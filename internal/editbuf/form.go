package editbuf

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/orgview/internal/apperr"
	"github.com/starford/orgview/internal/models"
)

// Separator is the line dividing the field header from the body in the
// text form of a buffer.
const Separator = "+++"

const formHelp = "# Edit fields above the +++ line and the body below it.\n" +
	"# Leave a field empty to remove it. Enum choices are listed after each value.\n"

// EncodeForm renders buf as editable text: a YAML mapping of the schema
// fields in schema order, the separator line, then the body verbatim.
func EncodeForm(buf *Buffer) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range buf.Fields {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Spec.Name}
		var val *yaml.Node
		switch {
		case f.Spec.Kind == models.KindTags:
			val = &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			for _, t := range f.Tags {
				val.Content = append(val.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t})
			}
		case f.Present:
			val = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Text}
		default:
			val = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
		}
		if f.Spec.Kind == models.KindEnum {
			val.LineComment = strings.Join(f.Spec.Options, " | ")
		}
		root.Content = append(root.Content, key, val)
	}

	var out bytes.Buffer
	out.WriteString(formHelp)
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("editbuf: encode form: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("editbuf: encode form: %w", err)
	}
	out.WriteString(Separator + "\n")
	out.WriteString(buf.Body)
	return out.Bytes(), nil
}

// DecodeForm applies edited form text to buf. Only values that differ from
// the buffer mark fields modified, so decoding an unchanged form leaves the
// buffer clean. Fields missing from the header are left as they are. On
// error buf is not changed.
func DecodeForm(data []byte, buf *Buffer) error {
	header, body, ok := cutSeparator(string(data))
	if !ok {
		return fmt.Errorf("editbuf: decode form: missing %q separator line", Separator)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(header), &doc); err != nil {
		return &apperr.ValidationError{Fields: map[string]string{"": "invalid field header: " + err.Error()}}
	}

	next := *buf
	next.Fields = append([]Field(nil), buf.Fields...)

	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		m := doc.Content[0]
		if m.Kind != yaml.MappingNode {
			return &apperr.ValidationError{Fields: map[string]string{"": "field header must be a mapping"}}
		}
		for i := 0; i+1 < len(m.Content); i += 2 {
			if err := applyNode(&next, m.Content[i].Value, m.Content[i+1]); err != nil {
				return err
			}
		}
	}
	next.SetBody(body)

	*buf = next
	return nil
}

func applyNode(buf *Buffer, name string, val *yaml.Node) error {
	f, ok := buf.Field(name)
	if !ok {
		return unknownField(name)
	}
	if val.Kind == yaml.ScalarNode && (val.Tag == "!!null" || val.Value == "") {
		return buf.Clear(name)
	}

	if f.Spec.Kind == models.KindTags {
		switch val.Kind {
		case yaml.SequenceNode:
			tags := make([]string, 0, len(val.Content))
			for _, item := range val.Content {
				if item.Kind != yaml.ScalarNode {
					return &apperr.ValidationError{Fields: map[string]string{name: "must be a list of strings"}}
				}
				tags = append(tags, item.Value)
			}
			return buf.SetTags(name, tags)
		case yaml.ScalarNode:
			return buf.Set(name, val.Value)
		}
		return &apperr.ValidationError{Fields: map[string]string{name: "must be a list of strings"}}
	}

	if val.Kind != yaml.ScalarNode {
		return &apperr.ValidationError{Fields: map[string]string{name: "must be a single value"}}
	}
	return buf.Set(name, val.Value)
}

// cutSeparator splits text at the first line consisting of Separator.
func cutSeparator(text string) (header, body string, ok bool) {
	rest := text
	offset := 0
	for rest != "" {
		line, after, found := strings.Cut(rest, "\n")
		if strings.TrimRight(line, " \t\r") == Separator {
			return text[:offset], after, true
		}
		if !found {
			break
		}
		offset += len(line) + 1
		rest = after
	}
	return "", "", false
}
