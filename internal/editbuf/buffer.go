// Package editbuf converts documents to a flat, schema-driven edit buffer and
// back without losing fields the buffer does not expose.
package editbuf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/orgview/internal/apperr"
	"github.com/starford/orgview/internal/models"
)

// Field is one editable frontmatter field.
type Field struct {
	Spec models.FieldSpec
	// Text holds string and enum values.
	Text string
	// Tags holds tag list values.
	Tags     []string
	Present  bool
	Modified bool
}

// Buffer is the editable form of a document.
type Buffer struct {
	Path         string
	Type         models.DocType
	Fields       []Field
	Body         string
	BodyModified bool
	// Source is the document the buffer was built from.
	Source *models.Document
}

// ToEditBuffer builds a buffer for doc. Field values come from the raw
// frontmatter, not from derived document attributes.
func ToEditBuffer(doc *models.Document) *Buffer {
	schema := models.Schema(doc.Type)
	buf := &Buffer{
		Path:   doc.Path,
		Type:   doc.Type,
		Fields: make([]Field, len(schema)),
		Body:   doc.Content,
		Source: doc,
	}
	for i, spec := range schema {
		f := Field{Spec: spec}
		if v, ok := doc.Frontmatter[spec.Name]; ok && v != nil {
			f.Present = true
			if spec.Kind == models.KindTags {
				f.Tags = tagValues(v)
			} else {
				f.Text = scalarText(v)
			}
		}
		buf.Fields[i] = f
	}
	return buf
}

// Field returns a copy of the named field.
func (b *Buffer) Field(name string) (Field, bool) {
	if i := b.index(name); i >= 0 {
		return b.Fields[i], true
	}
	return Field{}, false
}

// Set assigns a string or enum field. For tag fields text is split on
// commas. An empty text clears the field.
func (b *Buffer) Set(name, text string) error {
	i := b.index(name)
	if i < 0 {
		return unknownField(name)
	}
	f := &b.Fields[i]
	if f.Spec.Kind == models.KindTags {
		return b.SetTags(name, strings.Split(text, ","))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return b.Clear(name)
	}
	if f.Present && f.Text == text {
		return nil
	}
	f.Text, f.Present, f.Modified = text, true, true
	return nil
}

// SetTags assigns a tag field. Tags are trimmed, empty entries dropped and
// duplicates removed keeping the first occurrence. An empty list clears it.
func (b *Buffer) SetTags(name string, tags []string) error {
	i := b.index(name)
	if i < 0 {
		return unknownField(name)
	}
	f := &b.Fields[i]
	if f.Spec.Kind != models.KindTags {
		return &apperr.ValidationError{Fields: map[string]string{name: "not a tag field"}}
	}
	clean := normalizeTags(tags)
	if len(clean) == 0 {
		return b.Clear(name)
	}
	if f.Present && equalStrings(f.Tags, clean) {
		return nil
	}
	f.Tags, f.Present, f.Modified = clean, true, true
	return nil
}

// Clear removes the field from the document on save.
func (b *Buffer) Clear(name string) error {
	i := b.index(name)
	if i < 0 {
		return unknownField(name)
	}
	f := &b.Fields[i]
	if !f.Present {
		return nil
	}
	f.Text, f.Tags, f.Present, f.Modified = "", nil, false, true
	return nil
}

// SetBody replaces the body.
func (b *Buffer) SetBody(body string) {
	if body == b.Body {
		return
	}
	b.Body = body
	b.BodyModified = true
}

// Dirty reports whether anything was changed since the buffer was built.
func (b *Buffer) Dirty() bool {
	if b.BodyModified {
		return true
	}
	for _, f := range b.Fields {
		if f.Modified {
			return true
		}
	}
	return false
}

// Validate checks the fields the user modified against the schema. Values
// loaded from the document pass through unchecked. It returns an
// *apperr.ValidationError naming each rejected field.
func (b *Buffer) Validate() error {
	fields := map[string]string{}
	for _, f := range b.Fields {
		if !f.Present || !f.Modified {
			continue
		}
		if err := models.ValidateField(f.Spec, f.value()); err != nil {
			fields[f.Spec.Name] = err.Error()
		}
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

// FromEditBuffer produces the frontmatter and body to submit. It starts from
// a copy of original's frontmatter and applies only modified fields, so
// fields outside the schema and untouched fields survive verbatim. A nil
// original falls back to the buffer's source document.
func FromEditBuffer(buf *Buffer, original *models.Document) (models.Frontmatter, string) {
	if original == nil {
		original = buf.Source
	}
	var fm models.Frontmatter
	if original != nil {
		fm = original.Frontmatter.Clone()
	} else {
		fm = models.Frontmatter{}
	}
	for _, f := range buf.Fields {
		if !f.Modified {
			continue
		}
		if !f.Present {
			delete(fm, f.Spec.Name)
			continue
		}
		fm[f.Spec.Name] = f.value()
	}
	return fm, buf.Body
}

func (f Field) value() any {
	if f.Spec.Kind == models.KindTags {
		return append([]string(nil), f.Tags...)
	}
	return f.Text
}

func (b *Buffer) index(name string) int {
	for i, f := range b.Fields {
		if f.Spec.Name == name {
			return i
		}
	}
	return -1
}

func unknownField(name string) error {
	return &apperr.ValidationError{Fields: map[string]string{name: "not an editable field"}}
}

func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func tagValues(v any) []string {
	switch x := v.(type) {
	case string:
		return normalizeTags(strings.Split(x, ","))
	case []string:
		return normalizeTags(x)
	case []any:
		out := make([]string, 0, len(x))
		for _, t := range x {
			out = append(out, scalarText(t))
		}
		return normalizeTags(out)
	default:
		return nil
	}
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
