// Package models defines the domain types for orgview.
package models

import (
	"strings"
	"time"
)

// DocType classifies a document by its frontmatter "type" field.
type DocType string

// Document types. TypeUnset covers both a missing and an unrecognised "type".
const (
	TypeTask      DocType = "task"
	TypeKnowledge DocType = "knowledge"
	TypeInbox     DocType = "inbox"
	TypeReminder  DocType = "reminder"
	TypeUnset     DocType = ""
)

// ParseDocType maps a raw frontmatter value to a DocType.
func ParseDocType(raw string) DocType {
	switch t := DocType(strings.ToLower(strings.TrimSpace(raw))); t {
	case TypeTask, TypeKnowledge, TypeInbox, TypeReminder:
		return t
	default:
		return TypeUnset
	}
}

// Frontmatter holds the decoded YAML metadata block of a document.
type Frontmatter map[string]any

// Clone returns a shallow copy; nested values are shared.
func (f Frontmatter) Clone() Frontmatter {
	out := make(Frontmatter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// String returns the value of key when it is a non-empty scalar string.
func (f Frontmatter) String(key string) (string, bool) {
	v, ok := f[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Document is a parsed markdown file as served by the document API.
//
// Content is the body with the frontmatter block already stripped.
type Document struct {
	Path        string      `json:"path"`
	Title       string      `json:"title"`
	Type        DocType     `json:"type"`
	Status      *string     `json:"status"`
	Tags        []string    `json:"tags"`
	Content     string      `json:"content"`
	Links       []LinkRef   `json:"links"`
	Backlinks   []LinkRef   `json:"backlinks"`
	Frontmatter Frontmatter `json:"frontmatter"`
	Revision    string      `json:"revision"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// DocumentMetadata is a lightweight representation returned by list operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LinkRef is one wikilink reference. Alias is the display text and equals
// Target when the link carries no alias.
type LinkRef struct {
	Target string `json:"target"`
	Alias  string `json:"alias"`
}

// Change kinds carried by ChangeEvent.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
	// ChangeResync is emitted by clients on every connect; events may have
	// been missed, so every displayed document should be reloaded.
	ChangeResync = "resync"
)

// ChangeEvent reports that the document at Path changed on the server.
type ChangeEvent struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Path string `json:"path"`
}
