// Package docsync keeps the client's cached view of documents consistent
// with the server: stamped loads, change-driven invalidation and the save
// pipeline all run on a single Session loop.
package docsync

import (
	"context"
	"time"

	"github.com/starford/orgview/internal/models"
)

// Backend is the document API the session talks to.
type Backend interface {
	FetchDocument(ctx context.Context, path string) (*models.Document, error)
	SubmitDocument(ctx context.Context, path string, fm models.Frontmatter, body string) (*models.Document, error)
}

// ChangeSource delivers server change notifications.
type ChangeSource interface {
	Subscribe(fn func(models.ChangeEvent)) (unsubscribe func())
}

// State is the lifecycle state of a cache entry.
type State int

const (
	Idle State = iota
	Fetching
	Pending
	Committed
	Failed
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Entry is an immutable snapshot of one cached document. Changes replace the
// entry in the store instead of mutating it.
type Entry struct {
	Path     string
	Document *models.Document
	State    State
	// Pending is true while a save for Path is in flight.
	Pending bool
	// Version is the stamp of the last applied load.
	Version   uint64
	Err       error
	FetchedAt time.Time
}

// Store maps paths to their current entry. It is not safe for concurrent
// use; a Session confines it to its loop.
type Store struct {
	entries map[string]*Entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*Entry)}
}

// Get returns the entry for path or nil.
func (s *Store) Get(path string) *Entry { return s.entries[path] }

// Put replaces the entry for e.Path.
func (s *Store) Put(e *Entry) { s.entries[e.Path] = e }

// Delete evicts the entry for path.
func (s *Store) Delete(path string) { delete(s.entries, path) }

// Len returns the number of slots.
func (s *Store) Len() int { return len(s.entries) }
