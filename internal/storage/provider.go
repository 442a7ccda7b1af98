// Package storage reads and writes the documents of the org root.
//
// Paths are slash-separated and relative to the org root. Missing files
// surface as apperr.ErrNotFound and paths escaping the root as
// apperr.ErrForbidden.
package storage

import "github.com/starford/orgview/internal/models"

// Provider is the interface for document file operations.
type Provider interface {
	// List returns metadata for every .md file under dir, skipping ignored
	// directories.
	List(dir string) ([]models.DocumentMetadata, error)
	// Stat returns the metadata of one file.
	Stat(path string) (models.DocumentMetadata, error)
	Read(path string) ([]byte, error)
	// Write replaces path atomically, creating parent directories.
	Write(path string, content []byte) error
	Delete(path string) error
}
