// Package apperr holds the error taxonomy shared by the server and the client core.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrForbidden     = errors.New("forbidden")
	// ErrTransport marks network and connection failures. Callers may retry;
	// the core never retries on its own.
	ErrTransport      = errors.New("transport failure")
	ErrValidation     = errors.New("validation failed")
	ErrSaveInProgress = errors.New("save already in progress")
)

// ValidationError is returned when the server rejects a document.
// Fields maps a frontmatter field name to the reason it was rejected.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Transport wraps err so that it matches ErrTransport.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
