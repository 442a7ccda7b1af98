package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/orgview/internal/apperr"
	"github.com/starford/orgview/internal/checksum"
	"github.com/starford/orgview/internal/models"
)

// TempPrefix names in-flight atomic writes; watchers ignore such files.
const TempPrefix = ".orgview-tmp-"

var ignoredDirs = map[string]bool{
	".git":         true,
	".obsidian":    true,
	".trash":       true,
	"node_modules": true,
}

// Ignored reports whether rel lies inside an ignored directory or names a
// temporary write file.
func Ignored(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if ignoredDirs[part] || strings.HasPrefix(part, TempPrefix) {
			return true
		}
	}
	return false
}

// IgnoredDir reports whether a directory with this base name is skipped.
func IgnoredDir(name string) bool { return ignoredDirs[name] }

// FS implements Provider on the local file system.
type FS struct {
	root string // absolute
}

// NewFS creates a provider rooted at an existing directory.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute org root directory.
func (f *FS) Root() string { return f.root }

// abs maps rel onto the root, rejecting absolute paths and traversal.
func (f *FS) abs(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	native := filepath.FromSlash(rel)
	if filepath.IsAbs(native) {
		return "", fmt.Errorf("storage: absolute path %q: %w", rel, apperr.ErrForbidden)
	}
	p := filepath.Join(f.root, native)
	if p != f.root && !strings.HasPrefix(p, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: %q escapes org root: %w", rel, apperr.ErrForbidden)
	}
	return p, nil
}

func (f *FS) rel(abs string) string {
	r, _ := filepath.Rel(f.root, abs)
	return filepath.ToSlash(r)
}

// notFound converts fs.ErrNotExist into apperr.ErrNotFound.
func notFound(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %s: %w", op, path, apperr.ErrNotFound)
	}
	return fmt.Errorf("storage: %s %s: %w", op, path, err)
}

// List walks dir and returns metadata for every .md file.
func (f *FS) List(dir string) ([]models.DocumentMetadata, error) {
	base, err := f.abs(dir)
	if err != nil {
		return nil, err
	}
	var out []models.DocumentMetadata
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != base && IgnoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") || strings.HasPrefix(d.Name(), TempPrefix) {
			return nil
		}
		meta, err := f.stat(p)
		if err != nil {
			return err
		}
		out = append(out, meta)
		return nil
	})
	if err != nil {
		return nil, notFound("list", dir, err)
	}
	return out, nil
}

// Stat returns path's metadata including its checksum.
func (f *FS) Stat(path string) (models.DocumentMetadata, error) {
	p, err := f.abs(path)
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	meta, err := f.stat(p)
	if err != nil {
		return models.DocumentMetadata{}, notFound("stat", path, err)
	}
	return meta, nil
}

func (f *FS) stat(p string) (models.DocumentMetadata, error) {
	info, err := os.Stat(p)
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	if info.IsDir() {
		return models.DocumentMetadata{}, fs.ErrNotExist
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	return models.DocumentMetadata{
		Path:      f.rel(p),
		Checksum:  checksum.Sum(data),
		UpdatedAt: info.ModTime(),
	}, nil
}

// Read returns the raw bytes of a file.
func (f *FS) Read(path string) ([]byte, error) {
	p, err := f.abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, notFound("read", path, err)
	}
	return data, nil
}

// Write replaces path through a synced temp file and a rename, so readers
// never observe a partial document. An existing file keeps its mode.
func (f *FS) Write(path string, content []byte) error {
	p, err := f.abs(path)
	if err != nil {
		return err
	}
	if p == f.root {
		return fmt.Errorf("storage: write to org root: %w", apperr.ErrForbidden)
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", f.rel(dir), err)
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(p); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("storage: chmod %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("storage: rename %s: %w", path, err)
	}
	committed = true
	return nil
}

// Delete removes a file.
func (f *FS) Delete(path string) error {
	p, err := f.abs(path)
	if err != nil {
		return err
	}
	if p == f.root {
		return fmt.Errorf("storage: delete org root: %w", apperr.ErrForbidden)
	}
	if err := os.Remove(p); err != nil {
		return notFound("delete", path, err)
	}
	return nil
}
