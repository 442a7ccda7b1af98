// Package projects exposes the source trees under <org root>/projects for
// read-mostly browsing: project listing, filtered file trees, and single
// file read/write.
package projects

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/orgview/internal/apperr"
	"github.com/starford/orgview/internal/storage"
)

// Project is one directory under the projects root.
type Project struct {
	Name      string `json:"name"`
	HasReadme bool   `json:"hasReadme"`
	HasClaude bool   `json:"hasClaude"`
}

// TreeEntry is a node of a project file tree.
type TreeEntry struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	IsDir    bool        `json:"isDir"`
	Size     *int64      `json:"size,omitempty"`
	Language string      `json:"language,omitempty"`
	Children []TreeEntry `json:"children,omitempty"`
}

// File is the content of one project file.
type File struct {
	Path     string  `json:"path"`
	Content  string  `json:"content"`
	Language *string `json:"language"`
	Size     int64   `json:"size"`
}

var excludedDirs = map[string]bool{
	"node_modules": true, ".git": true, ".obsidian": true, "dist": true,
	"build": true, "target": true, "__pycache__": true, ".next": true,
	".turbo": true, ".cargo": true, ".cache": true, ".parcel-cache": true,
	"coverage": true, ".svelte-kit": true, ".nuxt": true, ".output": true,
	"vendor": true, ".vercel": true,
}

var excludedFiles = map[string]bool{
	".DS_Store": true, "Thumbs.db": true, ".env": true, ".env.local": true,
}

// Browser serves projects rooted at <orgRoot>/projects.
type Browser struct {
	root string
}

// NewBrowser creates a Browser for the given org root. The projects
// directory does not need to exist.
func NewBrowser(orgRoot string) *Browser {
	return &Browser{root: filepath.Join(orgRoot, "projects")}
}

// List returns every non-hidden project directory sorted by name.
// A missing projects directory yields an empty list.
func (b *Browser) List() ([]Project, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Project{}, nil
		}
		return nil, fmt.Errorf("projects: list: %w", err)
	}

	out := []Project{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(b.root, e.Name())
		out = append(out, Project{
			Name:      e.Name(),
			HasReadme: fileExists(filepath.Join(dir, "README.md")),
			HasClaude: fileExists(filepath.Join(dir, "CLAUDE.md")),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Tree returns the filtered file tree of project name.
func (b *Browser) Tree(name string) ([]TreeEntry, error) {
	dir, err := b.resolve(filepath.Join(b.root, name))
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, apperr.ErrNotFound
	}
	return buildTree(dir, dir), nil
}

// ReadFile returns the content of path inside project name.
func (b *Browser) ReadFile(name, path string) (*File, error) {
	abs, err := b.resolve(filepath.Join(b.root, name, filepath.FromSlash(path)))
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return nil, apperr.ErrNotFound
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("projects: read %s: %w", path, err)
	}
	var lang *string
	if l := DetectLanguage(info.Name()); l != "" {
		lang = &l
	}
	return &File{Path: path, Content: string(data), Language: lang, Size: info.Size()}, nil
}

// WriteFile replaces the content of an existing file inside project name.
// Creating new files is not supported.
func (b *Browser) WriteFile(name, path string, content []byte) error {
	abs, err := b.resolve(filepath.Join(b.root, name, filepath.FromSlash(path)))
	if err != nil {
		return err
	}
	if info, err := os.Stat(abs); err != nil || !info.Mode().IsRegular() {
		return apperr.ErrNotFound
	}
	rootAbs, err := filepath.EvalSymlinks(b.root)
	if err != nil {
		return fmt.Errorf("projects: resolve root: %w", err)
	}
	store, err := storage.NewFS(rootAbs)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil {
		return fmt.Errorf("projects: relative path: %w", err)
	}
	return store.Write(rel, content)
}

// resolve canonicalizes p (following symlinks) and rejects results outside
// the projects root. A path that does not exist is ErrNotFound.
func (b *Browser) resolve(p string) (string, error) {
	rootAbs, err := filepath.EvalSymlinks(b.root)
	if err != nil {
		return "", apperr.ErrNotFound
	}
	abs, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", apperr.ErrNotFound
	}
	if abs != rootAbs && !strings.HasPrefix(abs, rootAbs+string(os.PathSeparator)) {
		return "", apperr.ErrForbidden
	}
	return abs, nil
}

// buildTree lists dir recursively: directories first, then files, each
// alphabetically. Excluded, hidden, binary entries and empty directories
// are left out.
func buildTree(dir, projectRoot string) []TreeEntry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	var out []TreeEntry
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() && excludedDirs[name] || !e.IsDir() && excludedFiles[name] {
			continue
		}
		if strings.HasPrefix(name, ".") {
			continue
		}
		abs := filepath.Join(dir, name)
		rel, _ := filepath.Rel(projectRoot, abs)
		rel = filepath.ToSlash(rel)

		if e.IsDir() {
			children := buildTree(abs, projectRoot)
			if len(children) == 0 {
				continue
			}
			out = append(out, TreeEntry{Name: name, Path: rel, IsDir: true, Children: children})
			continue
		}

		if IsBinary(name) {
			continue
		}
		entry := TreeEntry{Name: name, Path: rel, Language: DetectLanguage(name)}
		if info, err := e.Info(); err == nil {
			size := info.Size()
			entry.Size = &size
		}
		out = append(out, entry)
	}
	return out
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
