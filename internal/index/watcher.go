package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/orgview/internal/apperr"
	"github.com/starford/orgview/internal/models"
	"github.com/starford/orgview/internal/storage"
)

// EventCallback receives every index change the watcher makes. kind is one
// of models.ChangeCreated, models.ChangeUpdated or models.ChangeDeleted.
type EventCallback func(kind string, path string)

// settleDelay is how long a path must be quiet before the watcher reads it.
// Editors and atomic writers emit bursts of events for one save.
const settleDelay = 150 * time.Millisecond

type watcher struct {
	fsw    *fsnotify.Watcher
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	notify EventCallback

	// pending maps a relative path to whether a Create was seen for it
	// during the current burst.
	pending   map[string]bool
	reconcile bool
}

// Watch mirrors file system changes under root into db until ctx ends.
// Events are coalesced per path; a rename, which fsnotify reports only for
// the old name, additionally triggers a full reconcile against the store.
func Watch(ctx context.Context, db *DB, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	w := &watcher{
		fsw:     fsw,
		db:      db,
		store:   store,
		root:    root,
		logger:  logger,
		notify:  cb,
		pending: make(map[string]bool),
	}
	if err := w.addTree(root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.observe(ev) {
				settle.Reset(settleDelay)
			}

		case <-settle.C:
			w.flush()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// observe records ev and reports whether a flush should be scheduled.
func (w *watcher) observe(ev fsnotify.Event) bool {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || storage.Ignored(rel) {
		return false
	}
	rel = filepath.ToSlash(rel)

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watcher: add dir failed", slog.String("path", rel), slog.String("error", err.Error()))
			}
			// Files written before the watch was added produce no events.
			w.reconcile = true
			return true
		}
	}
	if ev.Has(fsnotify.Rename) {
		w.reconcile = true
	}
	if !strings.HasSuffix(rel, ".md") {
		return w.reconcile
	}
	w.pending[rel] = w.pending[rel] || ev.Has(fsnotify.Create)
	return true
}

// flush settles every pending path against the store.
func (w *watcher) flush() {
	pending, reconcile := w.pending, w.reconcile
	w.pending, w.reconcile = make(map[string]bool), false

	for rel, created := range pending {
		w.settle(rel, created)
	}
	if reconcile {
		if err := reconcileStore(w.db, w.store, w.logger, w.emit); err != nil {
			w.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
		}
	}
}

func (w *watcher) settle(rel string, created bool) {
	data, err := w.store.Read(rel)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if err := w.db.DeleteDocument(rel); err != nil {
			w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		w.emit(models.ChangeDeleted, rel)
	case err != nil:
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
	default:
		if err := IndexDocument(w.db, rel, data); err != nil {
			w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		kind := models.ChangeUpdated
		if created {
			kind = models.ChangeCreated
		}
		w.emit(kind, rel)
	}
}

func (w *watcher) emit(kind, rel string) {
	w.logger.Debug("watcher: "+kind, slog.String("path", rel))
	if w.notify != nil {
		w.notify(kind, rel)
	}
}

// addTree watches dir and every non-ignored directory below it.
func (w *watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && storage.IgnoredDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
