package index

import (
	"log/slog"

	"github.com/starford/orgview/internal/checksum"
	"github.com/starford/orgview/internal/models"
	"github.com/starford/orgview/internal/parser"
	"github.com/starford/orgview/internal/storage"
)

// Sync brings the index in line with the store: changed documents are
// re-parsed and documents missing from disk are dropped.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	return reconcileStore(db, store, logger, nil)
}

// reconcileStore compares stored checksums with the index and reports each
// change it applies to emit, when set.
func reconcileStore(db *DB, store storage.Provider, logger *slog.Logger, emit EventCallback) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}
	indexed, err := db.AllChecksums()
	if err != nil {
		return err
	}
	report := func(kind, path string) {
		if emit != nil {
			emit(kind, path)
		}
	}

	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = struct{}{}
		prev, known := indexed[m.Path]
		if known && prev == m.Checksum {
			continue
		}
		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexDocument(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if known {
			report(models.ChangeUpdated, m.Path)
		} else {
			report(models.ChangeCreated, m.Path)
		}
	}

	for p := range indexed {
		if _, ok := onDisk[p]; ok {
			continue
		}
		if err := db.DeleteDocument(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		report(models.ChangeDeleted, p)
	}
	return nil
}

// IndexDocument parses data and upserts it into the index under path.
func IndexDocument(db DocumentIndex, path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}

	row := DocumentRow{
		Path:     path,
		Title:    res.Title,
		Type:     string(res.Type),
		Status:   res.Status,
		Checksum: checksum.Sum(data),
		Tags:     res.Tags,
	}
	return db.UpsertDocument(row, res.Body, res.Targets())
}
