// Package importers loads markdown files from configured directories into
// the knowledge base, once or continuously while watching for changes.
package importers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
)

// DocumentAdder adds a document unless one with the same title exists.
type DocumentAdder interface {
	AddIfMissing(ctx context.Context, doc knowledge.Document) (bool, error)
}

// Importer turns markdown files into knowledge-base documents.
type Importer struct {
	docs   DocumentAdder
	store  *Store
	logger *slog.Logger
}

// NewImporter creates an Importer. store may be nil when sources are not
// persisted, in which case RunSource is unavailable.
func NewImporter(docs DocumentAdder, store *Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{docs: docs, store: store, logger: logger}
}

// Import adds every selected file under cfg.Root. Failures of individual
// files are collected in the result.
func (im *Importer) Import(ctx context.Context, cfg MarkdownConfig) (*ImportResult, error) {
	files, err := cfg.Files()
	if err != nil {
		return nil, err
	}

	res := &ImportResult{ItemsFound: len(files), Items: []ImportedItem{}}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		item, err := im.ImportFile(ctx, cfg, rel)
		if err != nil {
			im.logger.Warn("import failed", "file", rel, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		if item == nil {
			res.ItemsSkipped++
			continue
		}
		res.Items = append(res.Items, *item)
		if item.Imported {
			res.ItemsImported++
		} else {
			res.ItemsSkipped++
		}
	}

	im.logger.Info("markdown import finished",
		"root", cfg.Root, "found", res.ItemsFound, "imported", res.ItemsImported, "skipped", res.ItemsSkipped)
	return res, nil
}

// ImportFile adds one file given by its slash-separated path relative to
// cfg.Root. Empty files yield a nil item.
func (im *Importer) ImportFile(ctx context.Context, cfg MarkdownConfig, rel string) (*ImportedItem, error) {
	full := filepath.Join(cfg.Root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}

	page := ParseMarkdown(src, TitleFromPath(rel))
	if strings.TrimSpace(page.Content) == "" {
		return nil, nil
	}

	added, err := im.docs.AddIfMissing(ctx, knowledge.Document{
		Title:   page.Title,
		Content: page.Content,
		Source:  rel,
	})
	if err != nil {
		return nil, fmt.Errorf("adding %q: %w", page.Title, err)
	}
	return &ImportedItem{
		Title:        page.Title,
		Path:         rel,
		LastModified: info.ModTime().UTC(),
		Imported:     added,
	}, nil
}

// RunSource imports a persisted source and records the outcome on it.
func (im *Importer) RunSource(ctx context.Context, id string) (*ImportResult, error) {
	if im.store == nil {
		return nil, errors.New("import sources are not configured")
	}
	src, err := im.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, ErrSourceNotFound
	}
	cfg, err := src.ParseConfig()
	if err != nil {
		return nil, err
	}

	if err := im.store.UpdateStatus(ctx, id, "importing"); err != nil {
		return nil, fmt.Errorf("marking source %s as importing: %w", src.Name, err)
	}
	res, err := im.Import(ctx, cfg)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	if uerr := im.store.UpdateStatus(ctx, id, status); uerr != nil {
		im.logger.Warn("failed to record import status", "source", src.Name, "error", uerr)
	}
	if err != nil {
		return nil, err
	}
	res.SourceID = id
	return res, nil
}
