package importers

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-imports markdown files as they are created or written.
type Watcher struct {
	importer *Importer
	cfg      MarkdownConfig
	watcher  *fsnotify.Watcher
}

// NewWatcher starts watching cfg.Root and all of its non-hidden
// subdirectories. Call Run to process events and Close when done.
func (im *Importer) NewWatcher(cfg MarkdownConfig) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{importer: im, cfg: cfg, watcher: fw}
	if err := w.addTree(cfg.Root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

// Run processes events until ctx is cancelled. onItem, if set, is called
// for every file that was imported or skipped as a duplicate.
func (w *Watcher) Run(ctx context.Context, onItem func(ImportedItem)) error {
	log := w.importer.logger
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						log.Warn("failed to watch directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}

			rel, err := filepath.Rel(w.cfg.Root, event.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if hiddenPath(rel) || !w.cfg.Matches(rel) {
				continue
			}

			item, err := w.importer.ImportFile(ctx, w.cfg, rel)
			if err != nil {
				log.Warn("import failed", "file", rel, "error", err)
				continue
			}
			if item == nil {
				continue
			}
			log.Info("imported changed file", "file", rel, "title", item.Title, "new", item.Imported)
			if onItem != nil {
				onItem(*item)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("file watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
