package cli

import (
	"context"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"cyberbook/internal/domain"
)

// contentWatcher re-indexes documents of a local content directory as they
// change on disk.
type contentWatcher struct {
	a        *app
	root     string
	fsw      *fsnotify.Watcher
	onChange func([]domain.ManifestEntry)

	mu     sync.Mutex
	byPath map[string]domain.ManifestEntry // document path -> entry
}

func newContentWatcher(a *app, onChange func([]domain.ManifestEntry)) (*contentWatcher, error) {
	if !isLocalDir(a.source) {
		return nil, fmt.Errorf("cannot watch %s: not a local directory", a.source)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &contentWatcher{
		a:        a,
		root:     a.source,
		fsw:      fsw,
		onChange: onChange,
		byPath:   make(map[string]domain.ManifestEntry, len(a.entries)),
	}
	for _, e := range a.entries {
		w.byPath[e.DocumentPath()] = e
	}
	return w, nil
}

// Run watches until ctx is done.
func (w *contentWatcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.a.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *contentWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return w.fsw.Add(p)
	})
}

func (w *contentWatcher) handle(ctx context.Context, event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case event.Op&fsnotify.Create != 0:
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
		w.reindex(ctx, rel)
	case event.Op&fsnotify.Write != 0:
		w.reindex(ctx, rel)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.remove(rel)
	}
}

func (w *contentWatcher) reindex(ctx context.Context, rel string) {
	if !w.a.walker.Matches(rel) {
		return
	}
	docPath := "/" + rel

	w.mu.Lock()
	entry, known := w.byPath[docPath]
	w.mu.Unlock()

	if !known {
		var err error
		entry, err = w.a.indexer.EntryForFile(w.root, rel)
		if err != nil {
			w.a.logger.Warn("skipping changed file", "path", docPath, "error", err)
			return
		}
	}

	body, err := w.a.fetcher.Fetch(ctx, docPath)
	if err != nil {
		w.a.logger.Warn("skipping changed file", "path", docPath, "error", err)
		return
	}
	if err := w.a.indexer.IndexDocument(entry, string(body)); err != nil {
		w.a.logger.Warn("reindex failed", "slug", entry.Slug, "error", err)
		return
	}
	w.a.logger.Info("reindexed", "slug", entry.Slug, "path", docPath)

	if !known {
		w.mu.Lock()
		w.byPath[docPath] = entry
		w.mu.Unlock()
		w.notify()
	}
}

func (w *contentWatcher) remove(rel string) {
	docPath := "/" + rel

	w.mu.Lock()
	entry, ok := w.byPath[docPath]
	delete(w.byPath, docPath)
	w.mu.Unlock()
	if !ok {
		return
	}

	w.a.engine.RemoveDocument(entry.Slug)
	w.a.logger.Info("removed from index", "slug", entry.Slug, "path", docPath)
	w.notify()
}

func (w *contentWatcher) notify() {
	if w.onChange == nil {
		return
	}
	w.mu.Lock()
	entries := make([]domain.ManifestEntry, 0, len(w.byPath))
	for _, e := range w.byPath {
		entries = append(entries, e)
	}
	w.mu.Unlock()
	w.onChange(entries)
}

func isLocalDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
