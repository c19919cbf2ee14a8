package usecase

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cyberbook/config"
	"cyberbook/internal/adapter/fetch"
	"cyberbook/internal/domain"
	"cyberbook/internal/logging"
	"cyberbook/internal/port"
	"cyberbook/internal/search"
)

// ManifestError means the manifest itself could not be loaded. It aborts
// the whole indexing run.
type ManifestError struct {
	Source string
	Err    error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Source, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// IndexingError is one document that could not be fetched or indexed.
// The rest of the batch carries on.
type IndexingError struct {
	Slug string
	Path string
	Err  error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("index %s (%s): %v", e.Slug, e.Path, e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }

// IndexResult summarizes a settled indexing run.
type IndexResult struct {
	Indexed int
	Failed  int
	Errors  []*IndexingError
}

// Progress is called once per settled document, serially.
type Progress func(done, total int, entry domain.ManifestEntry, err error)

// IndexUseCase loads the book's documents into the search engine.
type IndexUseCase struct {
	engine      *search.Engine
	fetcher     port.Fetcher
	walker      port.FileWalker
	concurrency int
	logger      *slog.Logger
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(
	engine *search.Engine,
	fetcher port.Fetcher,
	walker port.FileWalker,
	cfg config.ContentConfig,
	logger *slog.Logger,
) *IndexUseCase {
	n := cfg.Concurrency
	if n <= 0 {
		n = config.DefaultConfig().Content.Concurrency
	}
	return &IndexUseCase{
		engine:      engine,
		fetcher:     fetcher,
		walker:      walker,
		concurrency: n,
		logger:      logging.OrDefault(logger),
	}
}

// LoadManifest fetches and decodes the manifest at manifestPath.
func (u *IndexUseCase) LoadManifest(ctx context.Context, manifestPath string) ([]domain.ManifestEntry, error) {
	data, err := u.fetcher.Fetch(ctx, manifestPath)
	if err != nil {
		return nil, &ManifestError{Source: manifestPath, Err: err}
	}
	var entries []domain.ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &ManifestError{Source: manifestPath, Err: fmt.Errorf("decode: %w", err)}
	}

	out := entries[:0]
	for _, e := range entries {
		if e.Slug == "" {
			u.logger.Warn("manifest entry without slug", "title", e.Title)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Entries returns the manifest entries of a content source. When the
// source is a local directory without a manifest the entries are
// discovered from its markdown files.
func (u *IndexUseCase) Entries(ctx context.Context, source, manifestPath string) ([]domain.ManifestEntry, error) {
	entries, err := u.LoadManifest(ctx, manifestPath)
	if err == nil {
		return entries, nil
	}
	if !fetch.IsNotFound(err) || u.walker == nil || !isDir(source) {
		return nil, err
	}
	u.logger.Info("no manifest, discovering documents", "source", source)
	return u.DiscoverManifest(source)
}

// IndexAllChapters indexes every document listed in the manifest. Only a
// manifest failure is returned as an error; document failures are
// collected in the result.
func (u *IndexUseCase) IndexAllChapters(ctx context.Context, manifestPath string, progress Progress) (*IndexResult, error) {
	entries, err := u.LoadManifest(ctx, manifestPath)
	if err != nil {
		return nil, err
	}
	return u.IndexEntries(ctx, entries, progress), nil
}

// IndexEntries fetches and indexes entries concurrently, waiting for all
// of them to settle.
func (u *IndexUseCase) IndexEntries(ctx context.Context, entries []domain.ManifestEntry, progress Progress) *IndexResult {
	result := &IndexResult{}
	var mu sync.Mutex
	done := 0

	var g errgroup.Group
	g.SetLimit(u.concurrency)
	for _, entry := range entries {
		g.Go(func() error {
			err := u.fetchAndIndex(ctx, entry)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				ierr := &IndexingError{Slug: entry.Slug, Path: entry.DocumentPath(), Err: err}
				result.Failed++
				result.Errors = append(result.Errors, ierr)
				u.logger.Warn("skipping document", "slug", entry.Slug, "path", entry.DocumentPath(), "error", err)
				err = ierr
			} else {
				result.Indexed++
			}
			if progress != nil {
				progress(done, len(entries), entry, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	u.logger.Info("indexing complete", "indexed", result.Indexed, "failed", result.Failed)
	return result
}

func (u *IndexUseCase) fetchAndIndex(ctx context.Context, entry domain.ManifestEntry) error {
	body, err := u.fetcher.Fetch(ctx, entry.DocumentPath())
	if err != nil {
		return err
	}
	return u.IndexDocument(entry, string(body))
}

// IndexDocument indexes the title and text of one entry under its slug,
// replacing any earlier version.
func (u *IndexUseCase) IndexDocument(entry domain.ManifestEntry, text string) error {
	content := entry.Title + "\n" + text
	return u.engine.IndexDocument(entry.Slug, content, entry.Metadata())
}

// DiscoverManifest builds manifest entries from the markdown files below
// root: slug from the file name, title from the first "# " heading,
// category from the parent directory and updatedAt from the file time.
func (u *IndexUseCase) DiscoverManifest(root string) ([]domain.ManifestEntry, error) {
	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	seen := make(map[string]string)
	entries := make([]domain.ManifestEntry, 0, len(files))
	for _, f := range files {
		base := path.Base(f.RelPath)
		slug := strings.TrimSuffix(base, path.Ext(base))
		if prev, ok := seen[slug]; ok {
			u.logger.Warn("duplicate slug, keeping first", "slug", slug, "kept", prev, "skipped", f.RelPath)
			continue
		}
		seen[slug] = f.RelPath

		entry, err := describeFile(f)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// EntryForFile builds the entry discovery would produce for relPath below
// root. The file must exist.
func (u *IndexUseCase) EntryForFile(root, relPath string) (domain.ManifestEntry, error) {
	full := filepath.Join(root, filepath.FromSlash(relPath))
	info, err := os.Stat(full)
	if err != nil {
		return domain.ManifestEntry{}, err
	}
	return describeFile(port.FileInfo{
		Path:    full,
		RelPath: filepath.ToSlash(relPath),
		ModTime: info.ModTime().Unix(),
		Size:    info.Size(),
	})
}

func describeFile(f port.FileInfo) (domain.ManifestEntry, error) {
	base := path.Base(f.RelPath)
	slug := strings.TrimSuffix(base, path.Ext(base))

	title, err := firstHeading(f.Path)
	if err != nil {
		return domain.ManifestEntry{}, err
	}
	if title == "" {
		title = slug
	}

	entry := domain.ManifestEntry{
		Slug:      slug,
		Path:      "/" + f.RelPath,
		Title:     title,
		UpdatedAt: time.Unix(f.ModTime, 0).UTC().Format(time.RFC3339),
	}
	if dir := path.Dir(f.RelPath); dir != "." {
		entry.Category = path.Base(dir)
	}
	return entry, nil
}

func firstHeading(file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if title, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "# "); ok {
			return strings.TrimSpace(title), nil
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, bufio.ErrTooLong) {
		return "", err
	}
	return "", nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
