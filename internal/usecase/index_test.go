package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberbook/config"
	"cyberbook/internal/adapter/analyzer"
	"cyberbook/internal/adapter/fetch"
	"cyberbook/internal/adapter/fs"
	"cyberbook/internal/domain"
	"cyberbook/internal/logging"
	"cyberbook/internal/search"
)

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func newEngine() *search.Engine {
	return search.NewEngine(analyzer.NewTokenizer(true), config.DefaultConfig().Search, search.WithLogger(logging.Discard()))
}

func newUseCase(t *testing.T, root string) (*IndexUseCase, *search.Engine) {
	t.Helper()
	cfg := config.DefaultConfig().Content
	engine := newEngine()
	uc := NewIndexUseCase(engine, fetch.NewFileFetcher(root), fs.NewWalker(cfg.Includes, cfg.Excludes), cfg, logging.Discard())
	return uc, engine
}

func TestIndexAllChapters_SettlesAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "manifest.json", `[
		{"slug": "sql-injection", "title": "SQL Injection", "category": "owasp", "tags": ["a03"]},
		{"slug": "xss", "title": "Cross-Site Scripting", "path": "/chapters/xss.md", "category": "owasp"},
		{"slug": "missing", "title": "Missing Chapter"},
		{"title": "no slug"}
	]`)
	writeFile(t, root, "chapters/sql-injection.md", "Parameterized queries prevent injection.")
	writeFile(t, root, "chapters/xss.md", "Escape output to prevent scripting attacks.")

	uc, engine := newUseCase(t, root)

	var calls []int
	res, err := uc.IndexAllChapters(context.Background(), "/manifest.json", func(done, total int, _ domain.ManifestEntry, _ error) {
		assert.Equal(t, 3, total)
		calls = append(calls, done)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "missing", res.Errors[0].Slug)
	assert.Equal(t, "/chapters/missing.md", res.Errors[0].Path)
	assert.True(t, fetch.IsNotFound(res.Errors[0]))
	assert.Equal(t, []int{1, 2, 3}, calls)

	hits := engine.Search("injection").Hits
	require.NotEmpty(t, hits)
	assert.Equal(t, "sql-injection", hits[0].ID)
	assert.Equal(t, "SQL Injection", hits[0].Title)

	// the title is part of the indexed text
	hits = engine.Search("cross site").Hits
	require.NotEmpty(t, hits)
	assert.Equal(t, "xss", hits[0].ID)

	hits = engine.Search("prevent", search.WithFilter("tags", "a03")).Hits
	require.Len(t, hits, 1)
	assert.Equal(t, "sql-injection", hits[0].ID)
}

func TestIndexAllChapters_ManifestErrors(t *testing.T) {
	root := t.TempDir()
	uc, _ := newUseCase(t, root)

	_, err := uc.IndexAllChapters(context.Background(), "/manifest.json", nil)
	var me *ManifestError
	require.True(t, errors.As(err, &me))
	assert.True(t, fetch.IsNotFound(err))

	writeFile(t, root, "manifest.json", `{"not": "an array"}`)
	_, err = uc.IndexAllChapters(context.Background(), "/manifest.json", nil)
	require.True(t, errors.As(err, &me))
	assert.Contains(t, err.Error(), "decode")
}

type fakeFetcher struct {
	delay   time.Duration
	mu      sync.Mutex
	active  int
	maxSeen int
	calls   atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return []byte("content of " + p), nil
}

func TestIndexEntries_BoundedConcurrency(t *testing.T) {
	ff := &fakeFetcher{delay: 5 * time.Millisecond}
	cfg := config.DefaultConfig().Content
	cfg.Concurrency = 2
	uc := NewIndexUseCase(newEngine(), ff, nil, cfg, logging.Discard())

	entries := make([]domain.ManifestEntry, 8)
	for i := range entries {
		entries[i] = domain.ManifestEntry{Slug: string(rune('a' + i)), Title: "doc"}
	}
	res := uc.IndexEntries(context.Background(), entries, nil)

	assert.Equal(t, 8, res.Indexed)
	assert.EqualValues(t, 8, ff.calls.Load())
	assert.LessOrEqual(t, ff.maxSeen, 2)
}

func TestDiscoverManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "owasp/sql-injection.md", "intro\n# SQL Injection\n\nbody")
	writeFile(t, root, "xss.md", "no heading here")
	writeFile(t, root, "drafts/wip.md", "# WIP")
	writeFile(t, root, "zzz/xss.md", "# duplicate slug")
	writeFile(t, root, "notes.txt", "ignored")

	uc, _ := newUseCase(t, root)
	entries, err := uc.DiscoverManifest(root)
	require.NoError(t, err)

	bySlug := map[string]domain.ManifestEntry{}
	for _, e := range entries {
		bySlug[e.Slug] = e
	}
	require.Len(t, entries, 2)

	sqli := bySlug["sql-injection"]
	assert.Equal(t, "SQL Injection", sqli.Title)
	assert.Equal(t, "owasp", sqli.Category)
	assert.Equal(t, "/owasp/sql-injection.md", sqli.Path)
	_, err = time.Parse(time.RFC3339, sqli.UpdatedAt)
	assert.NoError(t, err)

	assert.Contains(t, bySlug, "xss")
	assert.Equal(t, "xss", bySlug["xss"].Title)
}

func TestEntries_FallsBackToDiscovery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "chapters/csrf.md", "# CSRF\nTokens.")
	uc, engine := newUseCase(t, root)

	entries, err := uc.Entries(context.Background(), root, "/manifest.json")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/chapters/csrf.md", entries[0].DocumentPath())

	res := uc.IndexEntries(context.Background(), entries, nil)
	assert.Equal(t, 1, res.Indexed)
	assert.NotEmpty(t, engine.Search("tokens").Hits)
}

func TestIndexDocument_Replaces(t *testing.T) {
	uc, engine := newUseCase(t, t.TempDir())
	entry := domain.ManifestEntry{Slug: "xss", Title: "XSS"}

	require.NoError(t, uc.IndexDocument(entry, "reflected payload"))
	require.NoError(t, uc.IndexDocument(entry, "stored payload"))

	assert.Empty(t, engine.Search("reflected").Hits)
	assert.Len(t, engine.Search("stored").Hits, 1)
	assert.Equal(t, 1, engine.Stats().Documents)
}
