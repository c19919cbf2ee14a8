package portal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberbook/config"
	"cyberbook/internal/adapter/analyzer"
	"cyberbook/internal/adapter/fetch"
	"cyberbook/internal/docstore"
	"cyberbook/internal/domain"
	"cyberbook/internal/logging"
	"cyberbook/internal/router"
	"cyberbook/internal/search"
)

type countingFetcher struct {
	inner *fetch.FileFetcher
	calls map[string]*atomic.Int32
}

func (f *countingFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	if c, ok := f.calls[p]; ok {
		c.Add(1)
	}
	return f.inner.Fetch(ctx, p)
}

type fixture struct {
	portal *Portal
	router *router.Router
	view   *router.DOMView
	store  *docstore.Store
	engine *search.Engine
	tools  *atomic.Int32
}

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func newStore(t *testing.T) *docstore.Store {
	t.Helper()
	cfg := config.DefaultConfig().Storage
	cfg.Engine = "fallback"
	s, err := docstore.Open(context.Background(), cfg, docstore.PortalSchema(), docstore.WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "chapters/sql-injection.md", "# SQL Injection\n\nUse **parameterized** queries.\n")
	writeFile(t, root, "pages/about.md", "# Sobre\n\nUm livro.")
	writeFile(t, root, "tools.json", `[
		{"name": "sqlmap", "url": "https://sqlmap.org", "description": "SQL injection", "category": "exploit"},
		{"name": "Burp", "url": "https://portswigger.net", "category": "proxy"}
	]`)

	tools := &atomic.Int32{}
	fetcher := &countingFetcher{
		inner: fetch.NewFileFetcher(root),
		calls: map[string]*atomic.Int32{"/tools.json": tools},
	}

	store := newStore(t)
	engine := search.NewEngine(analyzer.NewTokenizer(true), config.DefaultConfig().Search, search.WithLogger(logging.Discard()))
	require.NoError(t, engine.IndexDocument("sql-injection", "SQL Injection\nUse parameterized queries against injection.",
		map[string]any{"title": "SQL Injection", "category": "owasp"}))

	p := New(Deps{Engine: engine, Store: store, Fetcher: fetcher, Logger: logging.Discard()})
	p.SetEntries([]domain.ManifestEntry{
		{Slug: "xss", Title: "XSS <script>", Category: "owasp"},
		{Slug: "sql-injection", Title: "SQL Injection", Category: "owasp"},
	})

	view := router.NewDOMView("Cyberbook")
	r := router.New(config.RouterConfig{}, view, nil, router.WithLogger(logging.Discard()))
	require.NoError(t, p.Mount(r))

	return &fixture{portal: p, router: r, view: view, store: store, engine: engine, tools: tools}
}

func (f *fixture) navigate(t *testing.T, target string) error {
	t.Helper()
	return f.router.Navigate(context.Background(), target, nil, true)
}

func TestPortal_Home(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.navigate(t, "/"))

	out := f.view.ContentHTML()
	assert.Contains(t, out, `href="#/chapters/sql-injection"`)
	assert.Contains(t, out, `XSS &lt;script&gt;`)
	assert.Equal(t, "Cyberbook", f.view.Title())
}

func TestPortal_ChapterRendersMarkdownAndTracksReading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.navigate(t, "/chapters/sql-injection"))
	out := f.view.ContentHTML()
	assert.Contains(t, out, "<h1>SQL Injection</h1>")
	assert.Contains(t, out, "<strong>parameterized</strong>")
	assert.Equal(t, "Capítulo", f.view.Title())

	require.NoError(t, f.navigate(t, "/chapters/sql-injection"))
	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[StatChaptersRead])

	rec, err := f.store.Get(ctx, docstore.TableProgress, "sql-injection")
	require.NoError(t, err)
	assert.Equal(t, true, rec["read"])
}

func TestPortal_MissingChapterRendersErrorFragment(t *testing.T) {
	f := newFixture(t)
	err := f.navigate(t, "/chapters/nope")
	require.Error(t, err)
	assert.True(t, fetch.IsNotFound(err))
	assert.Equal(t, router.ErrorFragment, f.view.ContentHTML())
}

func TestPortal_Page(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.navigate(t, "/pages/about"))
	assert.Contains(t, f.view.ContentHTML(), "<h1>Sobre</h1>")
}

func TestPortal_Search(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.navigate(t, "/search?q=injection"))
	out := f.view.ContentHTML()
	assert.Contains(t, out, `href="#/chapters/sql-injection"`)
	assert.Contains(t, out, "<mark>")

	require.NoError(t, f.navigate(t, "/search?q=kerberos"))
	assert.Contains(t, f.view.ContentHTML(), "Nenhum resultado")
}

func TestPortal_NotesRequireSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.portal.Notes().Add(ctx, "xss", "Use *CSP*.")
	require.NoError(t, err)

	require.NoError(t, f.navigate(t, "/notes"))
	assert.Equal(t, "/login?next=%2Fnotes", f.router.Current())
	assert.Contains(t, f.view.ContentHTML(), `value="/notes"`)

	require.NoError(t, f.portal.Auth().Login(ctx, "ana", time.Hour))
	require.NoError(t, f.navigate(t, "/notes"))
	out := f.view.ContentHTML()
	assert.Contains(t, out, "<em>CSP</em>")

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[StatNotesSessions])
}

func TestPortal_ToolsLoadedOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.navigate(t, "/tools"))
	out := f.view.ContentHTML()
	assert.Contains(t, out, "sqlmap")
	assert.Less(t, bytes.Index([]byte(out), []byte("sqlmap")), bytes.Index([]byte(out), []byte("Burp")))

	require.NoError(t, f.navigate(t, "/"))
	require.NoError(t, f.navigate(t, "/tools"))
	assert.EqualValues(t, 1, f.tools.Load())
}

func TestPortal_Stats(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.BumpStat(context.Background(), "chapters_read", 4)
	require.NoError(t, err)

	require.NoError(t, f.navigate(t, "/stats"))
	out := f.view.ContentHTML()
	assert.Contains(t, out, "<dt>chapters_read</dt><dd>4</dd>")
	assert.Contains(t, out, "<dt>documents</dt><dd>1</dd>")
}

func TestPortal_UnknownRoute(t *testing.T) {
	f := newFixture(t)
	err := f.navigate(t, "/admin")
	assert.ErrorIs(t, err, router.ErrNotFound)
	assert.Equal(t, router.NotFoundFragment, f.view.ContentHTML())
}
