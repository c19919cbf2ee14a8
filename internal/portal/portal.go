// Package portal wires the book's routes onto a router: chapters and
// pages rendered from markdown, search, notes, reading stats and the
// tools directory.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"cyberbook/internal/docstore"
	"cyberbook/internal/domain"
	"cyberbook/internal/logging"
	"cyberbook/internal/port"
	"cyberbook/internal/router"
	"cyberbook/internal/search"
)

// Paths of the portal's routes.
const (
	PathHome    = "/"
	PathChapter = "/chapters/:slug"
	PathPage    = "/pages/:slug"
	PathSearch  = "/search"
	PathNotes   = "/notes"
	PathStats   = "/stats"
	PathTools   = "/tools"
	PathLogin   = "/login"
)

// LoginAction is where the login form posts its user and next fields.
const LoginAction = "/api/session"

// Stat counters.
const (
	StatChaptersRead  = "chapters_read"
	StatNotesSessions = "notes_sessions"
)

// Deps are the collaborators of the portal.
type Deps struct {
	Engine  *search.Engine
	Store   *docstore.Store
	Fetcher port.Fetcher
	Logger  *slog.Logger
}

// Portal holds the state shared by the routes.
type Portal struct {
	engine  *search.Engine
	store   *docstore.Store
	fetcher port.Fetcher
	auth    *SessionAuth
	notes   *Notes
	md      goldmark.Markdown
	logger  *slog.Logger

	mu      sync.RWMutex
	entries []domain.ManifestEntry
	hash    bool // links use the hash form
}

func New(deps Deps) *Portal {
	return &Portal{
		engine:  deps.Engine,
		store:   deps.Store,
		fetcher: deps.Fetcher,
		auth:    NewSessionAuth(deps.Store),
		notes:   NewNotes(deps.Store),
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:  logging.OrDefault(deps.Logger),
	}
}

func (p *Portal) Auth() *SessionAuth { return p.auth }

func (p *Portal) Notes() *Notes { return p.notes }

// SetEntries replaces the manifest entries listed on the home page.
func (p *Portal) SetEntries(entries []domain.ManifestEntry) {
	sorted := make([]domain.ManifestEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Title < sorted[j].Title })

	p.mu.Lock()
	p.entries = sorted
	p.mu.Unlock()
}

func (p *Portal) linkPrefix() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.hash {
		return "#"
	}
	return ""
}

func (p *Portal) entry(slug string) (domain.ManifestEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		if e.Slug == slug {
			return e, true
		}
	}
	return domain.ManifestEntry{}, false
}

// Mount registers the portal's middleware and routes on r.
func (p *Portal) Mount(r *router.Router) error {
	p.mu.Lock()
	p.hash = r.Mode() == router.ModeHash
	p.mu.Unlock()

	r.Use(router.Logger(p.logger))
	r.Use(router.AuthGuard(p.auth, PathLogin))

	routes := []struct {
		path string
		h    router.Handler
		opts router.RouteOptions
	}{
		{PathHome, router.HandlerFunc(p.home), router.RouteOptions{Title: "Cyberbook"}},
		{PathChapter, router.HandlerFunc(p.chapter), router.RouteOptions{Title: "Capítulo", Meta: map[string]any{"section": "chapters"}}},
		{PathPage, router.HandlerFunc(p.page), router.RouteOptions{Title: "Página"}},
		{PathSearch, router.HandlerFunc(p.search), router.RouteOptions{Title: "Busca"}},
		{PathNotes, router.HandlerFunc(p.notesPage), router.RouteOptions{Title: "Notas", Auth: true}},
		{PathStats, router.HandlerFunc(p.stats), router.RouteOptions{Title: "Estatísticas"}},
		{PathTools, router.Lazy{Load: p.loadTools, Cache: true}, router.RouteOptions{Title: "Ferramentas"}},
		{PathLogin, router.HandlerFunc(p.login), router.RouteOptions{Title: "Entrar"}},
	}
	for _, rt := range routes {
		if err := r.Register(rt.path, rt.h, rt.opts); err != nil {
			return err
		}
	}
	return nil
}

func (p *Portal) home(c *router.Context) (router.Output, error) {
	p.mu.RLock()
	entries := p.entries
	p.mu.RUnlock()

	var b strings.Builder
	b.WriteString(`<section class="card"><h1>Cyberbook</h1><ul class="chapters">`)
	for _, e := range entries {
		fmt.Fprintf(&b, `<li><a class="nav-link" href="%s/chapters/%s">%s</a>`, p.linkPrefix(), html.EscapeString(e.Slug), html.EscapeString(e.Title))
		if e.Category != "" {
			fmt.Fprintf(&b, ` <span class="tag">%s</span>`, html.EscapeString(e.Category))
		}
		b.WriteString(`</li>`)
	}
	b.WriteString(`</ul></section>`)
	return router.Text(b.String()), nil
}

func (p *Portal) chapter(c *router.Context) (router.Output, error) {
	slug := c.Param("slug")
	docPath := "/chapters/" + slug + ".md"
	if e, ok := p.entry(slug); ok {
		docPath = e.DocumentPath()
	}

	out, err := p.renderMarkdown(c.Context(), docPath)
	if err != nil {
		return router.Output{}, err
	}

	ctx := c.Context()
	if _, err := p.store.BumpStat(ctx, StatChaptersRead, 1); err != nil {
		p.logger.Warn("bump stat", "stat", StatChaptersRead, "error", err)
	}
	if _, err := p.store.Update(ctx, docstore.TableProgress, domain.Record{"chapter": slug, "read": true}); err != nil {
		p.logger.Warn("save progress", "chapter", slug, "error", err)
	}
	return out, nil
}

func (p *Portal) page(c *router.Context) (router.Output, error) {
	return p.renderMarkdown(c.Context(), "/pages/"+c.Param("slug")+".md")
}

func (p *Portal) renderMarkdown(ctx context.Context, docPath string) (router.Output, error) {
	body, err := p.fetcher.Fetch(ctx, docPath)
	if err != nil {
		return router.Output{}, err
	}
	var buf bytes.Buffer
	buf.WriteString(`<article class="page card"><div class="markdown">`)
	if err := p.md.Convert(body, &buf); err != nil {
		return router.Output{}, fmt.Errorf("render %s: %w", docPath, err)
	}
	buf.WriteString(`</div></article>`)
	return router.Text(buf.String()), nil
}

func (p *Portal) search(c *router.Context) (router.Output, error) {
	q := c.QueryValue("q")
	opts := []search.SearchOption{}
	if cat := c.QueryValue("category"); cat != "" {
		opts = append(opts, search.WithFilter("category", cat))
	}
	res := p.engine.Search(q, opts...)

	var b strings.Builder
	b.WriteString(`<article class="page card"><h1>Resultado</h1><div id="hits">`)
	if len(res.Hits) == 0 {
		fmt.Fprintf(&b, `<p class="empty">Nenhum resultado para “%s”.</p>`, html.EscapeString(q))
	}
	for _, h := range res.Hits {
		title := h.Title
		if title == "" {
			title = h.ID
		}
		// snippets are escaped by the engine and carry <mark> highlights
		fmt.Fprintf(&b, `<div class="hit"><a class="nav-link" href="%s/chapters/%s"><strong>%s</strong></a><div class="alert">%s</div></div>`,
			p.linkPrefix(), html.EscapeString(h.ID), html.EscapeString(title), h.Snippet)
	}
	b.WriteString(`</div></article>`)
	return router.Text(b.String()), nil
}

func (p *Portal) notesPage(c *router.Context) (router.Output, error) {
	ctx := c.Context()
	notes, err := p.notes.List(ctx, c.QueryValue("chapter"))
	if err != nil {
		return router.Output{}, err
	}
	if _, err := p.store.BumpStat(ctx, StatNotesSessions, 1); err != nil {
		p.logger.Warn("bump stat", "stat", StatNotesSessions, "error", err)
	}

	var b strings.Builder
	b.WriteString(`<article class="page card"><h1>Minhas notas</h1>`)
	if len(notes) == 0 {
		b.WriteString(`<p class="empty">Nenhuma nota.</p>`)
	}
	for _, n := range notes {
		fmt.Fprintf(&b, `<div class="note" data-id="%s"><h3>%s</h3>`, html.EscapeString(n.ID), html.EscapeString(n.Chapter))
		var buf bytes.Buffer
		if err := p.md.Convert([]byte(n.Text), &buf); err != nil {
			return router.Output{}, err
		}
		b.WriteString(buf.String())
		b.WriteString(`</div>`)
	}
	b.WriteString(`</article>`)
	return router.Text(b.String()), nil
}

func (p *Portal) stats(c *router.Context) (router.Output, error) {
	counters, err := p.store.Stats(c.Context())
	if err != nil {
		return router.Output{}, err
	}
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	st := p.engine.Stats()
	var b strings.Builder
	b.WriteString(`<article class="page card"><h1>Estatísticas</h1><dl>`)
	for _, name := range names {
		fmt.Fprintf(&b, `<dt>%s</dt><dd>%d</dd>`, html.EscapeString(name), counters[name])
	}
	fmt.Fprintf(&b, `<dt>documents</dt><dd>%d</dd><dt>vocabulary</dt><dd>%d</dd>`, st.Documents, st.Vocabulary)
	b.WriteString(`</dl></article>`)
	return router.Text(b.String()), nil
}

func (p *Portal) login(c *router.Context) (router.Output, error) {
	next := c.QueryValue("next")
	if next == "" {
		next = PathHome
	}
	return router.Text(fmt.Sprintf(
		`<article class="page card"><h1>Entrar</h1><p>Entre para acessar suas notas.</p>`+
			`<form method="post" action="%s"><input type="text" name="user" required/>`+
			`<input type="hidden" name="next" value="%s"/><button type="submit">Entrar</button></form></article>`,
		LoginAction, html.EscapeString(next))), nil
}

// Tool is one entry of tools.json.
type Tool struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// loadTools builds the tools module from tools.json on first visit.
func (p *Portal) loadTools(ctx context.Context) (router.Module, error) {
	data, err := p.fetcher.Fetch(ctx, "/tools.json")
	if err != nil {
		return nil, err
	}
	var tools []Tool
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("decode tools.json: %w", err)
	}
	sort.SliceStable(tools, func(i, j int) bool {
		if tools[i].Category != tools[j].Category {
			return tools[i].Category < tools[j].Category
		}
		return tools[i].Name < tools[j].Name
	})

	var b strings.Builder
	b.WriteString(`<article class="page card"><h1>Ferramentas</h1><ul class="tools">`)
	for _, t := range tools {
		fmt.Fprintf(&b, `<li><a href="%s" target="_blank" rel="noopener noreferrer">%s</a>`,
			html.EscapeString(t.URL), html.EscapeString(t.Name))
		if t.Description != "" {
			fmt.Fprintf(&b, ` – %s`, html.EscapeString(t.Description))
		}
		b.WriteString(`</li>`)
	}
	b.WriteString(`</ul></article>`)
	markup := b.String()

	return router.Module{
		router.DefaultExport: func(*router.Context) (router.Output, error) {
			return router.Text(markup), nil
		},
	}, nil
}
