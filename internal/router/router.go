// Package router is a single-page navigation controller: a route table
// with path parameters, an ordered middleware pipeline, lazily loaded
// handlers, and a view lifecycle with loading and transition phases.
package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cyberbook/config"
	"cyberbook/internal/logging"
)

// Mode selects how targets are written to the Location.
type Mode string

const (
	// ModeHash keeps the target after '#', e.g. "#/chapters/xss".
	ModeHash Mode = "hash"
	// ModeHistory uses the target as the path, e.g. "/chapters/xss".
	ModeHistory Mode = "history"
)

// State is the navigation state machine.
type State int32

const (
	StateIdle State = iota
	StateNavigating
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNavigating:
		return "navigating"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Fragments rendered when no route matches and when a navigation fails.
const (
	NotFoundFragment = `<div class="card">Rota não encontrada.</div>`
	ErrorFragment    = `<div class="card">Erro ao carregar página.</div>`
)

const maxRedirects = 5

// HistoryEntry is one rendered navigation.
type HistoryEntry struct {
	Path      string
	Data      any
	Timestamp time.Time
}

// Router owns a route table, a middleware pipeline, a View and a Location.
// At most one navigation runs at a time; navigations requested meanwhile
// are dropped.
type Router struct {
	mu         sync.RWMutex
	routes     []*Route
	shapes     map[string]*Route
	middleware []Middleware
	resolved   map[string]HandlerFunc
	notFound   Handler
	onError    func(error)

	cfg    config.RouterConfig
	mode   Mode
	view   View
	loc    Location
	logger *slog.Logger
	now    func() time.Time

	state  atomic.Int32
	silent atomic.Bool

	histMu      sync.Mutex
	history     []HistoryEntry
	current     string
	currentData any
}

// Option configures a Router.
type Option func(*Router)

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithErrorHandler receives every failed navigation after the error
// fragment is rendered.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Router) { r.onError = fn }
}

// WithNotFound renders h, with empty params, when no route matches.
func WithNotFound(h Handler) Option {
	return func(r *Router) { r.notFound = h }
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a router. A nil view gets a DOMView and a nil location an
// in-memory one positioned at the root.
func New(cfg config.RouterConfig, view View, loc Location, opts ...Option) *Router {
	mode := ModeHash
	if Mode(cfg.Mode) == ModeHistory {
		mode = ModeHistory
	}
	r := &Router{
		shapes:   make(map[string]*Route),
		resolved: make(map[string]HandlerFunc),
		cfg:      cfg,
		mode:     mode,
		view:     view,
		loc:      loc,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDefault(r.logger)
	if r.view == nil {
		r.view = NewDOMView("")
	}
	if r.loc == nil {
		r.loc = NewMemoryLocation(r.href("/"))
	}
	return r
}

func (r *Router) Mode() Mode { return r.mode }

func (r *Router) State() State { return State(r.state.Load()) }

func (r *Router) View() View { return r.view }

func (r *Router) Location() Location { return r.loc }

// History returns the rendered navigations, oldest first.
func (r *Router) History() []HistoryEntry {
	r.histMu.Lock()
	defer r.histMu.Unlock()
	out := make([]HistoryEntry, len(r.history))
	copy(out, r.history)
	return out
}

// Current returns the target of the last rendered navigation.
func (r *Router) Current() string {
	r.histMu.Lock()
	defer r.histMu.Unlock()
	return r.current
}

// Navigate renders target. With push set the target is also pushed onto
// the Location. A call made while another navigation is running returns
// nil without doing anything. Failed navigations render ErrorFragment,
// are reported to the error handler and returned.
func (r *Router) Navigate(ctx context.Context, target string, data any, push bool) error {
	return r.navigateDepth(ctx, target, data, push, 0)
}

func (r *Router) navigateDepth(ctx context.Context, target string, data any, push bool, depth int) error {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateNavigating)) {
		r.logger.Debug("navigation dropped", "target", target)
		return nil
	}
	redirect, err := r.run(ctx, target, data, push)
	r.state.Store(int32(StateIdle))

	if err != nil || redirect == "" {
		return err
	}
	if depth >= maxRedirects {
		r.logger.Warn("too many redirects", "target", target, "redirect", redirect)
		return nil
	}
	return r.navigateDepth(ctx, redirect, nil, true, depth+1)
}

func (r *Router) run(parent context.Context, target string, data any, push bool) (redirect string, err error) {
	path, query := SplitTarget(target)
	r.logger.Debug("navigating", "path", path)

	ctx := parent
	if d := r.cfg.NavigationTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d)
		defer cancel()
	}

	r.view.SetLoading(true)
	defer r.view.SetLoading(false)

	defer func() {
		var nav *NavigationError
		if err != nil && !errors.As(err, &nav) {
			r.fail(path, err)
		}
	}()

	rt, params := r.lookup(path)
	if params == nil {
		params = map[string]string{}
	}
	c := &Context{Path: path, Params: params, Query: query, Data: data, ctx: ctx}

	if rt == nil {
		if r.notFound == nil {
			r.logger.Info("route not found", "path", path)
			if err := r.view.Render(Text(NotFoundFragment)); err != nil {
				return "", err
			}
			r.commit(c.Target(), data, push)
			return "", &NavigationError{Path: path, Err: ErrNotFound}
		}
		rt = &Route{Path: "*", Handler: r.notFound}
	}
	c.Options = rt.Options

	var out Output
	reached, err := r.pipeline(c, func() error {
		o, err := r.runHandler(ctx, rt, c)
		out = o
		return err
	})
	if err != nil {
		return "", err
	}
	if !reached {
		r.logger.Debug("navigation halted", "path", path, "redirect", c.redirect)
		return c.redirect, nil
	}
	if err := ctx.Err(); err != nil {
		return "", &HandlerResolutionError{Route: rt.Path, Err: err}
	}

	r.view.Transition(PhaseOut)
	if err := r.view.Render(out); err != nil {
		return "", &HandlerResolutionError{Route: rt.Path, Err: err}
	}
	if rt.Options.Title != "" {
		r.view.SetTitle(rt.Options.Title)
	}
	r.view.Transition(PhaseIn)

	r.commit(c.Target(), data, push)
	r.view.ScrollTop()
	return c.redirect, nil
}

func (r *Router) runHandler(ctx context.Context, rt *Route, c *Context) (out Output, err error) {
	fn, err := r.resolveHandler(ctx, rt)
	if err != nil {
		return Output{}, err
	}
	defer func() {
		if v := recover(); v != nil {
			err = &HandlerResolutionError{Route: rt.Path, Err: &panicError{value: v}}
		}
	}()
	out, err = fn(c)
	if err != nil {
		return Output{}, &HandlerResolutionError{Route: rt.Path, Err: err}
	}
	return out, nil
}

func (r *Router) fail(path string, err error) {
	r.state.Store(int32(StateError))
	r.logger.Error("navigation failed", "path", path, "error", err)
	if rerr := r.view.Render(Text(ErrorFragment)); rerr != nil {
		r.logger.Error("render error fragment", "error", rerr)
	}
	if r.onError != nil {
		r.onError(err)
	}
}

// commit records the navigation and updates the Location.
func (r *Router) commit(target string, data any, push bool) {
	r.histMu.Lock()
	entry := HistoryEntry{Path: target, Data: data, Timestamp: r.now()}
	if n := len(r.history); n > 0 && r.history[n-1].Path == target {
		r.history[n-1] = entry
	} else {
		r.history = append(r.history, entry)
	}
	if limit := r.cfg.HistoryLimit; limit > 0 && len(r.history) > limit {
		r.history = append([]HistoryEntry(nil), r.history[len(r.history)-limit:]...)
	}
	r.current, r.currentData = target, data
	r.histMu.Unlock()

	if !push {
		return
	}
	if href := r.href(target); r.loc.Href() != href {
		r.silently(func() { r.loc.Push(href) })
	}
}

// silently runs fn with location listeners ignored, so that the router's
// own location updates do not trigger a second navigation.
func (r *Router) silently(fn func()) {
	r.silent.Store(true)
	defer r.silent.Store(false)
	fn()
}

func (r *Router) href(target string) string {
	if r.mode == ModeHash {
		return "#" + target
	}
	return target
}

// targetFromHref extracts the navigation target from a Location href.
func (r *Router) targetFromHref(href string) string {
	if r.mode == ModeHash {
		_, frag, ok := strings.Cut(href, "#")
		if !ok || frag == "" {
			return "/"
		}
		return frag
	}
	target, _, _ := strings.Cut(href, "#")
	if target == "" {
		return "/"
	}
	return target
}

// Start renders the Location's current target and follows later changes
// made outside the router, such as an edited hash. stop unsubscribes.
func (r *Router) Start(ctx context.Context) (stop func(), err error) {
	stop = r.loc.Subscribe(func(href string) {
		if r.silent.Load() {
			return
		}
		_ = r.Navigate(ctx, r.targetFromHref(href), nil, false)
	})
	return stop, r.Navigate(ctx, r.targetFromHref(r.loc.Href()), nil, false)
}

// Back moves the Location one entry back and renders it.
func (r *Router) Back(ctx context.Context) error {
	return r.traverse(ctx, r.loc.Back)
}

// Forward moves the Location one entry forward and renders it.
func (r *Router) Forward(ctx context.Context) error {
	return r.traverse(ctx, r.loc.Forward)
}

func (r *Router) traverse(ctx context.Context, move func() bool) error {
	var ok bool
	r.silently(func() { ok = move() })
	if !ok {
		return ErrNoHistory
	}
	return r.Navigate(ctx, r.targetFromHref(r.loc.Href()), nil, false)
}

// Reload renders the current target again without touching the Location.
func (r *Router) Reload(ctx context.Context) error {
	r.histMu.Lock()
	target, data := r.current, r.currentData
	r.histMu.Unlock()
	if target == "" {
		target = r.targetFromHref(r.loc.Href())
	}
	return r.Navigate(ctx, target, data, false)
}
