package router

import (
	"context"
	"fmt"

	"golang.org/x/net/html"
)

// OutputKind tags the variant held by an Output.
type OutputKind int

const (
	OutputEmpty OutputKind = iota
	OutputText
	OutputNode
)

// Output is what a handler renders: markup text, a parsed node, or nothing.
type Output struct {
	Kind OutputKind
	Text string
	Node *html.Node
}

// Text returns markup to be parsed into the view container.
func Text(markup string) Output { return Output{Kind: OutputText, Text: markup} }

// Node returns an already built node for the view container.
func Node(n *html.Node) Output {
	if n == nil {
		return Empty()
	}
	return Output{Kind: OutputNode, Node: n}
}

// Empty clears the view container.
func Empty() Output { return Output{Kind: OutputEmpty} }

// Handler produces the content of a route. HandlerFunc runs directly; Lazy
// loads its HandlerFunc on first use.
type Handler interface {
	resolve(ctx context.Context) (HandlerFunc, error)
}

// HandlerFunc renders the route for c.
type HandlerFunc func(c *Context) (Output, error)

func (f HandlerFunc) resolve(context.Context) (HandlerFunc, error) { return f, nil }

// Module is the set of handlers a lazy loader provides, by export name.
type Module map[string]HandlerFunc

// DefaultExport is used when Lazy.ExportName is empty.
const DefaultExport = "default"

// Lazy defers building a handler until its route is first visited. With
// Cache set the loaded module is reused for later navigations.
type Lazy struct {
	Load       func(ctx context.Context) (Module, error)
	ExportName string
	Cache      bool
}

func (l Lazy) resolve(ctx context.Context) (HandlerFunc, error) {
	if l.Load == nil {
		return nil, fmt.Errorf("lazy handler without loader")
	}
	mod, err := l.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	name := l.ExportName
	if name == "" {
		name = DefaultExport
	}
	fn, ok := mod[name]
	if !ok || fn == nil {
		return nil, fmt.Errorf("%w: %q", ErrExportNotFound, name)
	}
	return fn, nil
}

func (l Lazy) cached() bool { return l.Cache }

// resolveHandler returns the HandlerFunc of rt, loading it if needed. Lazy
// results are memoized per route path when the route or the loader asks
// for it.
func (r *Router) resolveHandler(ctx context.Context, rt *Route) (HandlerFunc, error) {
	lazy, isLazy := rt.Handler.(Lazy)
	memo := isLazy && (lazy.cached() || rt.Options.Cache)

	if memo {
		r.mu.RLock()
		fn, ok := r.resolved[rt.Path]
		r.mu.RUnlock()
		if ok {
			return fn, nil
		}
	}

	fn, err := rt.Handler.resolve(ctx)
	if err != nil {
		return nil, &HandlerResolutionError{Route: rt.Path, Err: err}
	}

	if memo {
		r.mu.Lock()
		r.resolved[rt.Path] = fn
		r.mu.Unlock()
	}
	return fn, nil
}
