package router

import (
	"fmt"
	"net/url"
	"strings"
)

// RouteOptions are declared with a route and forwarded into its Context.
type RouteOptions struct {
	// Auth requires AuthGuard to pass before the handler runs.
	Auth bool
	// Title replaces the document title after a successful render.
	Title string
	// Meta is opaque data for middleware and handlers, e.g. breadcrumbs.
	Meta map[string]any
	// Cache memoizes a lazily loaded handler across navigations.
	Cache bool
}

// Route is a registered path pattern. Segments starting with ':' capture
// one path segment.
type Route struct {
	Path     string
	Handler  Handler
	Options  RouteOptions
	segments []string
}

// NormalizePath returns p with exactly one leading slash, no empty
// segments and no trailing slash. A leading '#' is dropped.
func NormalizePath(p string) string {
	p = strings.TrimPrefix(p, "#")
	parts := splitSegments(p)
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/")
}

func splitSegments(p string) []string {
	raw := strings.Split(p, "/")
	out := raw[:0]
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SplitTarget separates a navigation target into its normalized path and
// query values.
func SplitTarget(target string) (string, url.Values) {
	target = strings.TrimPrefix(target, "#")
	raw, rawQuery, _ := strings.Cut(target, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}
	return NormalizePath(raw), query
}

// match binds path segments against the route pattern.
func (r *Route) match(segments []string) (map[string]string, bool) {
	if len(segments) != len(r.segments) {
		return nil, false
	}
	params := make(map[string]string)
	for i, pat := range r.segments {
		seg := segments[i]
		if name, ok := strings.CutPrefix(pat, ":"); ok {
			v, err := url.PathUnescape(seg)
			if err != nil {
				return nil, false
			}
			params[name] = v
			continue
		}
		if pat != seg {
			return nil, false
		}
	}
	return params, true
}

// shape identifies patterns that would match exactly the same paths.
func shape(segments []string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		if strings.HasPrefix(s, ":") {
			b.WriteByte(':')
			continue
		}
		b.WriteString(s)
	}
	return b.String()
}

// Register adds a route. Registering a second route with the same shape,
// e.g. /a/:x after /a/:y, fails with ErrDuplicateRoute.
func (r *Router) Register(path string, h Handler, opts RouteOptions) error {
	if h == nil {
		return fmt.Errorf("register %s: nil handler", path)
	}
	norm := NormalizePath(path)
	route := &Route{Path: norm, Handler: h, Options: opts, segments: splitSegments(norm)}
	key := shape(route.segments)

	r.mu.Lock()
	defer r.mu.Unlock()
	if other, ok := r.shapes[key]; ok {
		return fmt.Errorf("register %s: %w with %s", norm, ErrDuplicateRoute, other.Path)
	}
	r.shapes[key] = route
	r.routes = append(r.routes, route)
	return nil
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, len(r.routes))
	for i, rt := range r.routes {
		out[i] = *rt
	}
	return out
}

func (r *Router) lookup(path string) (*Route, map[string]string) {
	segments := splitSegments(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.routes {
		if params, ok := rt.match(segments); ok {
			return rt, params
		}
	}
	return nil, nil
}
