package router

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"
)

// Next continues the pipeline. It must be called at most once.
type Next func() error

// Middleware runs before the handler. Returning without calling next
// halts the navigation.
type Middleware func(c *Context, next Next) error

// Use appends mw to the pipeline.
func (r *Router) Use(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
}

// pipeline runs the middleware in registration order and calls final when
// the last one calls next. reached reports whether final ran.
func (r *Router) pipeline(c *Context, final func() error) (reached bool, err error) {
	r.mu.RLock()
	mws := make([]Middleware, len(r.middleware))
	copy(mws, r.middleware)
	r.mu.RUnlock()

	var step func(i int) error
	step = func(i int) error {
		if i == len(mws) {
			reached = true
			return final()
		}
		called := false
		var misuse error
		next := func() error {
			if called {
				misuse = &MiddlewareError{Index: i, Path: c.Path, Err: ErrNextCalledTwice}
				return misuse
			}
			called = true
			return step(i + 1)
		}
		err := r.callMiddleware(c, i, mws[i], next)
		if misuse != nil {
			return misuse
		}
		if err == nil {
			return nil
		}
		var me *MiddlewareError
		var he *HandlerResolutionError
		if errors.As(err, &me) || errors.As(err, &he) {
			return err
		}
		return &MiddlewareError{Index: i, Path: c.Path, Err: err}
	}

	err = step(0)
	return reached, err
}

// callMiddleware runs one middleware, turning a panic into an error and
// logging a warning when it is still running after the soft timeout.
func (r *Router) callMiddleware(c *Context, i int, mw Middleware, next Next) (err error) {
	if d := r.cfg.MiddlewareTimeout; d > 0 {
		timer := time.AfterFunc(d, func() {
			r.logger.Warn("middleware still running", "index", i, "path", c.Path, "after", d)
		})
		defer timer.Stop()
	}
	defer func() {
		if v := recover(); v != nil {
			err = &panicError{value: v}
		}
	}()
	return mw(c, next)
}

// Logger records every navigation with its latency.
func Logger(logger *slog.Logger) Middleware {
	return func(c *Context, next Next) error {
		start := time.Now()
		err := next()
		attrs := []any{"path", c.Target(), "latency", time.Since(start)}
		if err != nil {
			logger.Warn("navigation failed", append(attrs, "error", err)...)
			return err
		}
		logger.Info("navigated", attrs...)
		return nil
	}
}

// Authenticator reports whether the current session may see protected routes.
type Authenticator interface {
	Authenticated(ctx context.Context) (bool, error)
}

// AuthFunc adapts a function to Authenticator.
type AuthFunc func(ctx context.Context) (bool, error)

func (f AuthFunc) Authenticated(ctx context.Context) (bool, error) { return f(ctx) }

// AuthGuard redirects navigations to routes declared with Auth to
// loginPath when the session is not authenticated. The original target is
// passed in the "next" query parameter.
func AuthGuard(auth Authenticator, loginPath string) Middleware {
	return func(c *Context, next Next) error {
		if !c.Options.Auth {
			return next()
		}
		ok, err := auth.Authenticated(c.Context())
		if err != nil {
			return err
		}
		if !ok {
			c.Redirect(loginPath + "?next=" + url.QueryEscape(c.Target()))
			return nil
		}
		return next()
	}
}
