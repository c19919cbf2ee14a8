package router

import (
	"context"
	"net/url"
)

// Context is built for each navigation and passed through the middleware
// pipeline into the handler.
type Context struct {
	Path    string
	Params  map[string]string
	Query   url.Values
	Data    any
	Options RouteOptions

	ctx      context.Context
	redirect string
}

// Context returns the navigation's context. It is cancelled when the hard
// navigation timeout expires.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *Context) Param(name string) string {
	return c.Params[name]
}

// QueryValue returns the first value of a query parameter.
func (c *Context) QueryValue(name string) string {
	return c.Query.Get(name)
}

// Redirect asks the router to navigate to target once the current
// navigation has finished. A middleware redirecting normally returns
// without calling next.
func (c *Context) Redirect(target string) {
	c.redirect = target
}

// Target returns the path and query string of the navigation.
func (c *Context) Target() string {
	if len(c.Query) == 0 {
		return c.Path
	}
	return c.Path + "?" + c.Query.Encode()
}
