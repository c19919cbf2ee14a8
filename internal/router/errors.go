package router

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by NavigationError when no route matches.
	ErrNotFound = errors.New("route not found")

	// ErrNextCalledTwice is returned when a middleware calls next more than once.
	ErrNextCalledTwice = errors.New("next called more than once")

	// ErrDuplicateRoute is returned by Register for a path whose shape is
	// already taken by another route.
	ErrDuplicateRoute = errors.New("duplicate route")

	// ErrNoHistory is returned by Back and Forward at either end of the history.
	ErrNoHistory = errors.New("no history entry")

	// ErrExportNotFound is returned when a lazy module lacks the requested export.
	ErrExportNotFound = errors.New("export not found")
)

// NavigationError reports a path no route matched.
type NavigationError struct {
	Path string
	Err  error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.Path, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// MiddlewareError reports a failing middleware, identified by its position
// in the pipeline.
type MiddlewareError struct {
	Index int
	Path  string
	Err   error
}

func (e *MiddlewareError) Error() string {
	return fmt.Sprintf("middleware %d on %s: %v", e.Index, e.Path, e.Err)
}

func (e *MiddlewareError) Unwrap() error { return e.Err }

// HandlerResolutionError reports a handler that could not be loaded or
// that failed while producing output.
type HandlerResolutionError struct {
	Route string
	Err   error
}

func (e *HandlerResolutionError) Error() string {
	return fmt.Sprintf("route %s: %v", e.Route, e.Err)
}

func (e *HandlerResolutionError) Unwrap() error { return e.Err }

// panicError carries a recovered panic value.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
