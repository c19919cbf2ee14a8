package port

import "context"

// Fetcher loads static text resources (markdown chapters, JSON manifests).
type Fetcher interface {
	// Fetch returns the body of the resource at path. Implementations must
	// report non-success responses with an error distinguishable from
	// transport failures.
	Fetch(ctx context.Context, path string) ([]byte, error)
}
