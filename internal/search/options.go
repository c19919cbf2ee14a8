package search

import "fmt"

type searchOptions struct {
	limit   int
	offset  int
	fuzzy   bool
	filters map[string]Filter
}

// SearchOption configures a single query.
type SearchOption func(*searchOptions)

// WithLimit caps the number of hits returned.
func WithLimit(n int) SearchOption {
	return func(o *searchOptions) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithOffset skips the first n ranked hits.
func WithOffset(n int) SearchOption {
	return func(o *searchOptions) {
		if n > 0 {
			o.offset = n
		}
	}
}

// WithFuzzy toggles typo-tolerant matching. It is on by default.
func WithFuzzy(enabled bool) SearchOption {
	return func(o *searchOptions) {
		o.fuzzy = enabled
	}
}

// WithFilter restricts hits to documents whose metadata key matches value.
// See ParseFilter for how value is interpreted.
func WithFilter(key string, value any) SearchOption {
	return func(o *searchOptions) {
		if o.filters == nil {
			o.filters = make(map[string]Filter)
		}
		o.filters[key] = ParseFilter(value)
	}
}

// WithFilters applies WithFilter for every entry of filters.
func WithFilters(filters map[string]any) SearchOption {
	return func(o *searchOptions) {
		for k, v := range filters {
			WithFilter(k, v)(o)
		}
	}
}

func (o searchOptions) key() string {
	return fmt.Sprintf("limit=%d;offset=%d;fuzzy=%t;%s", o.limit, o.offset, o.fuzzy, filtersKey(o.filters))
}
