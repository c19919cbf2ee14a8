package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"cyberbook/internal/domain"
)

// FilterKind tells how a filter value is compared with document metadata.
type FilterKind int

const (
	// Wildcard matches every document.
	Wildcard FilterKind = iota
	// Scalar matches an equal value, or an array containing it.
	Scalar
	// List matches a value in the list, or an array sharing any element with it.
	List
	// Date matches a timestamp on the same UTC calendar day.
	Date
)

func (k FilterKind) String() string {
	switch k {
	case Wildcard:
		return "wildcard"
	case Scalar:
		return "scalar"
	case List:
		return "list"
	case Date:
		return "date"
	}
	return fmt.Sprintf("FilterKind(%d)", int(k))
}

// Filter is a parsed metadata filter value.
type Filter struct {
	Kind   FilterKind
	Value  any
	Values []any
	Day    time.Time
}

// ParseFilter classifies a caller-supplied filter value. Nil, empty strings
// and empty lists are wildcards.
func ParseFilter(v any) Filter {
	switch x := v.(type) {
	case nil:
		return Filter{Kind: Wildcard}
	case Filter:
		return x
	case string:
		if x == "" {
			return Filter{Kind: Wildcard}
		}
		return Filter{Kind: Scalar, Value: x}
	case time.Time:
		if x.IsZero() {
			return Filter{Kind: Wildcard}
		}
		return Filter{Kind: Date, Day: truncateDay(x)}
	case *time.Time:
		if x == nil || x.IsZero() {
			return Filter{Kind: Wildcard}
		}
		return Filter{Kind: Date, Day: truncateDay(*x)}
	}

	if list, ok := asList(v); ok {
		if len(list) == 0 {
			return Filter{Kind: Wildcard}
		}
		return Filter{Kind: List, Values: list}
	}
	return Filter{Kind: Scalar, Value: v}
}

// Match reports whether a metadata value satisfies the filter.
func (f Filter) Match(v any) bool {
	switch f.Kind {
	case Wildcard:
		return true
	case Scalar:
		if list, ok := asList(v); ok {
			for _, item := range list {
				if equalValues(item, f.Value) {
					return true
				}
			}
			return false
		}
		return equalValues(v, f.Value)
	case List:
		if list, ok := asList(v); ok {
			for _, item := range list {
				for _, want := range f.Values {
					if equalValues(item, want) {
						return true
					}
				}
			}
			return false
		}
		for _, want := range f.Values {
			if equalValues(v, want) {
				return true
			}
		}
		return false
	case Date:
		t, ok := asTime(v)
		return ok && truncateDay(t).Equal(f.Day)
	}
	return false
}

func (f Filter) String() string {
	switch f.Kind {
	case Scalar:
		return "=" + quoteValue(f.Value)
	case List:
		parts := make([]string, len(f.Values))
		for i, v := range f.Values {
			parts[i] = quoteValue(v)
		}
		return "in[" + strings.Join(parts, ",") + "]"
	case Date:
		return "day=" + f.Day.Format("2006-01-02")
	}
	return "*"
}

// quoteValue renders v so separators inside it cannot be confused with the
// ones joining filter values.
func quoteValue(v any) string {
	return strconv.Quote(fmt.Sprint(v))
}

// matchAll reports whether metadata satisfies every filter.
func matchAll(metadata map[string]any, filters map[string]Filter) bool {
	for key, f := range filters {
		if f.Kind == Wildcard {
			continue
		}
		v, ok := metadata[key]
		if !ok || !f.Match(v) {
			return false
		}
	}
	return true
}

func filtersKey(filters map[string]Filter) string {
	if len(filters) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strconv.Quote(k))
		b.WriteString(filters[k].String())
		b.WriteByte(';')
	}
	return b.String()
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func equalValues(a, b any) bool {
	if c, ok := domain.CompareValues(a, b); ok {
		return c == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
