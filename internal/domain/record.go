package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp fields stamped on every stored record.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// TimeLayout is the layout used for record timestamps.
const TimeLayout = time.RFC3339Nano

// Record is a JSON-serializable row belonging to a table.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Key returns the normalized primary key stored under keyPath.
func (r Record) Key(keyPath string) (any, error) {
	v, ok := r[keyPath]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: field %q missing", ErrInvalidKey, keyPath)
	}
	return NormalizeKey(v)
}

// Time parses a timestamp field. ok is false when the field is missing or malformed.
func (r Record) Time(field string) (time.Time, bool) {
	switch v := r[field].(type) {
	case string:
		t, err := time.Parse(TimeLayout, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case time.Time:
		return v, true
	}
	return time.Time{}, false
}

// NormalizeKey converts a key into its canonical form: string, int64 or float64.
func NormalizeKey(v any) (any, error) {
	switch k := v.(type) {
	case string:
		if k == "" {
			return nil, fmt.Errorf("%w: empty string", ErrInvalidKey)
		}
		return k, nil
	case int:
		return int64(k), nil
	case int32:
		return int64(k), nil
	case int64:
		return k, nil
	case uint32:
		return int64(k), nil
	case uint64:
		if k > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows", ErrInvalidKey, k)
		}
		return int64(k), nil
	case float32:
		return normalizeFloatKey(float64(k))
	case float64:
		return normalizeFloatKey(k)
	case json.Number:
		if i, err := k.Int64(); err == nil {
			return i, nil
		}
		f, err := k.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return normalizeFloatKey(f)
	}
	return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidKey, v)
}

func normalizeFloatKey(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), nil
	}
	return f, nil
}

// KeyString renders a normalized key as a string that sorts like the key.
func KeyString(k any) string {
	switch v := k.(type) {
	case string:
		return "s:" + v
	case int64:
		if v < 0 {
			return fmt.Sprintf("m:%020d", math.MaxInt64+v)
		}
		return fmt.Sprintf("n:%020d", v)
	case float64:
		return "f:" + strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprintf("x:%v", k)
}

// ParseKeyString reverses KeyString.
func ParseKeyString(s string) (any, error) {
	if len(s) < 2 || s[1] != ':' {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	body := s[2:]
	switch s[0] {
	case 's':
		return body, nil
	case 'n':
		return strconv.ParseInt(body, 10, 64)
	case 'm':
		n, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return nil, err
		}
		return n - math.MaxInt64, nil
	case 'f':
		return strconv.ParseFloat(body, 64)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidKey, s)
}

// NormalizeValue converts an indexable scalar into string, float64 or bool.
// Arrays, maps and nil are not indexable.
func NormalizeValue(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return x, true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	case time.Time:
		return x.UTC().Format(TimeLayout), true
	}
	return nil, false
}

// CompareValues orders two scalars: booleans before numbers before strings.
// ok is false when either side is not indexable.
func CompareValues(a, b any) (int, bool) {
	na, ok := NormalizeValue(a)
	if !ok {
		return 0, false
	}
	nb, ok := NormalizeValue(b)
	if !ok {
		return 0, false
	}
	ra, rb := valueRank(na), valueRank(nb)
	if ra != rb {
		if ra < rb {
			return -1, true
		}
		return 1, true
	}
	switch x := na.(type) {
	case bool:
		y := nb.(bool)
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	case float64:
		y := nb.(float64)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		default:
			return 0, true
		}
	case string:
		return strings.Compare(x, nb.(string)), true
	}
	return 0, false
}

func valueRank(v any) int {
	switch v.(type) {
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 0
}
