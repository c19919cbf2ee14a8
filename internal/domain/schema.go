package domain

// SyncQueueTable is the internal outbox table present in every schema.
const SyncQueueTable = "_sync_queue"

// IndexSchema declares a secondary index over a record field.
type IndexSchema struct {
	Field  string `json:"field"`
	Unique bool   `json:"unique,omitempty"`
}

// TableSchema declares a table, its primary key and its secondary indices.
type TableSchema struct {
	Name          string        `json:"name"`
	KeyPath       string        `json:"keyPath"`
	AutoIncrement bool          `json:"autoIncrement,omitempty"`
	Indexes       []IndexSchema `json:"indexes,omitempty"`
}

// Index returns the index declared on field.
func (t TableSchema) Index(field string) (IndexSchema, bool) {
	for _, idx := range t.Indexes {
		if idx.Field == field {
			return idx, true
		}
	}
	return IndexSchema{}, false
}

// Schema is a versioned set of tables. Versions only ever add tables and indices.
type Schema struct {
	Version int           `json:"version"`
	Tables  []TableSchema `json:"tables"`
}

// Table returns the table named name.
func (s Schema) Table(name string) (TableSchema, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSchema{}, false
}

// TableNames lists the declared tables in declaration order.
func (s Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// WithSyncQueue returns a copy of s that also declares the internal sync queue table.
func (s Schema) WithSyncQueue() Schema {
	if _, ok := s.Table(SyncQueueTable); ok {
		return s
	}
	out := Schema{Version: s.Version, Tables: make([]TableSchema, 0, len(s.Tables)+1)}
	out.Tables = append(out.Tables, s.Tables...)
	out.Tables = append(out.Tables, TableSchema{
		Name:          SyncQueueTable,
		KeyPath:       "id",
		AutoIncrement: true,
		Indexes:       []IndexSchema{{Field: "store"}},
	})
	return out
}

// Range bounds an index lookup. A nil bound is unbounded on that side.
type Range struct {
	Lower     any
	Upper     any
	LowerOpen bool
	UpperOpen bool
}

// Only matches exactly v.
func Only(v any) Range {
	return Range{Lower: v, Upper: v}
}

// Between matches lower <= x <= upper.
func Between(lower, upper any) Range {
	return Range{Lower: lower, Upper: upper}
}

// AtLeast matches x >= lower.
func AtLeast(lower any) Range {
	return Range{Lower: lower}
}

// Below matches x < upper.
func Below(upper any) Range {
	return Range{Upper: upper, UpperOpen: true}
}

// Contains reports whether the normalized scalar v falls inside r.
func (r Range) Contains(v any) bool {
	if r.Lower != nil {
		c, ok := CompareValues(v, r.Lower)
		if !ok || c < 0 || (c == 0 && r.LowerOpen) {
			return false
		}
	}
	if r.Upper != nil {
		c, ok := CompareValues(v, r.Upper)
		if !ok || c > 0 || (c == 0 && r.UpperOpen) {
			return false
		}
	}
	return true
}

// ListOptions limits and orders a full-table read.
type ListOptions struct {
	Limit   int
	Reverse bool
}
