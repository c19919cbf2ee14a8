package docstore

import (
	"context"
	"fmt"

	"cyberbook/internal/adapter/cache"
	"cyberbook/internal/domain"
)

// Query returns the records whose index field equals value.
func (s *Store) Query(ctx context.Context, table, index string, value any) ([]domain.Record, error) {
	return s.QueryRange(ctx, table, index, domain.Only(value))
}

// QueryRange returns the records whose index field falls inside r, ordered
// by the field. Results are cached per (table, index, range) until the
// next write to table. Callers own the returned records.
func (s *Store) QueryRange(ctx context.Context, table, index string, r domain.Range) ([]domain.Record, error) {
	if _, err := s.table(table); err != nil {
		return nil, err
	}

	key := cache.Key(table, index, rangeKey(r))
	if recs, ok := s.cache.Get(key); ok {
		return cloneRecords(recs), nil
	}

	// A write landing while the query runs moves the generation on and the
	// result is not cached.
	gen := s.cache.Generation(table)
	var recs []domain.Record
	err := s.run(ctx, "query", table, func() error {
		var err error
		recs, err = s.rs.Query(ctx, table, index, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !s.cache.PutAt(key, cloneRecords(recs), gen) {
		s.logger.Debug("query result outdated by a concurrent write", "table", table, "index", index)
	}
	return recs, nil
}

func cloneRecords(recs []domain.Record) []domain.Record {
	if recs == nil {
		return nil
	}
	out := make([]domain.Record, len(recs))
	for i, rec := range recs {
		out[i] = rec.Clone()
	}
	return out
}

// Filter loads the whole table and keeps the records pred accepts. It is
// O(n) in the table size and meant for small per-user tables.
func (s *Store) Filter(ctx context.Context, table string, pred func(domain.Record) bool) ([]domain.Record, error) {
	all, err := s.GetAll(ctx, table, domain.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, 0)
	for _, rec := range all {
		if pred(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// CacheSize returns the number of cached query results.
func (s *Store) CacheSize() int {
	return s.cache.Size()
}

func (s *Store) invalidate(table string) {
	s.cache.InvalidateNamespace(table)
}

func rangeKey(r domain.Range) string {
	return fmt.Sprintf("%s|%s|%t|%t", boundKey(r.Lower), boundKey(r.Upper), r.LowerOpen, r.UpperOpen)
}

func boundKey(v any) string {
	if v == nil {
		return "-"
	}
	if n, ok := domain.NormalizeValue(v); ok {
		return fmt.Sprintf("%T:%v", n, n)
	}
	return fmt.Sprintf("%T:%v", v, v)
}
