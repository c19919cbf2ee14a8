package docstore

import (
	"context"

	"cyberbook/internal/domain"
)

// Add inserts rec and returns its key. Adding an existing key fails with
// domain.ErrConstraint.
func (s *Store) Add(ctx context.Context, table string, rec domain.Record) (any, error) {
	if _, err := s.table(table); err != nil {
		return nil, err
	}
	stamped := s.stamp(rec)

	var key any
	err := s.run(ctx, "add", table, func() error {
		var err error
		key, err = s.rs.Add(ctx, table, stamped)
		return err
	})
	s.invalidate(table)
	return key, err
}

// Get returns the record stored under key, or an error wrapping
// domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, table string, key any) (domain.Record, error) {
	if _, err := s.table(table); err != nil {
		return nil, err
	}
	var rec domain.Record
	err := s.run(ctx, "get", table, func() error {
		var err error
		rec, err = s.rs.Get(ctx, table, key)
		return err
	})
	return rec, err
}

// GetAll returns the records of table in key order.
func (s *Store) GetAll(ctx context.Context, table string, opts domain.ListOptions) ([]domain.Record, error) {
	if _, err := s.table(table); err != nil {
		return nil, err
	}
	var recs []domain.Record
	err := s.run(ctx, "getAll", table, func() error {
		var err error
		recs, err = s.rs.GetAll(ctx, table, opts)
		return err
	})
	return recs, err
}

// Update upserts rec by its primary key.
func (s *Store) Update(ctx context.Context, table string, rec domain.Record) (any, error) {
	if _, err := s.table(table); err != nil {
		return nil, err
	}
	stamped := s.stamp(rec)

	var key any
	err := s.run(ctx, "update", table, func() error {
		var err error
		key, err = s.rs.Put(ctx, table, stamped)
		return err
	})
	s.invalidate(table)
	return key, err
}

// Delete removes the record under key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, table string, key any) error {
	if _, err := s.table(table); err != nil {
		return err
	}
	err := s.run(ctx, "delete", table, func() error {
		return s.rs.Delete(ctx, table, key)
	})
	s.invalidate(table)
	return err
}

// Clear removes every record of table.
func (s *Store) Clear(ctx context.Context, table string) error {
	if _, err := s.table(table); err != nil {
		return err
	}
	err := s.run(ctx, "clear", table, func() error {
		return s.rs.Clear(ctx, table)
	})
	s.invalidate(table)
	return err
}

func (s *Store) Count(ctx context.Context, table string) (int, error) {
	if _, err := s.table(table); err != nil {
		return 0, err
	}
	var n int
	err := s.run(ctx, "count", table, func() error {
		var err error
		n, err = s.rs.Count(ctx, table)
		return err
	})
	return n, err
}

// BulkAdd inserts recs. On the primary engine the batch is all-or-nothing;
// on the fallback engine items before a failing one stay written.
func (s *Store) BulkAdd(ctx context.Context, table string, recs []domain.Record) ([]any, error) {
	if _, err := s.table(table); err != nil {
		return nil, err
	}
	stamped := s.stampAll(recs)

	var keys []any
	err := s.run(ctx, "bulkAdd", table, func() error {
		var err error
		keys, err = s.rs.BulkAdd(ctx, table, stamped)
		return err
	})
	s.invalidate(table)
	return keys, err
}

// BulkUpdate upserts recs with the same atomicity as BulkAdd.
func (s *Store) BulkUpdate(ctx context.Context, table string, recs []domain.Record) ([]any, error) {
	if _, err := s.table(table); err != nil {
		return nil, err
	}
	stamped := s.stampAll(recs)

	var keys []any
	err := s.run(ctx, "bulkUpdate", table, func() error {
		var err error
		keys, err = s.rs.BulkPut(ctx, table, stamped)
		return err
	})
	s.invalidate(table)
	return keys, err
}

// BulkDelete removes every key with the same atomicity as BulkAdd.
func (s *Store) BulkDelete(ctx context.Context, table string, keys []any) error {
	if _, err := s.table(table); err != nil {
		return err
	}
	err := s.run(ctx, "bulkDelete", table, func() error {
		return s.rs.BulkDelete(ctx, table, keys)
	})
	s.invalidate(table)
	return err
}

func (s *Store) stampAll(recs []domain.Record) []domain.Record {
	out := make([]domain.Record, len(recs))
	for i, rec := range recs {
		out[i] = s.stamp(rec)
	}
	return out
}
