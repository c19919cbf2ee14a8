package docstore

import (
	"context"
	"fmt"
	"time"

	"cyberbook/internal/domain"
	"cyberbook/internal/port"
)

// CleanOldData deletes the records of table last updated more than days
// days ago and returns how many were removed. A record updated exactly at
// the threshold is kept; records without a timestamp are never removed.
func (s *Store) CleanOldData(ctx context.Context, table string, days int) (int, error) {
	ts, err := s.table(table)
	if err != nil {
		return 0, err
	}
	threshold := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	all, err := s.GetAll(ctx, table, domain.ListOptions{})
	if err != nil {
		return 0, err
	}

	var keys []any
	for _, rec := range all {
		updated, ok := rec.Time(domain.FieldUpdatedAt)
		if !ok || !updated.Before(threshold) {
			continue
		}
		key, err := rec.Key(ts.KeyPath)
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := s.BulkDelete(ctx, table, keys); err != nil {
		return 0, err
	}
	s.logger.Info("cleaned old records", "table", table, "days", days, "removed", len(keys))
	return len(keys), nil
}

// CompactDatabase drops every cached query and, on the primary engine,
// rewrites the database file and reconnects.
func (s *Store) CompactDatabase(ctx context.Context) error {
	s.cache.Invalidate()

	c, ok := s.rs.(port.Compactor)
	if !ok {
		return nil
	}
	return s.run(ctx, "compact", "", func() error {
		return c.Compact(ctx)
	})
}

// Export is the JSON shape of a full store dump.
type Export struct {
	Version    int                         `json:"version"`
	ExportedAt string                      `json:"exportedAt"`
	Tables     map[string][]domain.Record `json:"tables"`
}

// ExportData dumps every table.
func (s *Store) ExportData(ctx context.Context) (*Export, error) {
	out := &Export{
		Version:    s.schema.Version,
		ExportedAt: s.now().UTC().Format(domain.TimeLayout),
		Tables:     make(map[string][]domain.Record),
	}
	for _, name := range s.schema.TableNames() {
		recs, err := s.GetAll(ctx, name, domain.ListOptions{})
		if err != nil {
			return nil, err
		}
		if recs == nil {
			recs = []domain.Record{}
		}
		out.Tables[name] = recs
	}
	return out, nil
}

// ImportData replaces the content of every table present in data. Each
// destination table is cleared first. Stored timestamps are kept.
func (s *Store) ImportData(ctx context.Context, data *Export) error {
	if data == nil {
		return nil
	}
	for name := range data.Tables {
		if _, err := s.table(name); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}

	for _, name := range s.schema.TableNames() {
		recs, ok := data.Tables[name]
		if !ok {
			continue
		}
		if err := s.Clear(ctx, name); err != nil {
			return err
		}
		if len(recs) == 0 {
			continue
		}

		restored := make([]domain.Record, len(recs))
		for i, rec := range recs {
			restored[i] = s.restamp(rec)
		}
		err := s.run(ctx, "import", name, func() error {
			_, err := s.rs.BulkPut(ctx, name, restored)
			return err
		})
		s.invalidate(name)
		if err != nil {
			return err
		}
	}
	return nil
}

// restamp fills missing timestamps without touching present ones.
func (s *Store) restamp(rec domain.Record) domain.Record {
	out := rec.Clone()
	now := s.now().UTC().Format(domain.TimeLayout)
	for _, f := range []string{domain.FieldCreatedAt, domain.FieldUpdatedAt} {
		if v, ok := out[f]; !ok || v == nil {
			out[f] = now
		}
	}
	return out
}
