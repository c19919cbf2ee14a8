package docstore

import (
	"context"
	"fmt"
	"math"

	"cyberbook/internal/domain"
)

// MarkForSync appends an outbox entry for the record of table under key.
func (s *Store) MarkForSync(ctx context.Context, table string, key any) error {
	if _, err := s.table(table); err != nil {
		return err
	}
	k, err := domain.NormalizeKey(key)
	if err != nil {
		return &StorageError{Op: "markForSync", Table: table, Err: err}
	}
	_, err = s.Add(ctx, domain.SyncQueueTable, domain.Record{
		"store":     table,
		"key":       k,
		"timestamp": s.now().UTC().Format(domain.TimeLayout),
	})
	return err
}

// GetSyncQueue returns pending outbox entries in insertion order.
func (s *Store) GetSyncQueue(ctx context.Context) ([]domain.SyncEntry, error) {
	recs, err := s.GetAll(ctx, domain.SyncQueueTable, domain.ListOptions{})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.SyncEntry, 0, len(recs))
	for _, rec := range recs {
		entry := domain.SyncEntry{ID: rec["id"], Key: rec["key"]}
		entry.Store, _ = rec["store"].(string)
		entry.Timestamp, _ = rec["timestamp"].(string)
		if k, err := domain.NormalizeKey(entry.Key); err == nil {
			entry.Key = k
		}
		if id, err := domain.NormalizeKey(entry.ID); err == nil {
			entry.ID = id
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ClearSyncQueue drains the outbox.
func (s *Store) ClearSyncQueue(ctx context.Context) error {
	return s.Clear(ctx, domain.SyncQueueTable)
}

// BumpStat adds delta to the named counter in the stats table and returns
// the new value.
func (s *Store) BumpStat(ctx context.Context, name string, delta int) (int, error) {
	rec, err := s.Get(ctx, TableStats, name)
	value := 0
	switch {
	case err == nil:
		value = toInt(rec["value"])
	case isNotFound(err):
		rec = domain.Record{"name": name}
	default:
		return 0, err
	}

	rec["value"] = value + delta
	if _, err := s.Update(ctx, TableStats, rec); err != nil {
		return 0, fmt.Errorf("bump %s: %w", name, err)
	}
	return value + delta, nil
}

// Stats returns every counter of the stats table.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	recs, err := s.GetAll(ctx, TableStats, domain.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(recs))
	for _, rec := range recs {
		if name, ok := rec["name"].(string); ok {
			out[name] = toInt(rec["value"])
		}
	}
	return out, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if math.IsNaN(n) {
			return 0
		}
		return int(n)
	}
	return 0
}
