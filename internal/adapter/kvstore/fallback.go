package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"cyberbook/internal/domain"
	"cyberbook/internal/port"
)

// FallbackStore implements port.RecordStore on a flat key/value namespace.
// Every record lives under prefix + table + "/" + encoded key.
//
// It has no secondary indices: queries scan the table, unique indices are
// not enforced, and bulk operations run item by item without atomicity. A
// failed bulk call may leave the items before the failing one applied.
type FallbackStore struct {
	mu     sync.Mutex
	kv     port.KV
	prefix string
	schema domain.Schema
	newKey func() (string, error)
}

var _ port.RecordStore = (*FallbackStore)(nil)

func NewFallbackStore(kv port.KV, prefix string) *FallbackStore {
	return &FallbackStore{
		kv:     kv,
		prefix: prefix,
		newKey: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}
}

// PhysicalKey returns the flat key a record of table is stored under.
func (s *FallbackStore) PhysicalKey(table string, key any) string {
	return s.tablePrefix(table) + domain.KeyString(key)
}

func (s *FallbackStore) tablePrefix(table string) string {
	return s.prefix + table + "/"
}

// Migrate records the schema. A flat namespace has nothing to create.
func (s *FallbackStore) Migrate(_ context.Context, schema domain.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema.Version > schema.Version {
		return fmt.Errorf("%w: v%d to v%d", domain.ErrSchemaDowngrade, s.schema.Version, schema.Version)
	}
	s.schema = schema
	return nil
}

func (s *FallbackStore) table(name string) (domain.TableSchema, error) {
	ts, ok := s.schema.Table(name)
	if !ok {
		return ts, fmt.Errorf("%w: %s", domain.ErrUnknownTable, name)
	}
	return ts, nil
}

func (s *FallbackStore) Atomic() bool { return false }

func (s *FallbackStore) Close() error { return s.kv.Close() }

func (s *FallbackStore) Add(ctx context.Context, table string, rec domain.Record) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, table, rec, true)
}

func (s *FallbackStore) Put(ctx context.Context, table string, rec domain.Record) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, table, rec, false)
}

func (s *FallbackStore) put(ctx context.Context, table string, rec domain.Record, insert bool) (any, error) {
	ts, err := s.table(table)
	if err != nil {
		return nil, err
	}
	rec = rec.Clone()

	var key any
	if v, ok := rec[ts.KeyPath]; (!ok || v == nil) && ts.AutoIncrement {
		id, err := s.newKey()
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
		key = id
		rec[ts.KeyPath] = id
	} else {
		key, err = rec.Key(ts.KeyPath)
		if err != nil {
			return nil, err
		}
	}

	physical := s.PhysicalKey(table, key)
	if insert {
		_, exists, err := s.kv.Get(ctx, physical)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: key %v already exists in %s", domain.ErrConstraint, key, table)
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if err := s.kv.Set(ctx, physical, data); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *FallbackStore) Get(ctx context.Context, table string, key any) (domain.Record, error) {
	if _, err := s.table(table); err != nil {
		return nil, err
	}
	k, err := domain.NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	data, ok, err := s.kv.Get(ctx, s.PhysicalKey(table, k))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%v", domain.ErrNotFound, table, k)
	}
	return decodeRecord(data)
}

func (s *FallbackStore) GetAll(ctx context.Context, table string, opts domain.ListOptions) ([]domain.Record, error) {
	if _, err := s.table(table); err != nil {
		return nil, err
	}
	keys, err := s.kv.Keys(ctx, s.tablePrefix(table))
	if err != nil {
		return nil, err
	}
	if opts.Reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	recs := make([]domain.Record, 0, len(keys))
	for _, k := range keys {
		if opts.Limit > 0 && len(recs) >= opts.Limit {
			break
		}
		data, ok, err := s.kv.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *FallbackStore) Delete(ctx context.Context, table string, key any) error {
	if _, err := s.table(table); err != nil {
		return err
	}
	k, err := domain.NormalizeKey(key)
	if err != nil {
		return err
	}
	return s.kv.Delete(ctx, s.PhysicalKey(table, k))
}

func (s *FallbackStore) Clear(ctx context.Context, table string) error {
	if _, err := s.table(table); err != nil {
		return err
	}
	keys, err := s.kv.Keys(ctx, s.tablePrefix(table))
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *FallbackStore) Count(ctx context.Context, table string) (int, error) {
	if _, err := s.table(table); err != nil {
		return 0, err
	}
	keys, err := s.kv.Keys(ctx, s.tablePrefix(table))
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// BulkAdd adds records one at a time and stops at the first failure.
func (s *FallbackStore) BulkAdd(ctx context.Context, table string, recs []domain.Record) ([]any, error) {
	return s.bulk(ctx, table, recs, true)
}

// BulkPut upserts records one at a time and stops at the first failure.
func (s *FallbackStore) BulkPut(ctx context.Context, table string, recs []domain.Record) ([]any, error) {
	return s.bulk(ctx, table, recs, false)
}

func (s *FallbackStore) bulk(ctx context.Context, table string, recs []domain.Record, insert bool) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]any, 0, len(recs))
	for i, rec := range recs {
		key, err := s.put(ctx, table, rec, insert)
		if err != nil {
			return keys, fmt.Errorf("item %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *FallbackStore) BulkDelete(ctx context.Context, table string, keys []any) error {
	for i, key := range keys {
		if err := s.Delete(ctx, table, key); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// Query scans the whole table and returns records whose field is inside r,
// ordered by field value then key.
func (s *FallbackStore) Query(ctx context.Context, table, field string, r domain.Range) ([]domain.Record, error) {
	ts, err := s.table(table)
	if err != nil {
		return nil, err
	}
	if _, ok := ts.Index(field); !ok && field != ts.KeyPath {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrUnknownIndex, table, field)
	}

	all, err := s.GetAll(ctx, table, domain.ListOptions{})
	if err != nil {
		return nil, err
	}

	hits := make([]domain.Record, 0)
	for _, rec := range all {
		if _, ok := domain.NormalizeValue(rec[field]); !ok {
			continue
		}
		if r.Contains(rec[field]) {
			hits = append(hits, rec)
		}
	}
	// GetAll already returns key order, so a stable sort keeps it for ties
	sort.SliceStable(hits, func(i, j int) bool {
		c, _ := domain.CompareValues(hits[i][field], hits[j][field])
		return c < 0
	})
	return hits, nil
}

// Tables lists the logical tables that currently hold at least one record.
func (s *FallbackStore) Tables(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var tables []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, s.prefix)
		i := strings.Index(rest, "/")
		if i <= 0 {
			continue
		}
		if name := rest[:i]; !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}
	return tables, nil
}

func decodeRecord(data []byte) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
