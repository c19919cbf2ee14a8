package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"cyberbook/internal/domain"
	"cyberbook/internal/port"
)

// Every table is a top-level bucket holding a records bucket keyed by the
// encoded primary key and an idx bucket with one sub-bucket per index.
var (
	bucketMeta    = []byte("_meta")
	bucketRecords = []byte("records")
	bucketIndexes = []byte("idx")
)

// Options tunes how the database file is opened.
type Options struct {
	// Timeout bounds the wait for the file lock held by another process.
	Timeout time.Duration
}

// BoltStore is the primary record engine.
type BoltStore struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	path   string
	opts   Options
	schema domain.Schema
}

var (
	_ port.RecordStore = (*BoltStore)(nil)
	_ port.Compactor   = (*BoltStore)(nil)
)

func NewBoltStore(path string, opts Options) (*BoltStore, error) {
	db, err := openDB(path, opts)
	if err != nil {
		return nil, err
	}

	s := &BoltStore{db: db, path: path, opts: opts}
	err = db.View(func(tx *bbolt.Tx) error {
		schema, err := readSchema(tx.Bucket(bucketMeta))
		s.schema = schema
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openDB(path string, opts Options) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create meta bucket: %w", err)
	}
	return db, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) Atomic() bool {
	return true
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// table is a resolved table inside a transaction.
type table struct {
	schema  domain.TableSchema
	root    *bbolt.Bucket
	records *bbolt.Bucket
	indexes *bbolt.Bucket
}

func (s *BoltStore) table(tx *bbolt.Tx, name string) (*table, error) {
	ts, ok := s.schema.Table(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTable, name)
	}
	root := tx.Bucket([]byte(name))
	if root == nil {
		return nil, fmt.Errorf("%w: %s (not migrated)", domain.ErrUnknownTable, name)
	}
	return &table{
		schema:  ts,
		root:    root,
		records: root.Bucket(bucketRecords),
		indexes: root.Bucket(bucketIndexes),
	}, nil
}

func (s *BoltStore) update(ctx context.Context, name string, fn func(t *table) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Update(func(tx *bbolt.Tx) error {
		t, err := s.table(tx, name)
		if err != nil {
			return err
		}
		return fn(t)
	})
}

func (s *BoltStore) view(ctx context.Context, name string, fn func(t *table) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.View(func(tx *bbolt.Tx) error {
		t, err := s.table(tx, name)
		if err != nil {
			return err
		}
		return fn(t)
	})
}

func (s *BoltStore) Add(ctx context.Context, name string, rec domain.Record) (any, error) {
	var key any
	err := s.update(ctx, name, func(t *table) error {
		var err error
		key, err = t.put(rec, true)
		return err
	})
	return key, err
}

func (s *BoltStore) Put(ctx context.Context, name string, rec domain.Record) (any, error) {
	var key any
	err := s.update(ctx, name, func(t *table) error {
		var err error
		key, err = t.put(rec, false)
		return err
	})
	return key, err
}

// BulkAdd inserts every record in one transaction. Any failure rolls back the batch.
func (s *BoltStore) BulkAdd(ctx context.Context, name string, recs []domain.Record) ([]any, error) {
	return s.bulkPut(ctx, name, recs, true)
}

// BulkPut upserts every record in one transaction. Any failure rolls back the batch.
func (s *BoltStore) BulkPut(ctx context.Context, name string, recs []domain.Record) ([]any, error) {
	return s.bulkPut(ctx, name, recs, false)
}

func (s *BoltStore) bulkPut(ctx context.Context, name string, recs []domain.Record, insert bool) ([]any, error) {
	var keys []any
	err := s.update(ctx, name, func(t *table) error {
		keys = make([]any, 0, len(recs))
		for i, rec := range recs {
			key, err := t.put(rec, insert)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *BoltStore) Get(ctx context.Context, name string, key any) (domain.Record, error) {
	k, err := domain.NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	var rec domain.Record
	err = s.view(ctx, name, func(t *table) error {
		data := t.records.Get([]byte(domain.KeyString(k)))
		if data == nil {
			return fmt.Errorf("%w: %s/%v", domain.ErrNotFound, name, k)
		}
		rec, err = decodeRecord(data)
		return err
	})
	return rec, err
}

func (s *BoltStore) GetAll(ctx context.Context, name string, opts domain.ListOptions) ([]domain.Record, error) {
	var recs []domain.Record
	err := s.view(ctx, name, func(t *table) error {
		c := t.records.Cursor()
		first, next := c.First, c.Next
		if opts.Reverse {
			first, next = c.Last, c.Prev
		}
		for k, v := first(); k != nil; k, v = next() {
			if opts.Limit > 0 && len(recs) >= opts.Limit {
				break
			}
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

func (s *BoltStore) Delete(ctx context.Context, name string, key any) error {
	k, err := domain.NormalizeKey(key)
	if err != nil {
		return err
	}
	return s.update(ctx, name, func(t *table) error {
		return t.delete(domain.KeyString(k))
	})
}

// BulkDelete removes every key in one transaction.
func (s *BoltStore) BulkDelete(ctx context.Context, name string, keys []any) error {
	pks := make([]string, 0, len(keys))
	for _, key := range keys {
		k, err := domain.NormalizeKey(key)
		if err != nil {
			return err
		}
		pks = append(pks, domain.KeyString(k))
	}
	return s.update(ctx, name, func(t *table) error {
		for _, pk := range pks {
			if err := t.delete(pk); err != nil {
				return err
			}
		}
		return nil
	})
}

// Clear removes every record but keeps the auto-increment sequence.
func (s *BoltStore) Clear(ctx context.Context, name string) error {
	return s.update(ctx, name, func(t *table) error {
		if err := t.root.DeleteBucket(bucketRecords); err != nil {
			return err
		}
		if err := t.root.DeleteBucket(bucketIndexes); err != nil {
			return err
		}
		_, err := createTableBuckets(t.root, t.schema)
		return err
	})
}

func (s *BoltStore) Count(ctx context.Context, name string) (int, error) {
	n := 0
	err := s.view(ctx, name, func(t *table) error {
		c := t.records.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Query returns records whose field falls inside r, ordered by field value.
// Querying the primary key path scans the records bucket instead of an index.
func (s *BoltStore) Query(ctx context.Context, name, field string, r domain.Range) ([]domain.Record, error) {
	var recs []domain.Record
	err := s.view(ctx, name, func(t *table) error {
		if field == t.schema.KeyPath {
			return t.records.ForEach(func(k, v []byte) error {
				key, err := domain.ParseKeyString(string(k))
				if err != nil || !r.Contains(key) {
					return nil
				}
				rec, err := decodeRecord(v)
				if err != nil {
					return err
				}
				recs = append(recs, rec)
				return nil
			})
		}

		if _, ok := t.schema.Index(field); !ok {
			return fmt.Errorf("%w: %s.%s", domain.ErrUnknownIndex, name, field)
		}
		b := t.indexes.Bucket([]byte(field))
		if b == nil {
			return fmt.Errorf("%w: %s.%s (not migrated)", domain.ErrUnknownIndex, name, field)
		}

		c := b.Cursor()
		var k, v []byte
		if r.Lower != nil {
			enc, ok := encodeValue(r.Lower)
			if !ok {
				return fmt.Errorf("%w: lower bound %v", domain.ErrInvalidKey, r.Lower)
			}
			k, v = c.Seek(enc)
		} else {
			k, v = c.First()
		}

		for ; k != nil; k, v = c.Next() {
			val, _, err := decodeValue(k)
			if err != nil {
				return err
			}
			if r.Upper != nil {
				cmp, ok := domain.CompareValues(val, r.Upper)
				if !ok || cmp > 0 || (cmp == 0 && r.UpperOpen) {
					break
				}
			}
			if !r.Contains(val) {
				continue
			}
			data := t.records.Get(v)
			if data == nil {
				continue
			}
			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

// Compact rewrites the database file into a fresh one and reopens it.
func (s *BoltStore) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".compact"
	_ = os.Remove(tmp)

	dst, err := bbolt.Open(tmp, 0600, &bbolt.Options{Timeout: s.opts.Timeout})
	if err != nil {
		return fmt.Errorf("open compaction target: %w", err)
	}
	if err := bbolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmp)
		return fmt.Errorf("compact: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace database file: %w", err)
	}

	db, err := openDB(s.path, s.opts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

// put writes rec. With insert set an existing key is a constraint violation.
func (t *table) put(rec domain.Record, insert bool) (any, error) {
	rec = rec.Clone()
	keyPath := t.schema.KeyPath

	var key any
	if v, ok := rec[keyPath]; (!ok || v == nil) && t.schema.AutoIncrement {
		seq, err := t.root.NextSequence()
		if err != nil {
			return nil, err
		}
		key = int64(seq)
		rec[keyPath] = key
	} else {
		var err error
		key, err = rec.Key(keyPath)
		if err != nil {
			return nil, err
		}
		// explicit numeric keys push the generator forward
		if n, ok := key.(int64); ok && t.schema.AutoIncrement && n > 0 && uint64(n) > t.root.Sequence() {
			if err := t.root.SetSequence(uint64(n)); err != nil {
				return nil, err
			}
		}
	}

	pk := domain.KeyString(key)
	if existing := t.records.Get([]byte(pk)); existing != nil {
		if insert {
			return nil, fmt.Errorf("%w: key %v already exists in %s", domain.ErrConstraint, key, t.schema.Name)
		}
		old, err := decodeRecord(existing)
		if err != nil {
			return nil, err
		}
		if err := t.removeIndexEntries(old, pk); err != nil {
			return nil, err
		}
	}

	if err := t.addIndexEntries(rec, pk); err != nil {
		return nil, err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if err := t.records.Put([]byte(pk), data); err != nil {
		return nil, err
	}
	return key, nil
}

func (t *table) delete(pk string) error {
	existing := t.records.Get([]byte(pk))
	if existing == nil {
		return nil
	}
	old, err := decodeRecord(existing)
	if err != nil {
		return err
	}
	if err := t.removeIndexEntries(old, pk); err != nil {
		return err
	}
	return t.records.Delete([]byte(pk))
}

func (t *table) addIndexEntries(rec domain.Record, pk string) error {
	for _, idx := range t.schema.Indexes {
		b := t.indexes.Bucket([]byte(idx.Field))
		if b == nil {
			continue
		}
		if err := indexRecord(b, idx, rec, pk, t.schema.Name); err != nil {
			return err
		}
	}
	return nil
}

func (t *table) removeIndexEntries(rec domain.Record, pk string) error {
	for _, idx := range t.schema.Indexes {
		b := t.indexes.Bucket([]byte(idx.Field))
		if b == nil {
			continue
		}
		enc, ok := encodeValue(rec[idx.Field])
		if !ok {
			continue
		}
		if err := b.Delete(indexKey(enc, pk)); err != nil {
			return err
		}
	}
	return nil
}

// indexRecord adds one index entry. Records whose field is missing or not a
// scalar are left out of the index.
func indexRecord(b *bbolt.Bucket, idx domain.IndexSchema, rec domain.Record, pk, tableName string) error {
	enc, ok := encodeValue(rec[idx.Field])
	if !ok {
		return nil
	}
	if idx.Unique {
		c := b.Cursor()
		for k, v := c.Seek(enc); k != nil && bytes.HasPrefix(k, enc); k, v = c.Next() {
			if string(v) != pk {
				return fmt.Errorf("%w: %s.%s = %v is not unique", domain.ErrConstraint, tableName, idx.Field, rec[idx.Field])
			}
		}
	}
	return b.Put(indexKey(enc, pk), []byte(pk))
}

func decodeRecord(data []byte) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
