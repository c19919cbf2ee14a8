package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"cyberbook/internal/domain"
)

var keySchema = []byte("schema")

// MigrationResult describes what a call to Migrate changed.
type MigrationResult struct {
	OldVersion    int
	NewVersion    int
	CreatedTables []string
	// CreatedIndexes lists new indices as table.field.
	CreatedIndexes []string
}

// SchemaVersion returns the version of the stored schema, 0 for a fresh file.
func (s *BoltStore) SchemaVersion() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema.Version
}

// Schema returns the stored schema, including tables no longer requested.
func (s *BoltStore) Schema() domain.Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema
}

func (s *BoltStore) Migrate(ctx context.Context, schema domain.Schema) error {
	_, err := s.MigrateWithResult(ctx, schema)
	return err
}

// MigrateWithResult creates every table and index of schema that does not
// exist yet, backfilling new indices from existing records. Migrations are
// additive: tables and indices missing from schema are kept.
func (s *BoltStore) MigrateWithResult(ctx context.Context, schema domain.Schema) (*MigrationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &MigrationResult{NewVersion: schema.Version}
	var merged domain.Schema

	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		stored, err := readSchema(meta)
		if err != nil {
			return err
		}
		result.OldVersion = stored.Version
		if stored.Version > schema.Version {
			return fmt.Errorf("%w: stored v%d, requested v%d", domain.ErrSchemaDowngrade, stored.Version, schema.Version)
		}

		merged = mergeSchema(stored, schema)
		for _, ts := range merged.Tables {
			root := tx.Bucket([]byte(ts.Name))
			if root == nil {
				root, err = tx.CreateBucket([]byte(ts.Name))
				if err != nil {
					return fmt.Errorf("create table %s: %w", ts.Name, err)
				}
				result.CreatedTables = append(result.CreatedTables, ts.Name)
			}
			created, err := createTableBuckets(root, ts)
			if err != nil {
				return fmt.Errorf("migrate table %s: %w", ts.Name, err)
			}
			for _, field := range created {
				result.CreatedIndexes = append(result.CreatedIndexes, ts.Name+"."+field)
			}
		}
		return writeSchema(meta, merged)
	})
	if err != nil {
		return nil, err
	}

	s.schema = merged
	return result, nil
}

// createTableBuckets makes sure the records and index buckets of a table
// exist. It returns the fields whose index was created and backfilled.
func createTableBuckets(root *bbolt.Bucket, ts domain.TableSchema) ([]string, error) {
	records, err := root.CreateBucketIfNotExists(bucketRecords)
	if err != nil {
		return nil, err
	}
	indexes, err := root.CreateBucketIfNotExists(bucketIndexes)
	if err != nil {
		return nil, err
	}

	var created []string
	for _, idx := range ts.Indexes {
		if indexes.Bucket([]byte(idx.Field)) != nil {
			continue
		}
		b, err := indexes.CreateBucket([]byte(idx.Field))
		if err != nil {
			return nil, err
		}
		err = records.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			return indexRecord(b, idx, rec, string(k), ts.Name)
		})
		if err != nil {
			return nil, fmt.Errorf("backfill index %s: %w", idx.Field, err)
		}
		created = append(created, idx.Field)
	}
	return created, nil
}

// mergeSchema adds the tables and indices of next to stored. The key path
// of an existing table never changes.
func mergeSchema(stored, next domain.Schema) domain.Schema {
	out := domain.Schema{Version: next.Version}

	for _, old := range stored.Tables {
		ts := old
		ts.Indexes = append([]domain.IndexSchema(nil), old.Indexes...)
		if nt, ok := next.Table(old.Name); ok {
			for _, idx := range nt.Indexes {
				if _, exists := ts.Index(idx.Field); !exists {
					ts.Indexes = append(ts.Indexes, idx)
				}
			}
		}
		out.Tables = append(out.Tables, ts)
	}
	for _, nt := range next.Tables {
		if _, exists := stored.Table(nt.Name); !exists {
			out.Tables = append(out.Tables, nt)
		}
	}
	return out
}

func readSchema(meta *bbolt.Bucket) (domain.Schema, error) {
	var schema domain.Schema
	if meta == nil {
		return schema, nil
	}
	data := meta.Get(keySchema)
	if data == nil {
		return schema, nil
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("decode stored schema: %w", err)
	}
	return schema, nil
}

func writeSchema(meta *bbolt.Bucket, schema domain.Schema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	return meta.Put(keySchema, data)
}
