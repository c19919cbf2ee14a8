package port

import (
	"context"

	"cyberbook/internal/domain"
)

// RecordStore is a table-oriented record engine. The primary bbolt engine and
// the flat key/value fallback both satisfy it, so callers never branch on
// which one is active.
type RecordStore interface {
	// Migrate creates any table or index of schema not yet present.
	Migrate(ctx context.Context, schema domain.Schema) error

	Add(ctx context.Context, table string, rec domain.Record) (any, error)
	Get(ctx context.Context, table string, key any) (domain.Record, error)
	GetAll(ctx context.Context, table string, opts domain.ListOptions) ([]domain.Record, error)
	Put(ctx context.Context, table string, rec domain.Record) (any, error)
	Delete(ctx context.Context, table string, key any) error
	Clear(ctx context.Context, table string) error
	Count(ctx context.Context, table string) (int, error)

	// Bulk variants run inside a single transaction when the engine supports
	// one; Atomic reports whether it does.
	BulkAdd(ctx context.Context, table string, recs []domain.Record) ([]any, error)
	BulkPut(ctx context.Context, table string, recs []domain.Record) ([]any, error)
	BulkDelete(ctx context.Context, table string, keys []any) error

	Query(ctx context.Context, table, field string, r domain.Range) ([]domain.Record, error)

	Atomic() bool
	Close() error
}

// Compactor is implemented by engines that can rewrite their storage file.
type Compactor interface {
	Compact(ctx context.Context) error
}
