package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"cyberbook/config"
	"cyberbook/internal/adapter/cache"
	"cyberbook/internal/adapter/kvstore"
	"cyberbook/internal/adapter/memstore"
	"cyberbook/internal/adapter/sqlitekv"
	"cyberbook/internal/adapter/store"
	"cyberbook/internal/domain"
	"cyberbook/internal/logging"
	"cyberbook/internal/port"
)

// Mode tells which engine backs a Store.
type Mode string

const (
	ModePrimary  Mode = "primary"
	ModeFallback Mode = "fallback"
)

// StorageError reports an operation that failed after its retries ran out,
// or failed permanently. Bulk operations produce one error for the batch.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store is the document store: CRUD over named tables with timestamps,
// bulk operations, cached index queries, retention and export, and a sync
// outbox. Callers see the same surface whichever engine is active.
type Store struct {
	rs     port.RecordStore
	mode   Mode
	schema domain.Schema
	cfg    config.StorageConfig
	cache  *cache.QueryCache[[]domain.Record]
	logger *slog.Logger
	now    func() time.Time

	degradeOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now for timestamps and retention.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens the engine named by cfg.Engine and migrates it to schema. When
// the primary engine cannot be opened or migrated the store logs one warning
// and continues on the fallback engine. cfg paths must already be resolved.
func Open(ctx context.Context, cfg config.StorageConfig, schema domain.Schema, opts ...Option) (*Store, error) {
	schema = schema.WithSyncQueue()

	s := newStore(cfg, schema, opts...)

	if cfg.Engine != string(ModeFallback) {
		rs, err := s.openPrimary(ctx)
		if err == nil {
			s.rs, s.mode = rs, ModePrimary
			return s, nil
		}
		s.degrade(err)
	}

	rs, err := s.openFallback(ctx)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	s.rs, s.mode = rs, ModeFallback
	return s, nil
}

// New wraps an already migrated record store.
func New(rs port.RecordStore, mode Mode, cfg config.StorageConfig, schema domain.Schema, opts ...Option) *Store {
	s := newStore(cfg, schema.WithSyncQueue(), opts...)
	s.rs, s.mode = rs, mode
	return s
}

func newStore(cfg config.StorageConfig, schema domain.Schema, opts ...Option) *Store {
	defaults := config.DefaultConfig().Storage
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaults.RetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.FallbackPrefix == "" {
		cfg.FallbackPrefix = defaults.FallbackPrefix
	}

	s := &Store{
		schema: schema,
		cfg:    cfg,
		cache:  cache.NewQueryCache[[]domain.Record](cfg.CacheSize, 0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDefault(s.logger)
	return s
}

func (s *Store) openPrimary(ctx context.Context) (port.RecordStore, error) {
	bs, err := store.NewBoltStore(s.cfg.Path, store.Options{Timeout: s.cfg.OpenTimeout})
	if err != nil {
		return nil, err
	}
	res, err := bs.MigrateWithResult(ctx, s.schema)
	if err != nil {
		bs.Close()
		return nil, err
	}
	if res.OldVersion != res.NewVersion || len(res.CreatedTables) > 0 || len(res.CreatedIndexes) > 0 {
		s.logger.Info("storage migrated",
			"from", res.OldVersion, "to", res.NewVersion,
			"tables", res.CreatedTables, "indexes", res.CreatedIndexes)
	}
	return bs, nil
}

func (s *Store) openFallback(ctx context.Context) (port.RecordStore, error) {
	var kv port.KV
	switch s.cfg.Fallback {
	case "sqlite":
		skv, err := sqlitekv.Open(s.cfg.FallbackPath)
		if err != nil {
			s.logger.Warn("sqlite fallback unavailable, keeping data in memory", "path", s.cfg.FallbackPath, "error", err)
			kv = memstore.NewMemoryKV()
		} else {
			kv = skv
		}
	default:
		kv = memstore.NewMemoryKV()
	}

	fs := kvstore.NewFallbackStore(kv, s.cfg.FallbackPrefix)
	if err := fs.Migrate(ctx, s.schema); err != nil {
		fs.Close()
		return nil, err
	}
	return fs, nil
}

func (s *Store) degrade(err error) {
	s.degradeOnce.Do(func() {
		s.logger.Warn("primary storage unavailable, using fallback", "path", s.cfg.Path, "fallback", s.cfg.Fallback, "error", err)
	})
}

func (s *Store) Mode() Mode { return s.mode }

// Atomic reports whether bulk operations are all-or-nothing.
func (s *Store) Atomic() bool { return s.rs.Atomic() }

func (s *Store) Schema() domain.Schema { return s.schema }

// Tables lists the declared tables, the sync queue included.
func (s *Store) Tables() []string { return s.schema.TableNames() }

func (s *Store) Close() error {
	s.cache.Invalidate()
	return s.rs.Close()
}

// run executes one engine operation. On the primary engine transient
// failures are retried with linearly growing delays.
func (s *Store) run(ctx context.Context, op, table string, fn func() error) error {
	var err error
	if s.mode == ModePrimary {
		base := s.cfg.RetryDelay
		err = retry.Do(fn,
			retry.Context(ctx),
			retry.Attempts(uint(s.cfg.RetryAttempts)),
			retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
				return time.Duration(n+1) * base
			}),
			retry.RetryIf(func(err error) bool {
				return !domain.IsPermanent(err) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}),
			retry.OnRetry(func(n uint, err error) {
				s.logger.Debug("retrying storage operation", "op", op, "table", table, "attempt", n+1, "error", err)
			}),
			retry.LastErrorOnly(true),
		)
	} else {
		err = fn()
	}
	if err != nil {
		return &StorageError{Op: op, Table: table, Err: err}
	}
	return nil
}

func (s *Store) table(name string) (domain.TableSchema, error) {
	ts, ok := s.schema.Table(name)
	if !ok {
		return ts, &StorageError{Op: "resolve", Table: name, Err: domain.ErrUnknownTable}
	}
	return ts, nil
}

// stamp copies rec, sets createdAt when missing and always sets updatedAt.
func (s *Store) stamp(rec domain.Record) domain.Record {
	out := rec.Clone()
	now := s.now().UTC().Format(domain.TimeLayout)
	if v, ok := out[domain.FieldCreatedAt]; !ok || v == nil {
		out[domain.FieldCreatedAt] = now
	}
	out[domain.FieldUpdatedAt] = now
	return out
}
