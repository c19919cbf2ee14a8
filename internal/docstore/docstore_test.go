package docstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberbook/config"
	"cyberbook/internal/adapter/kvstore"
	"cyberbook/internal/adapter/memstore"
	"cyberbook/internal/adapter/store"
	"cyberbook/internal/domain"
	"cyberbook/internal/logging"
	"cyberbook/internal/port"
)

func testConfig(t *testing.T) config.StorageConfig {
	t.Helper()
	cfg := config.DefaultConfig().Storage
	dir := t.TempDir()
	cfg.Path = filepath.Join(dir, "store.db")
	cfg.FallbackPath = filepath.Join(dir, "fallback.db")
	cfg.RetryDelay = time.Millisecond
	cfg.OpenTimeout = 50 * time.Millisecond
	return cfg
}

func openPrimary(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	s, err := Open(context.Background(), testConfig(t), PortalSchema(), opts...)
	require.NoError(t, err)
	require.Equal(t, ModePrimary, s.Mode())
	t.Cleanup(func() { s.Close() })
	return s
}

func openFallback(t *testing.T, opts ...Option) *Store {
	t.Helper()
	cfg := testConfig(t)
	cfg.Engine = "fallback"
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	s, err := Open(context.Background(), cfg, PortalSchema(), opts...)
	require.NoError(t, err)
	require.Equal(t, ModeFallback, s.Mode())
	t.Cleanup(func() { s.Close() })
	return s
}

// bothEngines runs fn against a primary and a fallback store.
func bothEngines(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Run("primary", func(t *testing.T) { fn(t, openPrimary(t)) })
	t.Run("fallback", func(t *testing.T) { fn(t, openFallback(t)) })
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestStore_CRUD(t *testing.T) {
	bothEngines(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		key, err := s.Add(ctx, TableNotes, domain.Record{"id": "n1", "chapter": "xss", "text": "escape output"})
		require.NoError(t, err)
		assert.Equal(t, "n1", key)

		rec, err := s.Get(ctx, TableNotes, "n1")
		require.NoError(t, err)
		assert.Equal(t, "escape output", rec["text"])
		assert.NotEmpty(t, rec[domain.FieldCreatedAt])
		assert.NotEmpty(t, rec[domain.FieldUpdatedAt])

		_, err = s.Add(ctx, TableNotes, domain.Record{"id": "n1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrConstraint)

		require.NoError(t, s.Delete(ctx, TableNotes, "n1"))
		_, err = s.Get(ctx, TableNotes, "n1")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// deleting again is a no-op
		require.NoError(t, s.Delete(ctx, TableNotes, "n1"))
	})
}

func TestStore_UnknownTable(t *testing.T) {
	s := openFallback(t)

	_, err := s.Add(context.Background(), "nope", domain.Record{"id": 1})
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "nope", se.Table)
	assert.ErrorIs(t, err, domain.ErrUnknownTable)
}

func TestStore_UpdateIsIdempotent(t *testing.T) {
	bothEngines(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		rec := domain.Record{"chapter": "sqli", "percent": 40}

		_, err := s.Update(ctx, TableProgress, rec)
		require.NoError(t, err)
		first, err := s.Get(ctx, TableProgress, "sqli")
		require.NoError(t, err)

		_, err = s.Update(ctx, TableProgress, rec)
		require.NoError(t, err)

		n, err := s.Count(ctx, TableProgress)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		second, err := s.Get(ctx, TableProgress, "sqli")
		require.NoError(t, err)
		assert.EqualValues(t, 40, second["percent"])
		assert.Equal(t, first["chapter"], second["chapter"])
	})
}

func TestStore_UpdateKeepsCreatedAt(t *testing.T) {
	clock := &fixedClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := openPrimary(t, WithClock(clock.now))
	ctx := context.Background()

	_, err := s.Add(ctx, TableNotes, domain.Record{"id": "n1"})
	require.NoError(t, err)
	rec, err := s.Get(ctx, TableNotes, "n1")
	require.NoError(t, err)

	clock.advance(time.Hour)
	rec["text"] = "edited"
	_, err = s.Update(ctx, TableNotes, rec)
	require.NoError(t, err)

	got, err := s.Get(ctx, TableNotes, "n1")
	require.NoError(t, err)
	created, _ := got.Time(domain.FieldCreatedAt)
	updated, _ := got.Time(domain.FieldUpdatedAt)
	assert.True(t, created.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.True(t, updated.Equal(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)))
}

func TestStore_BulkAddIsAtomicOnPrimary(t *testing.T) {
	s := openPrimary(t)
	ctx := context.Background()
	require.True(t, s.Atomic())

	_, err := s.BulkAdd(ctx, TableNotes, []domain.Record{
		{"id": "a"}, {"id": "b"}, {"id": "a"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConstraint)

	n, err := s.Count(ctx, TableNotes)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	keys, err := s.BulkAdd(ctx, TableNotes, []domain.Record{{"id": "a"}, {"id": "b"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, keys)
}

func TestStore_BulkAddIsPartialOnFallback(t *testing.T) {
	s := openFallback(t)
	ctx := context.Background()
	require.False(t, s.Atomic())

	keys, err := s.BulkAdd(ctx, TableNotes, []domain.Record{
		{"id": "a"}, {"id": "b"}, {"id": "a"},
	})
	require.Error(t, err)
	assert.Equal(t, []any{"a", "b"}, keys)

	n, err := s.Count(ctx, TableNotes)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_QueryCacheInvalidatedByWrites(t *testing.T) {
	bothEngines(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		_, err := s.BulkAdd(ctx, TableNotes, []domain.Record{
			{"id": "n1", "chapter": "xss"},
			{"id": "n2", "chapter": "csrf"},
		})
		require.NoError(t, err)

		recs, err := s.Query(ctx, TableNotes, "chapter", "xss")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, 1, s.CacheSize())

		_, err = s.Add(ctx, TableNotes, domain.Record{"id": "n3", "chapter": "xss"})
		require.NoError(t, err)
		assert.Equal(t, 0, s.CacheSize())

		recs, err = s.Query(ctx, TableNotes, "chapter", "xss")
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})
}

func TestStore_QueryResultsAreOwnedByCaller(t *testing.T) {
	bothEngines(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		_, err := s.Add(ctx, TableNotes, domain.Record{"id": "n1", "chapter": "xss", "text": "original"})
		require.NoError(t, err)

		recs, err := s.Query(ctx, TableNotes, "chapter", "xss")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		recs[0]["text"] = "changed by caller"
		recs[0]["chapter"] = "other"

		recs, err = s.Query(ctx, TableNotes, "chapter", "xss")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "original", recs[0]["text"])
		assert.Equal(t, "xss", recs[0]["chapter"])
		recs[0]["text"] = "changed again"

		recs, err = s.Query(ctx, TableNotes, "chapter", "xss")
		require.NoError(t, err)
		assert.Equal(t, "original", recs[0]["text"])
	})
}

// racingStore adds a note to the store right after serving a query, as a
// concurrent writer would.
type racingStore struct {
	port.RecordStore
	store *Store
	once  bool
}

func (r *racingStore) Query(ctx context.Context, table, index string, rng domain.Range) ([]domain.Record, error) {
	recs, err := r.RecordStore.Query(ctx, table, index, rng)
	if err == nil && !r.once {
		r.once = true
		if _, err := r.store.Add(ctx, table, domain.Record{"id": "late", "chapter": "xss"}); err != nil {
			return nil, err
		}
	}
	return recs, err
}

func TestStore_QueryDoesNotCacheResultOutdatedByWrite(t *testing.T) {
	fs := kvstore.NewFallbackStore(memstore.NewMemoryKV(), "cb.")
	schema := PortalSchema()
	require.NoError(t, fs.Migrate(context.Background(), schema.WithSyncQueue()))

	racing := &racingStore{RecordStore: fs}
	s := New(racing, ModeFallback, testConfig(t), schema, WithLogger(logging.Discard()))
	racing.store = s
	ctx := context.Background()

	_, err := s.Add(ctx, TableNotes, domain.Record{"id": "n1", "chapter": "xss"})
	require.NoError(t, err)

	recs, err := s.Query(ctx, TableNotes, "chapter", "xss")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 0, s.CacheSize())

	recs, err = s.Query(ctx, TableNotes, "chapter", "xss")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestStore_WritesToOtherTablesKeepCache(t *testing.T) {
	s := openPrimary(t)
	ctx := context.Background()

	_, err := s.Add(ctx, TableNotes, domain.Record{"id": "n1", "chapter": "xss"})
	require.NoError(t, err)
	_, err = s.Query(ctx, TableNotes, "chapter", "xss")
	require.NoError(t, err)

	_, err = s.Update(ctx, TableSettings, domain.Record{"key": "theme", "value": "dark"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.CacheSize())
}

func TestStore_QueryRange(t *testing.T) {
	s := openPrimary(t)
	ctx := context.Background()

	for _, ch := range []string{"a", "b", "c", "d"} {
		_, err := s.Add(ctx, TableBookmarks, domain.Record{"chapter": ch, "anchor": "#" + ch})
		require.NoError(t, err)
	}

	recs, err := s.QueryRange(ctx, TableBookmarks, "chapter", domain.Between("b", "c"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0]["chapter"])
	assert.Equal(t, "c", recs[1]["chapter"])
}

func TestStore_Filter(t *testing.T) {
	s := openFallback(t)
	ctx := context.Background()

	_, err := s.BulkUpdate(ctx, TableProgress, []domain.Record{
		{"chapter": "a", "percent": 100},
		{"chapter": "b", "percent": 20},
		{"chapter": "c", "percent": 100},
	})
	require.NoError(t, err)

	done, err := s.Filter(ctx, TableProgress, func(r domain.Record) bool {
		return toInt(r["percent"]) == 100
	})
	require.NoError(t, err)
	assert.Len(t, done, 2)
}

func TestStore_CleanOldData(t *testing.T) {
	bothEngines(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		clock := &fixedClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		s.now = clock.now

		_, err := s.Add(ctx, TableNotes, domain.Record{"id": "old"})
		require.NoError(t, err)
		clock.advance(time.Second)
		_, err = s.Add(ctx, TableNotes, domain.Record{"id": "boundary"})
		require.NoError(t, err)
		clock.advance(10 * 24 * time.Hour)
		_, err = s.Add(ctx, TableNotes, domain.Record{"id": "fresh"})
		require.NoError(t, err)

		// threshold lands exactly on "boundary"
		clock.t = time.Date(2024, 1, 31, 0, 0, 1, 0, time.UTC)
		removed, err := s.CleanOldData(ctx, TableNotes, 30)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = s.Get(ctx, TableNotes, "old")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Get(ctx, TableNotes, "boundary")
		assert.NoError(t, err)
		_, err = s.Get(ctx, TableNotes, "fresh")
		assert.NoError(t, err)

		removed, err = s.CleanOldData(ctx, TableNotes, 30)
		require.NoError(t, err)
		assert.Equal(t, 0, removed)
	})
}

func TestStore_CleanOldDataZeroDaysRemovesEverything(t *testing.T) {
	clock := &fixedClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	s := openPrimary(t, WithClock(clock.now))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Add(ctx, TableNotes, domain.Record{"id": id})
		require.NoError(t, err)
		clock.advance(time.Minute)
	}

	removed, err := s.CleanOldData(ctx, TableNotes, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	n, err := s.Count(ctx, TableNotes)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	src := openPrimary(t)
	ctx := context.Background()

	_, err := src.Add(ctx, TableNotes, domain.Record{"id": "n1", "chapter": "xss", "text": "hello"})
	require.NoError(t, err)
	_, err = src.Add(ctx, TableBookmarks, domain.Record{"chapter": "xss", "anchor": "#intro"})
	require.NoError(t, err)
	_, err = src.Update(ctx, TableSettings, domain.Record{"key": "theme", "value": "dark"})
	require.NoError(t, err)

	dump, err := src.ExportData(ctx)
	require.NoError(t, err)
	assert.Equal(t, PortalSchemaVersion, dump.Version)
	assert.Contains(t, dump.Tables, domain.SyncQueueTable)
	require.Len(t, dump.Tables[TableNotes], 1)

	dst := openFallback(t)
	_, err = dst.Add(ctx, TableNotes, domain.Record{"id": "stale"})
	require.NoError(t, err)

	require.NoError(t, dst.ImportData(ctx, dump))

	notes, err := dst.GetAll(ctx, TableNotes, domain.ListOptions{})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "hello", notes[0]["text"])
	assert.Equal(t, dump.Tables[TableNotes][0][domain.FieldUpdatedAt], notes[0][domain.FieldUpdatedAt])

	bms, err := dst.Query(ctx, TableBookmarks, "anchor", "#intro")
	require.NoError(t, err)
	assert.Len(t, bms, 1)
}

func TestStore_ImportRejectsUnknownTable(t *testing.T) {
	s := openFallback(t)
	ctx := context.Background()
	_, err := s.Add(ctx, TableNotes, domain.Record{"id": "keep"})
	require.NoError(t, err)

	err = s.ImportData(ctx, &Export{Tables: map[string][]domain.Record{"bogus": {}}})
	require.ErrorIs(t, err, domain.ErrUnknownTable)

	n, err := s.Count(ctx, TableNotes)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_SyncQueue(t *testing.T) {
	bothEngines(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		require.NoError(t, s.MarkForSync(ctx, TableNotes, "n1"))
		require.NoError(t, s.MarkForSync(ctx, TableProgress, "xss"))

		q, err := s.GetSyncQueue(ctx)
		require.NoError(t, err)
		require.Len(t, q, 2)
		assert.Equal(t, TableNotes, q[0].Store)
		assert.Equal(t, "n1", q[0].Key)
		assert.Equal(t, TableProgress, q[1].Store)
		assert.NotEmpty(t, q[1].Timestamp)

		require.NoError(t, s.ClearSyncQueue(ctx))
		q, err = s.GetSyncQueue(ctx)
		require.NoError(t, err)
		assert.Empty(t, q)
	})
}

func TestStore_BumpStat(t *testing.T) {
	bothEngines(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		v, err := s.BumpStat(ctx, "chapters_read", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
		v, err = s.BumpStat(ctx, "chapters_read", 2)
		require.NoError(t, err)
		assert.Equal(t, 3, v)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"chapters_read": 3}, stats)
	})
}

func TestStore_CompactDatabase(t *testing.T) {
	s := openPrimary(t)
	ctx := context.Background()

	_, err := s.Add(ctx, TableNotes, domain.Record{"id": "n1", "chapter": "xss"})
	require.NoError(t, err)
	_, err = s.Query(ctx, TableNotes, "chapter", "xss")
	require.NoError(t, err)

	require.NoError(t, s.CompactDatabase(ctx))
	assert.Equal(t, 0, s.CacheSize())

	rec, err := s.Get(ctx, TableNotes, "n1")
	require.NoError(t, err)
	assert.Equal(t, "xss", rec["chapter"])
}

func TestOpen_FallsBackWhenPrimaryIsLocked(t *testing.T) {
	cfg := testConfig(t)
	holder, err := store.NewBoltStore(cfg.Path, store.Options{Timeout: time.Second})
	require.NoError(t, err)
	defer holder.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s, err := Open(context.Background(), cfg, PortalSchema(), WithLogger(logger))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, ModeFallback, s.Mode())
	assert.Equal(t, 1, strings.Count(buf.String(), "primary storage unavailable"))

	// the caller sees the same surface
	ctx := context.Background()
	_, err = s.Add(ctx, TableNotes, domain.Record{"id": "n1", "chapter": "xss"})
	require.NoError(t, err)
	recs, err := s.Query(ctx, TableNotes, "chapter", "xss")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestOpen_SqliteFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine = "fallback"
	cfg.Fallback = "sqlite"
	ctx := context.Background()

	s, err := Open(ctx, cfg, PortalSchema(), WithLogger(logging.Discard()))
	require.NoError(t, err)
	_, err = s.Update(ctx, TableSettings, domain.Record{"key": "theme", "value": "dark"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, cfg, PortalSchema(), WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.Get(ctx, TableSettings, "theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", rec["value"])
}

func TestOpen_MigratesFromV1(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	v1, err := Open(ctx, cfg, PortalSchemaV1(), WithLogger(logging.Discard()))
	require.NoError(t, err)
	_, err = v1.Add(ctx, TableNotes, domain.Record{"id": "n1", "chapter": "xss"})
	require.NoError(t, err)
	require.NoError(t, v1.Close())

	v2, err := Open(ctx, cfg, PortalSchema(), WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer v2.Close()
	require.Equal(t, ModePrimary, v2.Mode())

	recs, err := v2.Query(ctx, TableNotes, "chapter", "xss")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = v2.Add(ctx, TableBookmarks, domain.Record{"chapter": "xss", "anchor": "#a"})
	require.NoError(t, err)
}

// flakyStore fails Add with a transient error a fixed number of times.
type flakyStore struct {
	port.RecordStore
	failures int32
	calls    atomic.Int32
}

var errTransient = errors.New("database is busy")

func (f *flakyStore) Add(ctx context.Context, table string, rec domain.Record) (any, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, errTransient
	}
	return f.RecordStore.Add(ctx, table, rec)
}

func newFlaky(t *testing.T, failures int32) (*Store, *flakyStore) {
	t.Helper()
	fs := kvstore.NewFallbackStore(memstore.NewMemoryKV(), "cb.")
	schema := PortalSchema()
	require.NoError(t, fs.Migrate(context.Background(), schema.WithSyncQueue()))

	flaky := &flakyStore{RecordStore: fs, failures: failures}
	cfg := testConfig(t)
	return New(flaky, ModePrimary, cfg, schema, WithLogger(logging.Discard())), flaky
}

func TestStore_RetriesTransientFailures(t *testing.T) {
	s, flaky := newFlaky(t, 2)

	_, err := s.Add(context.Background(), TableNotes, domain.Record{"id": "n1"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, flaky.calls.Load())
}

func TestStore_GivesUpAfterRetryAttempts(t *testing.T) {
	s, flaky := newFlaky(t, 10)

	_, err := s.Add(context.Background(), TableNotes, domain.Record{"id": "n1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "add", se.Op)
	assert.EqualValues(t, 3, flaky.calls.Load())
}

func TestStore_DoesNotRetryPermanentErrors(t *testing.T) {
	s, flaky := newFlaky(t, 0)
	ctx := context.Background()

	_, err := s.Add(ctx, TableNotes, domain.Record{"id": "n1"})
	require.NoError(t, err)
	_, err = s.Add(ctx, TableNotes, domain.Record{"id": "n1"})
	require.ErrorIs(t, err, domain.ErrConstraint)
	assert.EqualValues(t, 2, flaky.calls.Load())
}
