package kvstore

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberbook/internal/adapter/memstore"
	"cyberbook/internal/domain"
)

var testSchema = domain.Schema{
	Version: 2,
	Tables: []domain.TableSchema{
		{Name: "notes", KeyPath: "id", Indexes: []domain.IndexSchema{{Field: "chapter"}}},
		{Name: "bookmarks", KeyPath: "id", AutoIncrement: true, Indexes: []domain.IndexSchema{{Field: "anchor", Unique: true}}},
	},
}

func newStore(t *testing.T) (*FallbackStore, *memstore.MemoryKV) {
	t.Helper()
	kv := memstore.NewMemoryKV()
	s := NewFallbackStore(kv, "cb.")
	require.NoError(t, s.Migrate(context.Background(), testSchema))
	return s, kv
}

func TestFallbackStore_PrefixesPhysicalKeys(t *testing.T) {
	ctx := context.Background()
	s, kv := newStore(t)

	_, err := s.Add(ctx, "notes", domain.Record{"id": "n1"})
	require.NoError(t, err)

	keys, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "cb.notes/s:n1", keys[0])
	assert.Equal(t, keys[0], s.PhysicalKey("notes", "n1"))
}

func TestFallbackStore_CRUDSequence(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	for i := 1; i <= 3; i++ {
		_, err := s.Add(ctx, "notes", domain.Record{"id": fmt.Sprintf("n%d", i)})
		require.NoError(t, err)
	}
	all, err := s.GetAll(ctx, "notes", domain.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.Delete(ctx, "notes", "n2"))
	all, err = s.GetAll(ctx, "notes", domain.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.Clear(ctx, "notes"))
	all, err = s.GetAll(ctx, "notes", domain.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = s.Get(ctx, "notes", "n1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFallbackStore_AutoKeysAreTimeOrdered(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	k1, err := s.Add(ctx, "bookmarks", domain.Record{"anchor": "a"})
	require.NoError(t, err)
	k2, err := s.Add(ctx, "bookmarks", domain.Record{"anchor": "b"})
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.Less(t, k1.(string), k2.(string))
}

func TestFallbackStore_AddCollision(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.newKey = func() (string, error) { return "fixed", nil }

	_, err := s.Add(ctx, "bookmarks", domain.Record{"anchor": "a"})
	require.NoError(t, err)
	_, err = s.Add(ctx, "bookmarks", domain.Record{"anchor": "b"})
	assert.ErrorIs(t, err, domain.ErrConstraint)
}

func TestFallbackStore_BulkIsNotAtomic(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	_, err := s.Add(ctx, "notes", domain.Record{"id": "taken"})
	require.NoError(t, err)

	keys, err := s.BulkAdd(ctx, "notes", []domain.Record{
		{"id": "fresh"},
		{"id": "taken"},
		{"id": "never"},
	})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "item 1:"))
	assert.Equal(t, []any{"fresh"}, keys)

	n, err := s.Count(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, s.Atomic())
}

func TestFallbackStore_Query(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	_, err := s.BulkPut(ctx, "notes", []domain.Record{
		{"id": "a", "chapter": "xss"},
		{"id": "b", "chapter": "sqli"},
		{"id": "c", "chapter": "xss"},
		{"id": "d"},
	})
	require.NoError(t, err)

	hits, err := s.Query(ctx, "notes", "chapter", domain.Only("xss"))
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0]["id"])
	assert.Equal(t, "c", hits[1]["id"])

	hits, err = s.Query(ctx, "notes", "chapter", domain.AtLeast("a"))
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "sqli", hits[0]["chapter"])

	_, err = s.Query(ctx, "notes", "text", domain.Only("x"))
	assert.ErrorIs(t, err, domain.ErrUnknownIndex)
}

func TestFallbackStore_Tables(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	_, err := s.Put(ctx, "notes", domain.Record{"id": "a"})
	require.NoError(t, err)
	_, err = s.Put(ctx, "bookmarks", domain.Record{"anchor": "x"})
	require.NoError(t, err)

	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"notes", "bookmarks"}, tables)
}

func TestFallbackStore_UnknownTable(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Put(context.Background(), "nope", domain.Record{"id": "a"})
	assert.ErrorIs(t, err, domain.ErrUnknownTable)
}
