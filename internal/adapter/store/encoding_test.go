package store

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValue_PreservesOrder(t *testing.T) {
	ordered := []any{false, true, -1e9, -2.5, -1, 0, 0.5, 1, 42, 1e12, "", "a", "a\x00", "ab", "b", "z"}

	encoded := make([][]byte, len(ordered))
	for i, v := range ordered {
		enc, ok := encodeValue(v)
		require.True(t, ok, "value %v should be indexable", v)
		encoded[i] = enc
	}

	shuffled := make([][]byte, len(encoded))
	copy(shuffled, encoded)
	sort.Slice(shuffled, func(i, j int) bool {
		return bytes.Compare(shuffled[i], shuffled[j]) < 0
	})
	assert.Equal(t, encoded, shuffled)
}

func TestDecodeValue_RoundTrip(t *testing.T) {
	for _, v := range []any{true, false, -3.25, 0.0, 7.0, "owasp", "nul\x00byte", ""} {
		enc, ok := encodeValue(v)
		require.True(t, ok)

		got, rest, err := decodeValue(indexKey(enc, "s:pk"))
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, "s:pk", string(rest))
	}
}

func TestEncodeValue_RejectsComposite(t *testing.T) {
	_, ok := encodeValue([]any{"a"})
	assert.False(t, ok)
	_, ok = encodeValue(map[string]any{"a": 1})
	assert.False(t, ok)
	_, ok = encodeValue(nil)
	assert.False(t, ok)
}

func TestEncodeValue_StringPrefixIsolation(t *testing.T) {
	a, _ := encodeValue("ab")
	abc, _ := encodeValue("abc")
	assert.False(t, bytes.HasPrefix(abc, a), "encoded \"ab\" must not prefix \"abc\"")
}
