package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	getHeaders := func() *Storage {
		return New().
			Add("Foo", "bar").
			Add("Hello", "World").
			Add("Lorem", "ipsum").
			Add("hello", "Pavlo")
	}

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		kv := getHeaders()
		require.Equal(t, "World", kv.Value("HELLO"))
		require.Equal(t, "bar", kv.Value("foo"))
		require.True(t, kv.Has("LOREM"))
		require.False(t, kv.Has("missing"))
	})

	t.Run("value or fallback", func(t *testing.T) {
		kv := getHeaders()
		require.Equal(t, "ipsum", kv.ValueOr("lorem", "default"))
		require.Equal(t, "default", kv.ValueOr("missing", "default"))
	})

	t.Run("values collects duplicates in order", func(t *testing.T) {
		kv := getHeaders()
		require.Equal(t, []string{"World", "Pavlo"}, kv.Values("Hello"))
		require.Nil(t, kv.Values("missing"))
	})

	t.Run("keys deduplicate case-insensitively", func(t *testing.T) {
		require.Equal(t, []string{"Foo", "Hello", "Lorem"}, getHeaders().Keys())
	})

	t.Run("iter preserves insertion order", func(t *testing.T) {
		var got []Pair
		for key, value := range getHeaders().Iter() {
			got = append(got, Pair{key, value})
		}

		require.Equal(t, []Pair{
			{"Foo", "bar"},
			{"Hello", "World"},
			{"Lorem", "ipsum"},
			{"hello", "Pavlo"},
		}, got)
	})

	t.Run("clone survives clear", func(t *testing.T) {
		kv := getHeaders()
		cloned := kv.Clone()
		kv.Clear()

		require.True(t, kv.Empty())
		require.Equal(t, 4, cloned.Len())
		require.Equal(t, "World", cloned.Value("hello"))
	})

	t.Run("clear keeps the storage usable", func(t *testing.T) {
		kv := getHeaders().Clear().Add("Connection", "close")
		require.Equal(t, 1, kv.Len())
		require.Equal(t, "close", kv.Value("connection"))
	})
}
