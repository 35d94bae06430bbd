package kv

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   bolt,
	}
}

func TestStore_SetGetRemove(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get("missing")
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, s.Set("b", []byte("two")))
			require.NoError(t, s.Set("a", []byte("one")))

			v, err := s.Get("a")
			require.NoError(t, err)
			assert.Equal(t, "one", string(v))

			keys, err := s.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, keys)

			require.NoError(t, s.Remove("a"))
			require.NoError(t, s.Remove("a"))
			_, err = s.Get("a")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestOpenBolt_EmptyPath(t *testing.T) {
	_, err := OpenBolt("  ")
	assert.Error(t, err)
}

func TestMemoryStore_Quota(t *testing.T) {
	m := NewMemoryStore()
	m.Quota = 10

	require.NoError(t, m.Set("k", []byte("12345")))
	assert.ErrorIs(t, m.Set("k2", []byte("123456")), ErrQuotaExceeded)
	// Replacing a value only counts the difference.
	require.NoError(t, m.Set("k", []byte("123456789")))
}

func TestHub_BroadcastSkipsWriter(t *testing.T) {
	hub := NewHub(NewMemoryStore(), nil)
	first := hub.Open()
	second := hub.Open()

	var firstSaw, secondSaw []Change
	first.Watch(func(c Change) { firstSaw = append(firstSaw, c) })
	second.Watch(func(c Change) { secondSaw = append(secondSaw, c) })

	require.NoError(t, first.Set("doc", []byte("v1")))
	require.NoError(t, second.Remove("doc"))

	require.Len(t, secondSaw, 1)
	assert.Equal(t, Change{Key: "doc", Value: []byte("v1")}, secondSaw[0])
	require.Len(t, firstSaw, 1)
	assert.Equal(t, "doc", firstSaw[0].Key)
	assert.Nil(t, firstSaw[0].Value)
}

func TestHub_PanickingWatcherIsolated(t *testing.T) {
	hub := NewHub(NewMemoryStore(), nil)
	writer := hub.Open()
	a := hub.Open()
	b := hub.Open()

	a.Watch(func(Change) { panic("boom") })
	called := false
	b.Watch(func(Change) { called = true })

	require.NoError(t, writer.Set("k", []byte("v")))
	assert.True(t, called)
}

func TestHub_Unwatch(t *testing.T) {
	hub := NewHub(NewMemoryStore(), nil)
	writer := hub.Open()
	reader := hub.Open()

	n := 0
	stop := reader.Watch(func(Change) { n++ })
	require.NoError(t, writer.Set("k", []byte("1")))
	stop()
	require.NoError(t, writer.Set("k", []byte("2")))
	assert.Equal(t, 1, n)
}
