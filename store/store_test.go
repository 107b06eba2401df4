package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrikhermansson/redis-hnsw/store"
)

func backends(t *testing.T) map[string]func() store.Store {
	return map[string]func() store.Store{
		"memory": func() store.Store { return store.NewMemoryStore() },
		"pebble": func() store.Store {
			s, err := store.OpenPebble(filepath.Join(t.TempDir(), "db"), store.PebbleOptions{CacheSize: 1 << 20})
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_BasicOperations(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			v, err := s.Get("missing")
			require.NoError(t, err)
			assert.Nil(t, v)

			ok, err := s.Exists("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Put("k", []byte("v1")))
			v, err = s.Get("k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), v)

			ok, err = s.Exists("k")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, s.Delete("k"))
			v, err = s.Get("k")
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}

func TestStore_BatchWrite(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()
			require.NoError(t, s.Put("old", []byte("x")))

			b := store.NewBatch()
			b.Put("a", []byte("1"))
			b.Put("b", []byte("2"))
			b.Delete("old")
			assert.Equal(t, 3, b.Len())
			require.NoError(t, s.Write(b))

			for k, want := range map[string][]byte{"a": []byte("1"), "b": []byte("2")} {
				got, err := s.Get(k)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
			ok, err := s.Exists("old")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := store.NewMemoryStore()
	buf := []byte("abc")
	require.NoError(t, s.Put("k", buf))
	buf[0] = 'z'
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	got[1] = 'z'
	again, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestStore_Closed(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.Close())
	_, err := s.Get("k")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.ErrorIs(t, s.Put("k", nil), store.ErrClosed)

	p, err := store.OpenPebble(t.TempDir(), store.PebbleOptions{})
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, err = p.Get("k")
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestPebbleStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := store.OpenPebble(dir, store.PebbleOptions{Sync: true})
	require.NoError(t, err)
	require.NoError(t, s.Put(store.IndexKey("songs"), []byte("record")))
	require.NoError(t, s.Close())

	s, err = store.OpenPebble(dir, store.PebbleOptions{})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get("hnsw.songs")
	require.NoError(t, err)
	assert.Equal(t, []byte("record"), got)
}
