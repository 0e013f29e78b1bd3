package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	dir := t.TempDir()
	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "state.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(dir, "nested", "timestamp")),
		"sqlite": sqliteStore,
	}
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Load(ctx)
			require.NoError(t, err)
			assert.False(t, ok, "fresh store should be unset")

			require.NoError(t, s.Save(ctx, 100))
			ts, ok, err := s.Load(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(100), ts)

			require.NoError(t, s.Save(ctx, 150))
			ts, _, err = s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(150), ts)

			require.NoError(t, s.Reset(ctx))
			_, ok, err = s.Load(ctx)
			require.NoError(t, err)
			assert.False(t, ok, "reset store should be unset")

			// Resetting twice is fine.
			require.NoError(t, s.Reset(ctx))
		})
	}
}

func TestFileStore_CorruptValueIsUnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timestamp")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number"), 0644))

	_, ok, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timestamp")
	ctx := context.Background()

	require.NoError(t, NewFileStore(path).Save(ctx, 1700000000))

	ts, ok, err := NewFileStore(path).Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), ts)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", string(data))
}

func TestSQLiteStore_KeysAreIndependent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	a, err := NewSQLiteStore(path, "tab-a")
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Save(ctx, 10))

	b, err := NewSQLiteStore(path, "tab-b")
	require.NoError(t, err)
	defer b.Close()

	_, ok, err := b.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ts, ok, err := a.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(10), ts)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", "")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, 7))
	ts, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), ts)
}
