package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantryscan/scan-service/internal/barcode"
	"github.com/pantryscan/scan-service/internal/product"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreEmpty(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	entries, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	snap, err := store.LoadMostRecent(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSQLiteStoreHistoryRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Persist(ctx, testEntries()))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, testEntries(), loaded, "position column must preserve order")

	// Replace with a reordered, shorter history.
	reordered := []product.HistoryEntry{testEntries()[1]}
	require.NoError(t, store.Persist(ctx, reordered))

	loaded, err = store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, reordered, loaded)
}

func TestSQLiteStoreMostRecentUpsert(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	first := &product.Snapshot{Barcode: barcode.New("3850012345678", barcode.Food), Name: "First"}
	second := &product.Snapshot{Barcode: barcode.New("1234567890128", barcode.Food), Name: "Second"}

	require.NoError(t, store.SaveMostRecent(ctx, first))
	require.NoError(t, store.SaveMostRecent(ctx, second))

	loaded, err := store.LoadMostRecent(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Second", loaded.Name, "a later save replaces the cached snapshot")

	require.NoError(t, store.SaveMostRecent(ctx, nil))
	loaded, err = store.LoadMostRecent(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
