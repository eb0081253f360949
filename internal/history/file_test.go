package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantryscan/scan-service/internal/barcode"
	"github.com/pantryscan/scan-service/internal/product"
)

func testEntries() []product.HistoryEntry {
	return []product.HistoryEntry{
		{Barcode: "3850012345678", Category: barcode.Food, Comment: "buy again"},
		{Barcode: "1234567890128", Category: barcode.Beauty},
	}
}

func TestFileStoreEmptyOnMissingFiles(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	entries, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	snap, err := store.LoadMostRecent(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestFileStoreHistoryRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Persist(ctx, testEntries()))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, testEntries(), loaded, "order and comments must survive")

	// A later persist replaces, never appends.
	require.NoError(t, store.Persist(ctx, nil))
	loaded, err = store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStoreMostRecentRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	snap := &product.Snapshot{
		Barcode:         barcode.New("3850012345678", barcode.Food),
		Name:            "Ajvar",
		Allergens:       []string{"en:peppers"},
		PrimaryLanguage: "hr",
	}
	require.NoError(t, store.SaveMostRecent(ctx, snap))

	loaded, err := store.LoadMostRecent(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Barcode.Equal(snap.Barcode))
	assert.Equal(t, barcode.Food, loaded.Barcode.Category())
	assert.Equal(t, "Ajvar", loaded.Name)
	assert.Equal(t, []string{"en:peppers"}, loaded.Allergens)

	// Saving nil clears the cache.
	require.NoError(t, store.SaveMostRecent(ctx, nil))
	loaded, err = store.LoadMostRecent(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStoreWritesAreAtomic(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Persist(context.Background(), testEntries()))

	// No temp file may survive a completed write.
	_, err = os.Stat(filepath.Join(dir, "history.json.tmp"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "history.json"))
	assert.NoError(t, err)
}
