package history

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pantryscan/scan-service/internal/barcode"
	"github.com/pantryscan/scan-service/internal/product"
)

// setupTestDB creates a test PostgreSQL database using testcontainers.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start postgres container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err, "Failed to create connection pool")

	t.Cleanup(func() {
		pool.Close()
		testcontainers.TerminateContainer(container)
	})
	return pool
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	store := NewPostgresStore(pool, "device-a")
	require.NoError(t, store.EnsureSchema(ctx))

	entries, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, store.Persist(ctx, testEntries()))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, testEntries(), loaded)

	snap := &product.Snapshot{Barcode: barcode.New("3850012345678", barcode.Food), Name: "Ajvar"}
	require.NoError(t, store.SaveMostRecent(ctx, snap))

	cached, err := store.LoadMostRecent(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Ajvar", cached.Name)
	assert.True(t, cached.Barcode.Equal(snap.Barcode))
}

func TestPostgresStoreIsolatesDevices(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	storeA := NewPostgresStore(pool, "device-a")
	require.NoError(t, storeA.EnsureSchema(ctx))
	storeB := NewPostgresStore(pool, "device-b")

	require.NoError(t, storeA.Persist(ctx, testEntries()))
	require.NoError(t, storeB.Persist(ctx, testEntries()[:1]))

	loadedA, err := storeA.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, loadedA, 2)

	loadedB, err := storeB.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, loadedB, 1)

	snapB, err := storeB.LoadMostRecent(ctx)
	require.NoError(t, err)
	assert.Nil(t, snapB, "device B never cached a snapshot")
}
