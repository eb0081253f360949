package product

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantryscan/scan-service/internal/barcode"
)

// fakeStore is an in-memory HistoryStore.
type fakeStore struct {
	mu         sync.Mutex
	entries    []HistoryEntry
	mostRecent *Snapshot
}

func (s *fakeStore) LoadAll(ctx context.Context) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *fakeStore) Persist(ctx context.Context, entries []HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	return nil
}

func (s *fakeStore) LoadMostRecent(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mostRecent, nil
}

func (s *fakeStore) SaveMostRecent(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mostRecent = snap
	return nil
}

func (s *fakeStore) persisted() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func newTestCollection(t *testing.T, fetcher Fetcher, store HistoryStore) *Collection {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewCollection(ctx, Config{
		Fetcher: fetcher,
		History: store,
	})
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.block(testCode)
	c := newTestCollection(t, fetcher, nil)

	sub := c.Subscribe()
	defer sub.Close()

	pos := c.FindOrCreate(testID())
	assert.Equal(t, 0, pos)
	assert.Equal(t, 1, c.Size())

	// Same identifier in a different category is still the same record.
	again := c.FindOrCreate(barcode.New(testCode, barcode.Beauty))
	assert.Equal(t, 0, again)
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, 1, fetcher.callCount(testCode), "only the insert starts a fetch")

	events := drainEvents(sub)
	assert.Equal(t, 1, countKind(events, EventListExtended), "one insert, one event")
}

func TestInsertEvictsLoneSample(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.block(testCode)
	c := newTestCollection(t, fetcher, nil)

	require.NoError(t, c.LoadHistory(context.Background()))
	require.Equal(t, 1, c.Size())
	require.True(t, c.RecordAt(0).Identifier().IsSample())

	c.FindOrCreate(testID())

	assert.Equal(t, 1, c.Size(), "the sample gives way to the first real product")
	assert.True(t, c.RecordAt(0).Identifier().Equal(testID()))
	assert.Equal(t, 0, fetcher.callCount("sample"), "the sample is never fetched")
}

func TestNewRecordsInsertAtTheTop(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.gate = make(chan struct{})
	c := newTestCollection(t, fetcher, nil)

	first := barcode.New("1001", barcode.Food)
	second := barcode.New("1002", barcode.Food)
	c.FindOrCreate(first)
	c.FindOrCreate(second)

	require.Equal(t, 2, c.Size())
	assert.True(t, c.RecordAt(0).Identifier().Equal(second), "most recent first")
	assert.True(t, c.RecordAt(1).Identifier().Equal(first))
}

func TestVisibleFiltersResolvedOtherCategories(t *testing.T) {
	loadingID := barcode.New("4006381333931", barcode.Food)
	foodID := testID()
	beautyID := barcode.New(otherTestCode, barcode.Beauty)

	fetcher := newFakeFetcher()
	fetcher.block(loadingID.String())
	fetcher.serve(&Snapshot{Barcode: foodID, Name: "Bread"})
	fetcher.serve(&Snapshot{Barcode: beautyID, Name: "Soap"})

	c := newTestCollection(t, fetcher, nil)

	c.FindOrCreate(beautyID)
	c.FindOrCreate(foodID)
	c.FindOrCreate(loadingID)

	require.Eventually(t, func() bool {
		return c.RecordFor(beautyID).RemoteStatus().Kind == StatusAvailable &&
			c.RecordFor(foodID).RemoteStatus().Kind == StatusAvailable
	}, time.Second, 5*time.Millisecond)

	visible := c.Visible()
	require.Len(t, visible, 2, "the resolved beauty product drops out of the food view")
	assert.True(t, visible[0].Identifier().Equal(loadingID), "unresolved records stay visible")
	assert.True(t, visible[1].Identifier().Equal(foodID))
	assert.Equal(t, 3, c.Size(), "filtering never drops records from the registry")
}

func TestPrefetchWarmsWindowAroundActivation(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 20; i++ {
		store.entries = append(store.entries, HistoryEntry{
			Barcode:  fmt.Sprintf("10%02d", i),
			Category: barcode.Food,
		})
	}

	fetcher := newFakeFetcher()
	fetcher.gate = make(chan struct{})
	c := newTestCollection(t, fetcher, store)

	require.NoError(t, c.LoadHistory(context.Background()))
	require.Equal(t, 20, c.Size())

	// Loading the history warms the window at the top of the list.
	for i := 0; i <= 4; i++ {
		assert.Equal(t, 1, fetcher.callCount(fmt.Sprintf("10%02d", i)), "entry %d is in the initial window", i)
	}
	assert.Equal(t, 0, fetcher.callCount("1005"))

	c.LookupAndActivate(barcode.New("1010", barcode.Food), false)

	for i := 6; i <= 14; i++ {
		assert.Equal(t, 1, fetcher.callCount(fmt.Sprintf("10%02d", i)), "entry %d is in the activation window", i)
	}
	assert.Equal(t, 0, fetcher.callCount("1005"), "outside both windows")
	assert.Equal(t, 0, fetcher.callCount("1015"), "outside the activation window")
	assert.Equal(t, 1, fetcher.callCount("1004"), "records already loading are skipped")
}

func TestRemoveDetachesInFlightFetch(t *testing.T) {
	fetcher := newFakeFetcher()
	gate := fetcher.block(testCode)
	fetcher.serve(&Snapshot{Barcode: testID(), Name: "Late"})

	c := newTestCollection(t, fetcher, nil)
	c.FindOrCreate(testID())

	rec := c.RecordAt(0)
	require.NotNil(t, rec)
	require.True(t, c.Remove(0))
	assert.Equal(t, 0, c.Size())

	// The in-flight fetch completes against the detached record only.
	close(gate)
	waitForKind(t, rec, StatusAvailable)
	assert.Equal(t, 0, c.Size())
	assert.Nil(t, c.RecordFor(testID()))
}

func TestRemoveOutOfRange(t *testing.T) {
	c := newTestCollection(t, newFakeFetcher(), nil)
	assert.False(t, c.Remove(0))
	assert.False(t, c.Remove(-1))
}

func TestResetAllReseedsSample(t *testing.T) {
	store := &fakeStore{}
	fetcher := newFakeFetcher()
	fetcher.gate = make(chan struct{})
	c := newTestCollection(t, fetcher, store)

	c.FindOrCreate(barcode.New("1001", barcode.Food))
	c.FindOrCreate(barcode.New("1002", barcode.Food))
	require.Equal(t, 2, c.Size())

	c.ResetAll()

	require.Equal(t, 1, c.Size())
	assert.True(t, c.RecordAt(0).Identifier().IsSample())
	assert.Equal(t, "Sample product", c.RecordAt(0).Name())

	require.Eventually(t, func() bool {
		return len(store.persisted()) == 0
	}, time.Second, 5*time.Millisecond, "the cleared history must be persisted")
}

func TestResetAllClearsMostRecent(t *testing.T) {
	store := &fakeStore{}
	fetcher := newFakeFetcher()
	fetcher.serve(&Snapshot{Barcode: testID(), Name: "Bread"})

	c := newTestCollection(t, fetcher, store)
	rec := c.LookupAndActivate(testID(), false)
	waitForKind(t, rec, StatusAvailable)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.mostRecent != nil
	}, time.Second, 5*time.Millisecond)

	c.ResetAll()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.mostRecent == nil
	}, time.Second, 5*time.Millisecond,
		"a cleared history must not resurrect the last product on reload")
}

func TestLookupAndActivateReloadBypassesCache(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve(&Snapshot{Barcode: testID(), Name: "Bread"})
	otherID := barcode.New(otherTestCode, barcode.Food)
	fetcher.serve(&Snapshot{Barcode: otherID, Name: "Milk"})

	c := newTestCollection(t, fetcher, nil)

	// A first scan with reload carries it into the insert-time fetch.
	rec := c.LookupAndActivate(testID(), true)
	waitForKind(t, rec, StatusAvailable)
	assert.Equal(t, 1, fetcher.reloadCount(testCode))

	// On an already-settled record a reload scan refetches fresh data.
	rec = c.LookupAndActivate(testID(), true)
	waitForKind(t, rec, StatusAvailable)
	require.Eventually(t, func() bool {
		return fetcher.reloadCount(testCode) == 2
	}, time.Second, 5*time.Millisecond)

	// Without the flag the fetch stays cache-friendly.
	other := c.LookupAndActivate(otherID, false)
	waitForKind(t, other, StatusAvailable)
	assert.Equal(t, 0, fetcher.reloadCount(otherTestCode))
}

func TestFindOrCreatePositionsAddressVisibleView(t *testing.T) {
	foodID := testID()
	beautyID := barcode.New(otherTestCode, barcode.Beauty)

	fetcher := newFakeFetcher()
	fetcher.block(foodID.String())
	fetcher.serve(&Snapshot{Barcode: beautyID, Name: "Soap"})

	c := newTestCollection(t, fetcher, nil)

	require.Equal(t, 0, c.FindOrCreate(beautyID))
	require.Eventually(t, func() bool {
		return c.RecordFor(beautyID).RemoteStatus().Kind == StatusAvailable
	}, time.Second, 5*time.Millisecond)

	// The new food record lands at the top of the visible view; the
	// resolved beauty record is filtered out of it and reports -1.
	assert.Equal(t, 0, c.FindOrCreate(foodID))
	assert.Equal(t, -1, c.FindOrCreate(beautyID))
	assert.Equal(t, 2, c.Size())
}

func TestLoadHistoryResolvesMostRecent(t *testing.T) {
	store := &fakeStore{
		entries: []HistoryEntry{
			{Barcode: testCode, Category: barcode.Food, Comment: "buy again"},
			{Barcode: "1002", Category: barcode.Food},
		},
		mostRecent: &Snapshot{Barcode: testID(), Name: "Cached bread"},
	}

	fetcher := newFakeFetcher()
	fetcher.gate = make(chan struct{})
	c := newTestCollection(t, fetcher, store)

	require.NoError(t, c.LoadHistory(context.Background()))

	require.Equal(t, 2, c.Size(), "the cached product must not duplicate its history entry")

	top := c.RecordAt(0)
	require.NotNil(t, top)
	assert.True(t, top.Identifier().Equal(testID()), "the stand-in retargets to the cached barcode")
	assert.Equal(t, "Cached bread", top.Name())
	assert.Equal(t, "buy again", top.Comment(), "the entry's comment carries over")
	assert.Equal(t, StatusAvailable, top.Status().Kind)
	assert.True(t, top.UpdateAllowed())
}

func TestLoadHistoryEmptySeedsSample(t *testing.T) {
	fetcher := newFakeFetcher()
	c := newTestCollection(t, fetcher, &fakeStore{})

	require.NoError(t, c.LoadHistory(context.Background()))

	require.Equal(t, 1, c.Size())
	assert.True(t, c.RecordAt(0).Identifier().IsSample())
	assert.Equal(t, 0, fetcher.totalCalls(), "nothing to fetch for an empty history")
}

func TestLastScannedSavedAsMostRecent(t *testing.T) {
	store := &fakeStore{}
	fetcher := newFakeFetcher()
	fetcher.serve(&Snapshot{Barcode: testID(), Name: "Bread"})

	c := newTestCollection(t, fetcher, store)
	rec := c.LookupAndActivate(testID(), false)

	waitForKind(t, rec, StatusAvailable)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.mostRecent != nil
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.True(t, store.mostRecent.Barcode.Equal(testID()))
}

func TestPlaceholdersAreNotPersisted(t *testing.T) {
	store := &fakeStore{}
	fetcher := newFakeFetcher()
	fetcher.block(testCode)
	c := newTestCollection(t, fetcher, store)

	require.NoError(t, c.LoadHistory(context.Background()))
	c.FindOrCreate(testID())

	require.Eventually(t, func() bool {
		entries := store.persisted()
		return len(entries) == 1 && entries[0].Barcode == testCode
	}, time.Second, 5*time.Millisecond, "only real barcodes belong in the history")
}
