package product

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pantryscan/scan-service/internal/barcode"
	"github.com/pantryscan/scan-service/internal/telemetry"
)

// HistoryEntry is one line of the persisted scan history.
type HistoryEntry struct {
	Barcode  string           `json:"barcode"`
	Category barcode.Category `json:"category"`
	Comment  string           `json:"comment,omitempty"`
}

// HistoryStore persists the ordered scan history across restarts.
// Implementations live in internal/history.
type HistoryStore interface {
	LoadAll(ctx context.Context) ([]HistoryEntry, error)
	Persist(ctx context.Context, entries []HistoryEntry) error

	// LoadMostRecent returns the cached snapshot of the product scanned
	// last in a previous run, or nil when none was stored.
	LoadMostRecent(ctx context.Context) (*Snapshot, error)
	SaveMostRecent(ctx context.Context, snap *Snapshot) error
}

// Config configures a Collection.
type Config struct {
	// Fetcher retrieves remote snapshots. Required.
	Fetcher Fetcher
	// History persists the scan history. Optional.
	History HistoryStore
	// Filter is the active category filter for the visible view.
	// Defaults to food.
	Filter barcode.Category
	// PrefetchWindow is the width of the prefetch range around an
	// activated record. Defaults to 8.
	PrefetchWindow int
	// EventBuffer sizes subscriber channels. Defaults to 64.
	EventBuffer int
}

// Collection is the ordered, identifier-unique registry of every
// product record the app has touched. It is the single source of truth
// so that navigating between screens never loses in-flight or fetched
// product data: one long-lived instance is constructed at startup and
// passed to consumers by reference.
//
// One mutex serializes every mutation of the collection and of its
// records, including fetch completions arriving from background
// goroutines, so observers always see a consistent view.
type Collection struct {
	mu      sync.Mutex
	emitter *Emitter
	fetcher Fetcher
	history HistoryStore
	logger  zerolog.Logger
	ctx     context.Context

	filter         barcode.Category
	prefetchWindow int

	all         []*Record
	visible     []*Record
	lastScanned *Record
}

// NewCollection creates an empty collection. Call LoadHistory to
// rebuild state from a previous run.
func NewCollection(ctx context.Context, cfg Config) *Collection {
	if cfg.Filter == "" {
		cfg.Filter = barcode.Food
	}
	if cfg.PrefetchWindow <= 0 {
		cfg.PrefetchWindow = 8
	}
	logger := log.With().Str("component", "product_collection").Logger()

	return &Collection{
		emitter:        NewEmitter(cfg.EventBuffer, logger),
		fetcher:        cfg.Fetcher,
		history:        cfg.History,
		logger:         logger,
		ctx:            ctx,
		filter:         cfg.Filter,
		prefetchWindow: cfg.PrefetchWindow,
	}
}

// Subscribe registers an observer on the collection's event stream.
func (c *Collection) Subscribe() *Subscription { return c.emitter.Subscribe() }

// Filter returns the active category filter.
func (c *Collection) Filter() barcode.Category { return c.filter }

func (c *Collection) recordDeps() recordDeps {
	return recordDeps{
		mu:       &c.mu,
		emitter:  c.emitter,
		fetcher:  c.fetcher,
		logger:   c.logger,
		ctx:      c.ctx,
		onChange: c.recordChangedLocked,
	}
}

// Count returns the number of records in the visible (filtered) view.
func (c *Collection) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.visible)
}

// Size returns the number of records in the full registry.
func (c *Collection) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.all)
}

// RecordAt returns the record at a position in the visible view, or nil
// for out-of-range positions.
func (c *Collection) RecordAt(pos int) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 || pos >= len(c.visible) {
		return nil
	}
	return c.visible[pos]
}

// Position returns a record's position in the visible view.
func (c *Collection) Position(rec *Record) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked(rec)
}

func (c *Collection) positionLocked(rec *Record) (int, bool) {
	if rec == nil {
		return 0, false
	}
	for i, v := range c.visible {
		if v == rec {
			return i, true
		}
	}
	return 0, false
}

// RecordFor returns the record with a matching identifier without
// creating one. Matching is on the normalized string form, category
// independent.
func (c *Collection) RecordFor(id barcode.Identifier) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOfLocked(id); i >= 0 {
		return c.all[i]
	}
	return nil
}

func (c *Collection) indexOfLocked(id barcode.Identifier) int {
	for i, rec := range c.all {
		if rec.id.Equal(id) {
			return i
		}
	}
	return -1
}

// Visible returns a copy of the filtered view: records whose category
// matches the active filter, plus every record whose category is not
// known yet because its fetch has not resolved.
func (c *Collection) Visible() []*Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Record, len(c.visible))
	copy(out, c.visible)
	return out
}

// LastScanned returns the visible position of the record activated
// last, if it is still present and visible.
func (c *Collection) LastScanned() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked(c.lastScanned)
}

// FindOrCreate returns the visible position of the record with the
// given identifier, inserting a new record at the top and starting its
// first fetch when none exists. A lone sample placeholder is evicted by
// the first real insert. An existing record filtered out of the visible
// view reports -1.
func (c *Collection) FindOrCreate(id barcode.Identifier) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, rec := c.findOrCreateLocked(id, false)
	pos, ok := c.positionLocked(rec)
	if !ok {
		return -1
	}
	return pos
}

// findOrCreateLocked returns the registry index, which prefetch uses to
// address neighbours in c.all. A reload on an existing record starts a
// cache-bypassing fetch; on a new record the insert fetch carries it.
func (c *Collection) findOrCreateLocked(id barcode.Identifier, reload bool) (int, *Record) {
	if i := c.indexOfLocked(id); i >= 0 {
		rec := c.all[i]
		if reload {
			rec.fetchLocked(true)
		}
		return i, rec
	}

	// The sample product only occupies the list while there is nothing
	// real to show.
	if len(c.all) == 1 && c.all[0].id.IsSample() {
		c.all = nil
	}

	rec := newRecord(id, "", c.recordDeps())
	c.all = append([]*Record{rec}, c.all...)
	rec.fetchLocked(reload)

	c.recomputeVisibleLocked()
	c.persistLocked()
	telemetry.RecordsTracked.Set(float64(len(c.all)))

	c.emitter.Emit(Event{Kind: EventListExtended, Barcode: rec.id.String()})
	return 0, rec
}

// LookupAndActivate finds or creates the record, marks it as the last
// scanned one and warms the prefetch window around it so the records a
// user is likely to scroll to next are already loading. With reload set
// the record's fetch bypasses intermediate caches.
func (c *Collection) LookupAndActivate(id barcode.Identifier, reload bool) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, rec := c.findOrCreateLocked(id, reload)
	c.lastScanned = rec
	c.prefetchAroundLocked(pos)
	return rec
}

func (c *Collection) prefetchAroundLocked(pos int) {
	if len(c.all) == 0 {
		return
	}
	half := c.prefetchWindow / 2
	lower := pos - half
	if lower < 0 {
		lower = 0
	}
	upper := pos + half
	if upper > len(c.all)-1 {
		upper = len(c.all) - 1
	}
	for i := lower; i <= upper; i++ {
		c.all[i].preFetchLocked()
	}
}

// Fetch starts a fresh fetch for an existing record. Unknown
// identifiers are ignored.
func (c *Collection) Fetch(id barcode.Identifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOfLocked(id); i >= 0 {
		c.all[i].fetchLocked(false)
	}
}

// Remove deletes the record at a position in the visible view. The
// record's in-flight fetch, if any, is not cancelled; its completion
// mutates only the detached record and is otherwise a no-op.
func (c *Collection) Remove(pos int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 || pos >= len(c.visible) {
		return false
	}
	rec := c.visible[pos]
	i := c.indexOfLocked(rec.id)
	if i < 0 {
		return false
	}
	rec.onChange = nil
	c.all = append(c.all[:i], c.all[i+1:]...)
	if c.lastScanned == rec {
		c.lastScanned = nil
	}

	c.recomputeVisibleLocked()
	c.persistLocked()
	telemetry.RecordsTracked.Set(float64(len(c.all)))
	return true
}

// ResetAll clears the whole registry and reseeds the sample product,
// used for "clear history". The cached most-recent snapshot is deleted
// too so a later LoadHistory starts from a genuinely empty state.
func (c *Collection) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = nil
	c.lastScanned = nil
	c.ensureSampleLocked()
	c.recomputeVisibleLocked()
	c.persistLocked()
	if c.history != nil {
		go func() {
			if err := c.history.SaveMostRecent(c.ctx, nil); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to clear most recent product")
			}
		}()
	}
	telemetry.RecordsTracked.Set(float64(len(c.all)))
}

// LoadHistory rebuilds the registry from the persistence collaborator:
// the cached most-recent product becomes a placeholder record resolved
// in place (retargeting its identity), the remaining history entries
// materialize unfetched, and an empty history seeds the sample product.
func (c *Collection) LoadHistory(ctx context.Context) error {
	if c.history == nil {
		c.mu.Lock()
		c.ensureSampleLocked()
		c.recomputeVisibleLocked()
		c.mu.Unlock()
		return nil
	}

	entries, err := c.history.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	mostRecent, err := c.history.LoadMostRecent(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to load most recent product")
	}

	c.mu.Lock()
	c.all = nil
	c.lastScanned = nil

	var placeholder *Record
	if mostRecent != nil {
		placeholder = newRecord(barcode.MostRecent(c.filter), "", c.recordDeps())
		c.all = append(c.all, placeholder)
	}
	for _, entry := range entries {
		id := barcode.New(entry.Barcode, entry.Category)
		if mostRecent != nil && id.Equal(mostRecent.Barcode) {
			// This entry is the placeholder's real identity; keep its
			// comment on the placeholder instead of duplicating it.
			placeholder.comment = entry.Comment
			continue
		}
		if c.indexOfLocked(id) >= 0 {
			continue
		}
		c.all = append(c.all, newRecord(id, entry.Comment, c.recordDeps()))
	}
	c.ensureSampleLocked()
	c.recomputeVisibleLocked()
	telemetry.RecordsTracked.Set(float64(len(c.all)))
	c.mu.Unlock()

	if placeholder != nil {
		// Resolve the stand-in from the cached snapshot through the
		// regular completion path, which retargets its identifier.
		placeholder.applyFetchResult(mostRecent, nil)
	}

	c.mu.Lock()
	c.prefetchAroundLocked(0)
	c.mu.Unlock()

	c.logger.Info().
		Int("records", len(entries)).
		Bool("most_recent", mostRecent != nil).
		Msg("History loaded")
	return nil
}

func (c *Collection) ensureSampleLocked() {
	if len(c.all) > 0 {
		return
	}
	rec := newRecord(barcode.Sample(c.filter), "", c.recordDeps())
	rec.setLocalLocked(sampleSnapshot(c.filter))
	c.all = []*Record{rec}
}

// sampleSnapshot is shown before the user has scanned anything.
func sampleSnapshot(category barcode.Category) *Snapshot {
	return &Snapshot{
		Barcode:         barcode.Sample(category),
		Name:            "Sample product",
		Categories:      []string{"sample"},
		PrimaryLanguage: DefaultLanguage,
	}
}

// recomputeVisibleLocked rebuilds the filtered view. Records whose
// remote fetch has not resolved pass through unconditionally: until a
// record resolves its category is unknown, so it cannot be excluded.
func (c *Collection) recomputeVisibleLocked() {
	visible := make([]*Record, 0, len(c.all))
	for _, rec := range c.all {
		if rec.remoteStatus.Kind == StatusAvailable {
			if rec.remote != nil && rec.remote.Barcode.Category() == c.filter {
				visible = append(visible, rec)
			}
			continue
		}
		visible = append(visible, rec)
	}
	c.visible = visible
}

// recordChangedLocked runs, with the shared mutex held, after a record
// mutation the collection must react to.
func (c *Collection) recordChangedLocked(rec *Record) {
	c.recomputeVisibleLocked()
	c.persistLocked()
	if c.history != nil && rec == c.lastScanned &&
		rec.remoteStatus.Kind == StatusAvailable && rec.remote != nil {
		snap := rec.remote
		go func() {
			if err := c.history.SaveMostRecent(c.ctx, snap); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to save most recent product")
			}
		}()
	}
}

// persistLocked writes the history asynchronously; persistence is
// best-effort and never blocks a mutation.
func (c *Collection) persistLocked() {
	if c.history == nil {
		return
	}
	entries := make([]HistoryEntry, 0, len(c.all))
	for _, rec := range c.all {
		if rec.id.IsPlaceholder() {
			continue
		}
		entries = append(entries, HistoryEntry{
			Barcode:  rec.id.String(),
			Category: rec.id.Category(),
			Comment:  rec.comment,
		})
	}
	go func() {
		if err := c.history.Persist(c.ctx, entries); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to persist history")
		}
	}()
}
