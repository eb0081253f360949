package product

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pantryscan/scan-service/internal/barcode"
	"github.com/pantryscan/scan-service/internal/telemetry"
)

// Record pairs the product as stored on the facts server with the
// product as created or changed by the user. The two sides have
// independent lifecycles; effective display data is the local overlay
// when present, the remote snapshot otherwise.
//
// A record created by a Collection shares the collection's mutex, so
// every mutation and fetch completion across the whole registry is
// serialized. A standalone record owns its own mutex.
type Record struct {
	mu      *sync.Mutex
	emitter *Emitter
	fetcher Fetcher
	logger  zerolog.Logger
	ctx     context.Context

	// onChange runs with mu held after a mutation the owning collection
	// cares about (fetch settled, retarget, comment edit). Nil for
	// standalone records.
	onChange func(*Record)

	id           barcode.Identifier
	remote       *Snapshot
	local        *Snapshot
	remoteStatus Status
	localStatus  Status

	// updateAllowed is false for the sample and most-recent placeholder
	// records until they resolve to a real product.
	updateAllowed bool

	// comment is a user annotation. It is never sent to a server and
	// survives remote refresh and removal.
	comment string
}

type recordDeps struct {
	mu       *sync.Mutex
	emitter  *Emitter
	fetcher  Fetcher
	logger   zerolog.Logger
	ctx      context.Context
	onChange func(*Record)
}

func defaultRecordDeps(fetcher Fetcher) recordDeps {
	logger := log.With().Str("component", "product_record").Logger()
	return recordDeps{
		mu:      &sync.Mutex{},
		emitter: NewEmitter(0, logger),
		fetcher: fetcher,
		logger:  logger,
		ctx:     context.Background(),
	}
}

func newRecord(id barcode.Identifier, comment string, deps recordDeps) *Record {
	return &Record{
		mu:            deps.mu,
		emitter:       deps.emitter,
		fetcher:       deps.fetcher,
		logger:        deps.logger,
		ctx:           deps.ctx,
		onChange:      deps.onChange,
		id:            id,
		comment:       comment,
		updateAllowed: !id.IsPlaceholder(),
	}
}

// NewRecord creates a standalone record for an identifier.
func NewRecord(id barcode.Identifier, fetcher Fetcher) *Record {
	return newRecord(id, "", defaultRecordDeps(fetcher))
}

// NewRecordFromSnapshot creates a record directly from a known remote
// snapshot, e.g. one returned by a batch search. Its remote status is
// available immediately.
func NewRecordFromSnapshot(snap *Snapshot, fetcher Fetcher) *Record {
	r := newRecord(snap.Barcode, "", defaultRecordDeps(fetcher))
	if snap.PrimaryLanguage == "" {
		snap.PrimaryLanguage = DefaultLanguage
	}
	r.remote = snap
	r.remoteStatus = Available(snap.Barcode.String())
	return r
}

// Subscribe registers an observer on a standalone record's event stream.
// Records owned by a collection share the collection's emitter.
func (r *Record) Subscribe() *Subscription { return r.emitter.Subscribe() }

// Identifier returns the record's identity. It never changes once set,
// except for the single permitted retarget of a most-recent placeholder.
func (r *Record) Identifier() barcode.Identifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// UpdateAllowed reports whether the user may edit this record.
func (r *Record) UpdateAllowed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateAllowed
}

// Comment returns the user annotation.
func (r *Record) Comment() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.comment
}

// SetComment replaces the user annotation.
func (r *Record) SetComment(comment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.comment == comment {
		return
	}
	r.comment = comment
	r.notifyChangedLocked()
}

// RemoteStatus returns the state of the last remote fetch cycle.
func (r *Record) RemoteStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remoteStatus
}

// LocalStatus returns the state of the local overlay.
func (r *Record) LocalStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.localStatus
}

// Status combines both sides: the local status when it represents
// usable data, the remote status otherwise.
func (r *Record) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.localStatus.HasData() {
		return r.localStatus
	}
	return r.remoteStatus
}

// Remote returns the last snapshot fetched from the server, or nil.
func (r *Record) Remote() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remote
}

// Local returns the user's edit overlay, or nil.
func (r *Record) Local() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local
}

// Effective returns the snapshot that has info: the local overlay when
// present, otherwise the remote snapshot. May be nil.
func (r *Record) Effective() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.effectiveLocked()
}

func (r *Record) effectiveLocked() *Snapshot {
	if r.local != nil {
		return r.local
	}
	return r.remote
}

// Name returns the effective display name, local overlay winning.
func (r *Record) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.effectiveLocked(); s != nil {
		return s.Name
	}
	return ""
}

// Categories returns the effective category tags.
func (r *Record) Categories() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.effectiveLocked(); s != nil {
		return s.Categories
	}
	return nil
}

// PrimaryLanguage returns the effective primary language code.
func (r *Record) PrimaryLanguage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.local != nil && r.local.PrimaryLanguage != "" {
		return r.local.PrimaryLanguage
	}
	if r.remote != nil && r.remote.PrimaryLanguage != "" {
		return r.remote.PrimaryLanguage
	}
	return DefaultLanguage
}

// The "has" predicates are a logical OR over both sides: either side
// carrying data makes the facet present. This deliberately diverges
// from the overlay-wins rule used for scalar fields.

func (r *Record) HasCategories() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local.HasCategories() || r.remote.HasCategories()
}

func (r *Record) HasTraces() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local.HasTraces() || r.remote.HasTraces()
}

func (r *Record) HasAllergens() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local.HasAllergens() || r.remote.HasAllergens()
}

func (r *Record) HasIngredients() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local.HasIngredients() || r.remote.HasIngredients()
}

// InitLocal creates an empty editable overlay carrying this record's
// identifier, ready for user entry. No-op when an overlay exists.
func (r *Record) InitLocal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocalLocked()
}

func (r *Record) initLocalLocked() {
	if r.local != nil {
		return
	}
	id := r.id
	if r.remote != nil {
		id = r.remote.Barcode
	}
	r.setLocalLocked(NewSnapshot(id))
}

// SetLocal replaces the edit overlay (nil clears it) and reports whether
// the overlay transitioned between nil and non-nil. Event emission is an
// explicit consequence of this call, not of a property observer.
func (r *Record) SetLocal(snap *Snapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setLocalLocked(snap)
}

func (r *Record) setLocalLocked(snap *Snapshot) bool {
	transitioned := (r.local == nil) != (snap == nil)
	r.local = snap
	if snap != nil {
		if snap.PrimaryLanguage == "" {
			if r.remote != nil && r.remote.PrimaryLanguage != "" {
				snap.PrimaryLanguage = r.remote.PrimaryLanguage
			} else {
				snap.PrimaryLanguage = DefaultLanguage
			}
		}
		r.setLocalStatusLocked(Available(r.id.String()))
	} else {
		r.setLocalStatusLocked(Uninitialized())
	}
	if transitioned {
		r.emitter.Emit(Event{Kind: EventRecordUpdated, Barcode: r.id.String()})
	}
	return transitioned
}

// MarkUploaded records that a pending local edit has been accepted by
// the server. The overlay is cleared once the next fetch shows the
// server reflecting the edit.
func (r *Record) MarkUploaded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.local == nil {
		return
	}
	r.setLocalStatusLocked(Updated(r.id.String()))
}

// setRemoteLocked assigns the remote snapshot and reports whether it
// transitioned between nil and non-nil, emitting the update event
// exactly once per transition.
func (r *Record) setRemoteLocked(snap *Snapshot) bool {
	transitioned := (r.remote == nil) != (snap == nil)
	r.remote = snap
	if transitioned {
		r.emitter.Emit(Event{Kind: EventRecordUpdated, Barcode: r.id.String()})
	}
	return transitioned
}

func (r *Record) setRemoteStatusLocked(status Status) {
	if r.remoteStatus == status {
		return
	}
	r.remoteStatus = status
	r.emitter.Emit(Event{Kind: EventRemoteStatusChanged, Barcode: r.id.String(), Status: status})
}

func (r *Record) setLocalStatusLocked(status Status) {
	if r.localStatus == status {
		return
	}
	r.localStatus = status
	r.emitter.Emit(Event{Kind: EventLocalStatusChanged, Barcode: r.id.String(), Status: status})
}

func (r *Record) notifyChangedLocked() {
	if r.onChange != nil {
		r.onChange(r)
	}
}

// Fetch retrieves the remote snapshot on a background goroutine. A
// fetch already in flight makes this a no-op; a reload request while
// loading is dropped, not queued. The completion applies under the
// record's mutex, so it never interleaves with other mutations.
func (r *Record) Fetch(reload bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchLocked(reload)
}

func (r *Record) fetchLocked(reload bool) {
	if r.remoteStatus.Kind == StatusLoading {
		return
	}
	id := r.id
	r.setRemoteStatusLocked(Loading(id.String()))

	go func() {
		if r.fetcher == nil {
			r.applyFetchResult(nil, errors.New("no fetcher configured"))
			return
		}
		snap, err := r.fetcher.Fetch(r.ctx, id, reload)
		r.applyFetchResult(snap, err)
	}()
}

// NewFetch starts a fetch that may be served from caches.
func (r *Record) NewFetch() { r.Fetch(false) }

// Reload starts a fetch that bypasses caches.
func (r *Record) Reload() { r.Fetch(true) }

// PreFetch fetches only when the record has no settled or in-flight
// fetch cycle, so warming a scroll window never re-fetches known data.
func (r *Record) PreFetch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preFetchLocked()
}

func (r *Record) preFetchLocked() {
	if r.id.IsPlaceholder() || r.remoteStatus.Settled() {
		return
	}
	telemetry.PrefetchesTotal.Inc()
	r.fetchLocked(false)
}

func (r *Record) applyFetchResult(snap *Snapshot, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyFetchResultLocked(snap, err)
}

func (r *Record) applyFetchResultLocked(snap *Snapshot, err error) {
	switch {
	case err == nil && snap != nil:
		if r.id.IsMostRecent() {
			// The stored most-recent stand-in resolves to the real
			// product: retarget the identity once, drop the stand-in's
			// overlay and let the user edit from here on.
			r.id = snap.Barcode
			r.setLocalLocked(nil)
			r.updateAllowed = true
		} else if !snap.Barcode.Equal(r.id) {
			// Response for a different barcode than requested. Discard
			// and let a later fetch retry.
			telemetry.FetchesTotal.WithLabelValues("mismatch").Inc()
			r.logger.Warn().
				Str("requested", r.id.String()).
				Str("received", snap.Barcode.String()).
				Msg("Discarding fetch response with mismatched barcode")
			r.setRemoteStatusLocked(Uninitialized())
			return
		}
		if snap.PrimaryLanguage == "" {
			if r.local != nil && r.local.PrimaryLanguage != "" {
				snap.PrimaryLanguage = r.local.PrimaryLanguage
			} else {
				snap.PrimaryLanguage = DefaultLanguage
			}
		}
		r.setRemoteLocked(snap)
		r.setRemoteStatusLocked(Available(r.id.String()))
		if r.localStatus.Kind == StatusUpdated {
			// The server now reflects the pending edit.
			r.setLocalLocked(nil)
		}
		telemetry.FetchesTotal.WithLabelValues("available").Inc()

	case errors.Is(err, ErrNotFound):
		r.setRemoteStatusLocked(NotFound(r.id.String()))
		// Keep the app usable offline: give the user an empty product
		// to fill in.
		r.initLocalLocked()
		telemetry.FetchesTotal.WithLabelValues("not_found").Inc()

	default:
		r.setRemoteStatusLocked(Failed(r.id.String()))
		r.initLocalLocked()
		telemetry.FetchesTotal.WithLabelValues("failed").Inc()
		r.logger.Warn().
			Err(err).
			Str("barcode", r.id.String()).
			Msg("Product fetch failed")
	}

	r.notifyChangedLocked()
}
