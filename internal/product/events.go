package product

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pantryscan/scan-service/internal/telemetry"
)

// EventKind enumerates the notifications the core emits.
type EventKind int

const (
	// EventListExtended fires when a new record is inserted into the
	// collection. Barcode carries the new identifier.
	EventListExtended EventKind = iota
	// EventRecordUpdated fires when a record's remote or local snapshot
	// transitions between nil and non-nil.
	EventRecordUpdated
	// EventRemoteStatusChanged fires when a record's remote status
	// changes value. Status carries the new status.
	EventRemoteStatusChanged
	// EventLocalStatusChanged fires when a record's local status
	// changes value.
	EventLocalStatusChanged
)

func (k EventKind) String() string {
	switch k {
	case EventListExtended:
		return "list_extended"
	case EventRecordUpdated:
		return "record_updated"
	case EventRemoteStatusChanged:
		return "remote_status_changed"
	default:
		return "local_status_changed"
	}
}

// Event is the payload delivered to subscribers. Observers must tolerate
// events for barcodes they do not currently render.
type Event struct {
	Kind    EventKind
	Barcode string
	Status  Status
}

// Emitter is a typed observer registry. Consumers hold a Subscription
// and release it on teardown; there is no global notification bus.
type Emitter struct {
	mu     sync.Mutex
	subs   map[string]chan Event
	buffer int
	logger zerolog.Logger
}

// NewEmitter creates an emitter whose subscriber channels hold up to
// buffer undelivered events.
func NewEmitter(buffer int, logger zerolog.Logger) *Emitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Emitter{
		subs:   make(map[string]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscription is a handle on an event stream. Close releases it.
type Subscription struct {
	C  <-chan Event
	id string
	e  *Emitter
}

// Subscribe registers a new observer.
func (e *Emitter) Subscribe() *Subscription {
	ch := make(chan Event, e.buffer)
	id := uuid.NewString()

	e.mu.Lock()
	e.subs[id] = ch
	e.mu.Unlock()

	return &Subscription{C: ch, id: id, e: e}
}

// Close unregisters the subscription and closes its channel. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if ch, ok := s.e.subs[s.id]; ok {
		delete(s.e.subs, s.id)
		close(ch)
	}
}

// Emit delivers the event to every subscriber without blocking. A full
// subscriber channel drops the event; observers are idempotent
// re-renderers, so a dropped event only delays a redraw.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			telemetry.EventsDropped.Inc()
			e.logger.Warn().
				Str("subscription", id).
				Str("event", ev.Kind.String()).
				Str("barcode", ev.Barcode).
				Msg("Subscriber channel full, dropping event")
		}
	}
}
