package product

// StatusKind enumerates the closed set of fetch states.
type StatusKind int

const (
	// StatusUninitialized means no fetch has been attempted yet.
	StatusUninitialized StatusKind = iota
	// StatusLoading means a fetch is in flight. At most one fetch per
	// record may be in this state.
	StatusLoading
	// StatusAvailable means the snapshot was retrieved.
	StatusAvailable
	// StatusUpdated means a local edit has been confirmed by the server
	// but the next refresh has not landed yet.
	StatusUpdated
	// StatusFailed means the transport failed; retryable via reload.
	StatusFailed
	// StatusNotFound means the server confirmed the product does not
	// exist. The user may still create local data.
	StatusNotFound
)

func (k StatusKind) String() string {
	switch k {
	case StatusLoading:
		return "loading"
	case StatusAvailable:
		return "available"
	case StatusUpdated:
		return "updated"
	case StatusFailed:
		return "failed"
	case StatusNotFound:
		return "not_found"
	default:
		return "uninitialized"
	}
}

// Status captures the progress of one fetch cycle. Non-initial states
// carry the barcode they refer to. Transitions within a cycle are
// monotonic: uninitialized -> loading -> {available | failed | not_found}.
type Status struct {
	Kind    StatusKind
	Barcode string
}

// Uninitialized is the zero status.
func Uninitialized() Status { return Status{} }

func Loading(code string) Status   { return Status{Kind: StatusLoading, Barcode: code} }
func Available(code string) Status { return Status{Kind: StatusAvailable, Barcode: code} }
func Updated(code string) Status   { return Status{Kind: StatusUpdated, Barcode: code} }
func Failed(code string) Status    { return Status{Kind: StatusFailed, Barcode: code} }
func NotFound(code string) Status  { return Status{Kind: StatusNotFound, Barcode: code} }

// HasData reports whether the status represents usable product data.
// Only available and updated qualify.
func (s Status) HasData() bool {
	return s.Kind == StatusAvailable || s.Kind == StatusUpdated
}

// Settled reports whether a fetch cycle has started or concluded, i.e.
// whether a prefetch should leave the record alone.
func (s Status) Settled() bool {
	switch s.Kind {
	case StatusAvailable, StatusNotFound, StatusFailed, StatusLoading:
		return true
	default:
		return false
	}
}
