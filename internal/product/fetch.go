package product

import (
	"context"
	"errors"

	"github.com/pantryscan/scan-service/internal/barcode"
)

// ErrNotFound is returned by a Fetcher when the server confirms that no
// product exists for the requested barcode. Every other fetch error is
// treated as a retryable transport failure.
var ErrNotFound = errors.New("product not found")

// Fetcher retrieves a product snapshot for an identifier. Fetch is
// invoked on a background goroutine and must return exactly once; the
// core marshals the result back onto its own synchronized state.
// reload asks the transport to bypass any caches.
type Fetcher interface {
	Fetch(ctx context.Context, id barcode.Identifier, reload bool) (*Snapshot, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id barcode.Identifier, reload bool) (*Snapshot, error)

func (f FetcherFunc) Fetch(ctx context.Context, id barcode.Identifier, reload bool) (*Snapshot, error) {
	return f(ctx, id, reload)
}
