// Package offapi fetches product data from the open facts servers and
// maps transport outcomes onto the core's fetch semantics.
package offapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pantryscan/scan-service/internal/barcode"
	"github.com/pantryscan/scan-service/internal/httpx"
	"github.com/pantryscan/scan-service/internal/product"
)

// One facts server per product category, world (language-neutral)
// subdomain, read API v1.2.
var defaultBaseURLs = map[barcode.Category]string{
	barcode.Food:    "https://world.openfoodfacts.org",
	barcode.Beauty:  "https://world.openbeautyfacts.org",
	barcode.PetFood: "https://world.openpetfoodfacts.org",
	barcode.Product: "https://world.openproductsfacts.org",
}

const productPath = "/api/v1.2/product/"

// Config configures the fetch client.
type Config struct {
	// Transport configures rate limiting and retries.
	Transport httpx.Config
	// BaseURLs overrides the facts server per category; used in tests.
	BaseURLs map[barcode.Category]string
}

// Client implements product.Fetcher against the facts servers.
type Client struct {
	http     *httpx.Client
	baseURLs map[barcode.Category]string
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewClient creates a fetch client.
func NewClient(cfg Config) *Client {
	baseURLs := defaultBaseURLs
	if len(cfg.BaseURLs) > 0 {
		baseURLs = cfg.BaseURLs
	}
	return &Client{
		http:     httpx.NewClient(cfg.Transport),
		baseURLs: baseURLs,
		tracer:   otel.Tracer("offapi"),
		logger:   log.With().Str("component", "offapi").Logger(),
	}
}

// FetchURL returns the read URL for an identifier.
func (c *Client) FetchURL(id barcode.Identifier) string {
	base, ok := c.baseURLs[id.Category()]
	if !ok {
		base = c.baseURLs[barcode.Food]
	}
	return base + productPath + id.String() + ".json"
}

// Fetch retrieves the product snapshot for an identifier. It returns
// product.ErrNotFound when the server confirms the barcode is unknown
// and a wrapped transport error otherwise. Placeholder identifiers have
// nothing to fetch and resolve to not-found.
func (c *Client) Fetch(ctx context.Context, id barcode.Identifier, reload bool) (*product.Snapshot, error) {
	ctx, span := c.tracer.Start(ctx, "offapi.Fetch", trace.WithAttributes(
		attribute.String("barcode", id.String()),
		attribute.String("category", string(id.Category())),
		attribute.Bool("reload", reload),
	))
	defer span.End()

	if id.IsPlaceholder() {
		return nil, fmt.Errorf("placeholder %q: %w", id.String(), product.ErrNotFound)
	}

	var headers map[string]string
	if reload {
		headers = map[string]string{"Cache-Control": "no-cache"}
	}

	url := c.FetchURL(id)
	status, body, err := c.http.GetBytes(ctx, url, headers)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch %s: %w", id.String(), err)
	}

	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("barcode %s: %w", id.String(), product.ErrNotFound)
	case status < 200 || status >= 300:
		err := fmt.Errorf("fetch %s: unexpected status %d", id.String(), status)
		span.RecordError(err)
		return nil, err
	}

	var resp readResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode response for %s: %w", id.String(), err)
	}

	if resp.Status == 0 || resp.Product == nil {
		c.logger.Debug().
			Str("barcode", id.String()).
			Str("status_verbose", resp.StatusVerbose).
			Msg("Product not on server")
		return nil, fmt.Errorf("barcode %s: %w", id.String(), product.ErrNotFound)
	}

	return snapshotFromJSON(resp, id.Category()), nil
}

func snapshotFromJSON(resp readResponse, category barcode.Category) *product.Snapshot {
	p := resp.Product
	code := p.Code
	if code == "" {
		code = resp.Code
	}

	return &product.Snapshot{
		Barcode:         barcode.New(code, category),
		Name:            p.ProductName,
		Brands:          splitBrands(p.Brands),
		Categories:      p.CategoriesTags,
		Traces:          p.TracesTags,
		Allergens:       p.AllergensTags,
		IngredientsText: p.IngredientsText,
		Languages:       languageCodes(p.LanguagesHierarchy),
		PrimaryLanguage: p.Lang,
		NutritionFacts:  len(p.Nutriments) > 0,
	}
}
