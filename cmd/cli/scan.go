package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pantryscan/scan-service/internal/barcode"
	"github.com/pantryscan/scan-service/internal/httpx"
	"github.com/pantryscan/scan-service/internal/offapi"
	"github.com/pantryscan/scan-service/internal/product"
)

var (
	scanCategory string
	scanReload   bool
	scanComment  string
	scanOutput   string
	scanTimeout  time.Duration
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <barcode>",
	Short: "Resolve a barcode against the facts servers",
	Long: `Resolve a scanned barcode against the category's facts server and print
the product data. The record is registered in the scan history first, so a
repeated scan of the same barcode reuses the cached result unless --reload
is given. Neighbouring history entries are prefetched in the background.`,
	Example: `  scan-service scan 4311501043336
  scan-service scan 4305615396668 --category beauty
  scan-service scan 4311501043336 --reload --comment "contains garlic"`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanCategory, "category", "", "Product category: food, beauty, petfood or product (default from config)")
	scanCmd.Flags().BoolVar(&scanReload, "reload", false, "Bypass intermediate caches and fetch fresh data")
	scanCmd.Flags().StringVar(&scanComment, "comment", "", "Attach a note to the scan")
	scanCmd.Flags().StringVar(&scanOutput, "output", "table", "Output format: table or json")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 60*time.Second, "How long to wait for the fetch to settle")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	store, closeStore, err := openHistoryStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer closeStore()

	category := cfg.Fetch.Category
	if scanCategory != "" {
		category = scanCategory
	}

	collection := product.NewCollection(ctx, product.Config{
		Fetcher: offapi.NewClient(offapi.Config{
			Transport: httpx.Config{
				RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
				MaxConcurrent:     cfg.Fetch.MaxConcurrent,
				MaxRetries:        cfg.Fetch.MaxRetries,
				InitialBackoffMs:  cfg.Fetch.InitialBackoffMs,
				MaxBackoffMs:      cfg.Fetch.MaxBackoffMs,
				TimeoutSeconds:    cfg.Fetch.TimeoutSeconds,
			},
		}),
		History:        store,
		Filter:         barcode.CategoryFromString(category),
		PrefetchWindow: cfg.Fetch.PrefetchWindow,
	})

	if err := collection.LoadHistory(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to load scan history")
	}

	id := barcode.New(args[0], barcode.CategoryFromString(category))
	if id.IsPlaceholder() {
		return fmt.Errorf("barcode %q is reserved", args[0])
	}

	sub := collection.Subscribe()
	defer sub.Close()

	logger.Info().Str("barcode", id.String()).Str("category", string(id.Category())).Msg("Looking up product")

	rec := collection.LookupAndActivate(id, scanReload)
	if scanComment != "" {
		rec.SetComment(scanComment)
	}

	if err := waitForSettled(ctx, rec, sub); err != nil {
		return err
	}

	status := rec.Status()
	if status.Kind == product.StatusFailed {
		logger.Warn().Str("barcode", id.String()).Msg("Fetch failed, showing local data only")
	}

	if scanOutput == "json" {
		return printScanJSON(rec)
	}
	printScanTable(rec)
	return nil
}

// waitForSettled blocks until the record's fetch cycle concludes
func waitForSettled(ctx context.Context, rec *product.Record, sub *product.Subscription) error {
	for {
		kind := rec.Status().Kind
		if kind != product.StatusUninitialized && kind != product.StatusLoading {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for fetch: %w", ctx.Err())
		case _, ok := <-sub.C:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
		}
	}
}

func printScanTable(rec *product.Record) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	id := rec.Identifier()
	fmt.Fprintf(w, "Barcode:\t%s\n", id.String())
	fmt.Fprintf(w, "Category:\t%s\n", id.Category())
	fmt.Fprintf(w, "Status:\t%s\n", rec.Status().Kind)
	if name := rec.Name(); name != "" {
		fmt.Fprintf(w, "Name:\t%s\n", name)
	}

	snap := rec.Effective()
	if snap == nil {
		return
	}
	if len(snap.Brands) > 0 {
		fmt.Fprintf(w, "Brands:\t%s\n", strings.Join(snap.Brands, ", "))
	}
	if rec.HasCategories() {
		fmt.Fprintf(w, "Categories:\t%s\n", strings.Join(rec.Categories(), ", "))
	}
	if rec.HasTraces() {
		fmt.Fprintf(w, "Traces:\t%s\n", strings.Join(snap.Traces, ", "))
	}
	if rec.HasAllergens() {
		fmt.Fprintf(w, "Allergens:\t%s\n", strings.Join(snap.Allergens, ", "))
	}
	if rec.HasIngredients() {
		fmt.Fprintf(w, "Ingredients:\t%s\n", snap.IngredientsText)
	}
	if lang := rec.PrimaryLanguage(); lang != "" {
		fmt.Fprintf(w, "Language:\t%s\n", lang)
	}
	if comment := rec.Comment(); comment != "" {
		fmt.Fprintf(w, "Comment:\t%s\n", comment)
	}
}

func printScanJSON(rec *product.Record) error {
	payload := struct {
		Barcode  string            `json:"barcode"`
		Category string            `json:"category"`
		Status   string            `json:"status"`
		Comment  string            `json:"comment,omitempty"`
		Data     *product.Snapshot `json:"data,omitempty"`
	}{
		Barcode:  rec.Identifier().String(),
		Category: string(rec.Identifier().Category()),
		Status:   rec.Status().Kind.String(),
		Comment:  rec.Comment(),
		Data:     rec.Effective(),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
