package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/pantryscan/scan-service/internal/product"
)

var (
	historyOutput string
	exportOut     string
)

// historyCmd groups the scan-history subcommands
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage the local scan history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded scans, most recent first",
	RunE:  runHistoryList,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded scans",
	RunE:  runHistoryClear,
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the scan history to an xlsx workbook",
	Example: `  scan-service history export
  scan-service history export --out scans.xlsx`,
	RunE: runHistoryExport,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyExportCmd)

	historyListCmd.Flags().StringVar(&historyOutput, "output", "table", "Output format: table or json")
	historyExportCmd.Flags().StringVar(&exportOut, "out", "scans.xlsx", "Output file path")
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, closeStore, err := openHistoryStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer closeStore()

	entries, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if historyOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No scans recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "#\tBARCODE\tCATEGORY\tCOMMENT")
	for i, entry := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, entry.Barcode, entry.Category, entry.Comment)
	}
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, closeStore, err := openHistoryStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer closeStore()

	if err := store.Persist(ctx, nil); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	if err := store.SaveMostRecent(ctx, nil); err != nil {
		return fmt.Errorf("failed to clear most recent product: %w", err)
	}

	logger.Info().Msg("Scan history cleared")
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, closeStore, err := openHistoryStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer closeStore()

	entries, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if err := writeHistoryWorkbook(entries, exportOut); err != nil {
		return err
	}

	logger.Info().Int("scans", len(entries)).Str("file", exportOut).Msg("History exported")
	return nil
}

// writeHistoryWorkbook writes the entries to a single-sheet workbook
func writeHistoryWorkbook(entries []product.HistoryEntry, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Scans"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	headers := []string{"Position", "Barcode", "Category", "Comment"}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}

	for row, entry := range entries {
		values := []interface{}{row + 1, entry.Barcode, string(entry.Category), entry.Comment}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
