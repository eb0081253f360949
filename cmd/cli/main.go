package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pantryscan/scan-service/config"
	"github.com/pantryscan/scan-service/internal/history"
	"github.com/pantryscan/scan-service/internal/product"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scan-service",
	Short: "Scan Service CLI - Barcode product lookup tool",
	Long: `A CLI tool for resolving scanned barcodes against the open facts
servers and managing the local scan history. Lookups go through the same
registry the server uses: records are cached, rate limited and persisted
to the configured history backend (file, sqlite or postgres).`,
	PersistentPreRunE: persistentPreRun,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		// Config is optional for some commands, don't fail here
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
}

// persistentPreRun runs before each command and initializes the logger
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	logger = initLogger()
	return nil
}

func initLogger() *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if cfg != nil && cfg.Logging.Level != "" {
		if parsedLevel, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			level = parsedLevel
		}
	}

	// Always use console format for CLI
	var output io.Writer
	if cfg != nil && cfg.Logging.Format == "json" {
		output = os.Stdout
	} else {
		noColor := false
		if cfg != nil {
			noColor = cfg.Logging.NoColor
		}
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: noColor}
	}

	log := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &log
}

// openHistoryStore builds the configured history backend
func openHistoryStore(ctx context.Context) (product.HistoryStore, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config not loaded")
	}

	switch cfg.History.Backend {
	case "", "file":
		store, err := history.NewFileStore(cfg.History.BasePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case "sqlite":
		store, err := history.NewSQLiteStore(cfg.History.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case "postgres":
		if cfg.History.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("postgres backend requires DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.History.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store := history.NewPostgresStore(pool, cfg.History.Device)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
