package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pantryscan/scan-service/config"
	"github.com/pantryscan/scan-service/internal/barcode"
	"github.com/pantryscan/scan-service/internal/handlers"
	"github.com/pantryscan/scan-service/internal/history"
	"github.com/pantryscan/scan-service/internal/httpx"
	"github.com/pantryscan/scan-service/internal/middleware"
	"github.com/pantryscan/scan-service/internal/offapi"
	"github.com/pantryscan/scan-service/internal/product"
	"github.com/pantryscan/scan-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting scan service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanup, err := telemetry.Init(ctx, telemetry.GetConfigFromEnv())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	store, closeStore, err := openHistoryStore(ctx, cfg.History)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.History.Backend).Msg("Failed to open history store")
	}
	defer closeStore()

	logger.Info().Str("backend", cfg.History.Backend).Msg("History store ready")

	fetcher := offapi.NewClient(offapi.Config{
		Transport: httpx.Config{
			RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
			MaxConcurrent:     cfg.Fetch.MaxConcurrent,
			MaxRetries:        cfg.Fetch.MaxRetries,
			InitialBackoffMs:  cfg.Fetch.InitialBackoffMs,
			MaxBackoffMs:      cfg.Fetch.MaxBackoffMs,
			TimeoutSeconds:    cfg.Fetch.TimeoutSeconds,
		},
	})

	collection := product.NewCollection(ctx, product.Config{
		Fetcher:        fetcher,
		History:        store,
		Filter:         barcode.CategoryFromString(cfg.Fetch.Category),
		PrefetchWindow: cfg.Fetch.PrefetchWindow,
	})

	if err := collection.LoadHistory(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to load scan history")
	}

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)
	router.Use(middleware.RateLimitMiddleware())

	router.GET("/health", handlers.HealthCheck(collection))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ph := handlers.NewProductHandler(collection)
	products := router.Group("/products")
	{
		products.GET("", ph.ListProducts)
		products.DELETE("", ph.ResetHistory)
		products.GET("/:barcode", ph.GetProduct)
		products.POST("/:barcode", ph.ScanProduct)
		products.DELETE("/:barcode", ph.DeleteProduct)
		products.POST("/:barcode/reload", ph.ReloadProduct)
		products.POST("/:barcode/comment", ph.SetComment)
		products.PUT("/:barcode/local", ph.SetLocal)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

// openHistoryStore builds the configured history backend
func openHistoryStore(ctx context.Context, cfg config.HistoryConfig) (product.HistoryStore, func(), error) {
	switch cfg.Backend {
	case "", "file":
		store, err := history.NewFileStore(cfg.BasePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case "sqlite":
		store, err := history.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("postgres backend requires DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store := history.NewPostgresStore(pool, cfg.Device)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "scan-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
