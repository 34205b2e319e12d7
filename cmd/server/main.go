package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/ledgerimport/internal/config"
	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/JonMunkholm/ledgerimport/internal/database"
	"github.com/JonMunkholm/ledgerimport/internal/extraction"
	"github.com/JonMunkholm/ledgerimport/internal/ledger"
	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/JonMunkholm/ledgerimport/internal/staging"
	"github.com/JonMunkholm/ledgerimport/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"staging_backend", cfg.Staging.Backend,
		"ledger_backend", cfg.Ledger.Backend,
		"documents_enabled", cfg.Extraction.URL != "",
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.NeedsDatabase() {
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	var redisClient redis.UniversalClient
	if cfg.Staging.Backend == staging.BackendRedis {
		redisClient, err = staging.DialRedis(ctx, cfg.Staging.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	stagingOpts := staging.Options{
		Backend:   cfg.Staging.Backend,
		Redis:     redisClient,
		Retention: cfg.Staging.Retention,
	}
	if pool != nil {
		stagingOpts.DB = pool
	}
	store, err := staging.New(stagingOpts)
	if err != nil {
		slog.Error("failed to create staging store", "error", err)
		os.Exit(1)
	}

	txns, presets, audit := ledgerStores(cfg, pool)

	coordOpts := core.Options{
		Staging:      store,
		Transactions: txns,
		Presets:      presets,
		Audit:        audit,
		Limiter:      core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		PollInterval: cfg.Poll.Interval,
		PollAttempts: cfg.Poll.Attempts,
		MaxRows:      cfg.Upload.MaxRows,
	}
	if cfg.Extraction.URL != "" {
		coordOpts.Dispatcher = extraction.NewClient(extraction.Config{
			URL:         cfg.Extraction.URL,
			Token:       cfg.Extraction.Token,
			CallbackURL: cfg.Extraction.CallbackURL,
			Timeout:     cfg.Extraction.Timeout,
		}, nil)
	}

	coord, err := core.NewCoordinator(coordOpts)
	if err != nil {
		slog.Error("failed to create coordinator", "error", err)
		os.Exit(1)
	}

	links := extraction.NewLinkFetcher(&http.Client{Timeout: cfg.Extraction.Timeout}, cfg.Extraction.LinkMaxBytes).
		AllowHosts(cfg.Extraction.LinkHosts...)

	server := web.NewServer(cfg, web.Deps{
		Coordinator:  coord,
		Staging:      store,
		Transactions: txns,
		Presets:      presets,
		Audit:        audit,
		Links:        links,
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go coord.StartPruneScheduler(jobCtx, core.PruneConfig{
		Retention:     cfg.Session.Retention,
		CheckInterval: cfg.Session.PruneInterval,
	})

	// Redis expires entries itself; the other backends need sweeping
	if evictor, ok := store.(staging.Evictor); ok {
		go staging.NewSweeper(evictor, cfg.Staging.Retention, cfg.Staging.SweepInterval).Run(jobCtx)
	}

	// Graceful shutdown; main returns only after done is closed
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		shutdown(shutdownCtx, server, coord)
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

// ledgerStores picks the Postgres or in-process stores for cfg.Ledger.Backend.
func ledgerStores(cfg *config.Config, pool *pgxpool.Pool) (ledger.Store, ledger.PresetStore, ledger.AuditStore) {
	if cfg.Ledger.Backend == ledger.BackendMemory {
		slog.Warn("ledger backend is memory; committed transactions will not survive a restart")
		return ledger.NewMemoryStore(), ledger.NewMemoryPresetStore(), ledger.NewMemoryAuditStore()
	}
	return ledger.NewPostgresStore(pool), ledger.NewPostgresPresetStore(pool), ledger.NewPostgresAuditStore(pool)
}
