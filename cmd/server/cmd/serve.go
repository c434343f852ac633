package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/subjectboard/server/internal/api"
	"github.com/subjectboard/server/internal/api/handlers"
	"github.com/subjectboard/server/internal/api/middleware"
	"github.com/subjectboard/server/internal/audit"
	"github.com/subjectboard/server/internal/config"
	"github.com/subjectboard/server/internal/domain/content"
	"github.com/subjectboard/server/internal/jobs"
	"github.com/subjectboard/server/internal/metrics"
	"github.com/subjectboard/server/internal/realtime"
	"github.com/subjectboard/server/internal/storage"
	"github.com/subjectboard/server/internal/storage/postgres"
	"github.com/subjectboard/server/internal/storage/sqlite"
	"github.com/subjectboard/server/internal/telemetry"
)

const (
	shutdownTimeout          = 10 * time.Second
	idempotencySweepInterval = time.Hour
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the subjectboard HTTP server",
		Long: `Start the subjectboard HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Open the postgres or sqlite store and apply pending migrations
- Serve the content, group, audit and stream endpoints
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start against a local sqlite file
  DATABASE_DRIVER=sqlite DATABASE_PATH=./board.db server serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "server port (default: 8080)")
	return cmd
}

// backend is an opened store plus the driver specific pieces serve wires
// around it.
type backend struct {
	storage.Repository
	// pool is nil for sqlite.
	pool      *pgxpool.Pool
	collector *metrics.DBCollector
	migration handlers.MigrationStatus
}

func openBackend(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*backend, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := sqlite.OpenDB(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		store, err := sqlite.NewStore(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info().Str("path", cfg.Database.Path).Msg("sqlite store opened")
		return &backend{Repository: store, collector: metrics.NewSQLDBCollector(db)}, nil

	default:
		if cfg.Database.AutoMigrate {
			if err := postgres.MigrateUp(cfg.Database.URL); err != nil {
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info().Msg("database migrations applied")
		}

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := postgres.Connect(connectCtx, cfg.Database.URL, cfg.Database.MaxConnections)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate && cfg.Audit.Delivery == config.AuditDeliveryRiver {
			if err := migrateRiver(connectCtx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		store, err := postgres.NewStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		url := cfg.Database.URL
		return &backend{
			Repository: store,
			pool:       pool,
			collector:  metrics.NewDBCollector(pool),
			migration: func(context.Context) (uint, bool, bool, error) {
				return postgres.MigrationVersion(url)
			},
		}, nil
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("driver", cfg.Database.Driver).Msg("starting subjectboard server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer, logger)

	sink := audit.StoreSink(store.Audit())
	var riverClient interface {
		Start(ctx context.Context) error
		Stop(ctx context.Context) error
	}
	if cfg.Audit.Delivery == config.AuditDeliveryRiver {
		riverLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
		client, err := jobs.NewClient(store.pool, jobs.NewWorkers(store.Audit()), riverLogger,
			[]rivertype.Hook{metrics.NewRiverMetricsHook()})
		if err != nil {
			return fmt.Errorf("create river client: %w", err)
		}
		sink = jobs.NewAuditSink(client)
		riverClient = client
	}
	auditor := audit.NewLogger(logger, sink, cfg.Audit.WriteTimeout)

	service := content.NewService(store.Content(), auditor, hub, logger)

	health := handlers.NewHealthChecker(Version, GitCommit).
		WithCheck("database", handlers.DatabaseCheck(store)).
		WithCheck("realtime", handlers.SubscriberCheck(hub.SubscriberCount))
	if store.migration != nil {
		health.WithCheck("migrations", handlers.MigrationCheck(store.migration))
	}
	if riverClient != nil {
		health.WithCheck("job_queue", handlers.JobQueueCheck(store.pool))
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.Environment)
	defer limiter.Stop()

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(api.Deps{
			Config:      cfg,
			Logger:      logger,
			Content:     service,
			Audit:       store.Audit(),
			Stream:      realtime.NewStreamHandler(hub, cfg.Realtime.HeartbeatInterval),
			Health:      health,
			RateLimiter: limiter,
			Build:       buildInfo(),
		}),
		ReadTimeout:       10 * time.Second, // Total time to read request
		WriteTimeout:      30 * time.Second, // Streams clear their own deadline
		ReadHeaderTimeout: 5 * time.Second,  // Time to read headers
		MaxHeaderBytes:    1 << 20,          // 1 MB max header size
	}

	if riverClient != nil {
		// Shutdown stops River explicitly; a cancelled start context would hard stop it.
		if err := riverClient.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("river audit workers started")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		store.collector.Start(gctx, 15*time.Second)
		return nil
	})

	g.Go(func() error {
		service.RunIdempotencySweeper(gctx, idempotencySweepInterval)
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Streams only end when the hub closes, so close it before draining.
		hub.Close()
		err := server.Shutdown(shutdownCtx)
		store.collector.Stop()

		if riverClient != nil {
			if stopErr := riverClient.Stop(shutdownCtx); stopErr != nil {
				logger.Error().Err(stopErr).Msg("river workers shutdown error")
			}
		}
		return err
	})

	err = g.Wait()
	auditor.Wait()
	if err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
