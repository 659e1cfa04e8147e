package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"github.com/warp/tracker/api"
	"github.com/warp/tracker/config"
	"github.com/warp/tracker/generic"
	"github.com/warp/tracker/metrics"
)

func serveCommand() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP server",
		Flags: flags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("TRACKER_PORT"),
			Destination: &cfg.Port,
			Value:       cfg.Port,
			Usage:       "HTTP server port",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("TRACKER_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Value:       cfg.CORSOrigins,
			Usage:       "Comma-separated allowed CORS origins",
		},
		&cli.DurationFlag{
			Name:        "drain-timeout",
			Category:    "Server:",
			Sources:     cli.EnvVars("TRACKER_DRAIN_TIMEOUT"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout",
		},
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Server:",
			Sources:     cli.EnvVars("TRACKER_LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Log level: debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:        "metrics",
			Category:    "Server:",
			Sources:     cli.EnvVars("TRACKER_METRICS_ENABLED"),
			Destination: &cfg.MetricsEnabled,
			Value:       cfg.MetricsEnabled,
			Usage:       "Expose Prometheus metrics at /metrics",
		},
		&cli.StringFlag{
			Name:        "seed-scenario",
			Category:    "Server:",
			Sources:     cli.EnvVars("TRACKER_SEED_SCENARIO"),
			Destination: &cfg.SeedScenario,
			Usage:       "Load a demo scenario for the demo owner at startup",
		},

		// ── Datastore ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "datastore",
			Category:    "Datastore:",
			Sources:     cli.EnvVars("TRACKER_DATASTORE"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Datastore backend: memory, sqlite or mongo",
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Category:    "Datastore:",
			Sources:     cli.EnvVars("TRACKER_SQLITE_PATH"),
			Destination: &cfg.SQLitePath,
			Value:       cfg.SQLitePath,
			Usage:       "SQLite database path; \":memory:\" for an in-memory database",
		},
		&cli.StringFlag{
			Name:        "mongo-uri",
			Category:    "Datastore:",
			Sources:     cli.EnvVars("TRACKER_MONGO_URI"),
			Destination: &cfg.MongoURI,
			Value:       cfg.MongoURI,
			Usage:       "MongoDB connection URI",
		},
		&cli.StringFlag{
			Name:        "mongo-database",
			Category:    "Datastore:",
			Sources:     cli.EnvVars("TRACKER_MONGO_DATABASE"),
			Destination: &cfg.MongoDatabase,
			Value:       cfg.MongoDatabase,
			Usage:       "MongoDB database name",
		},

		// ── Indexes ───────────────────────────────────────────────
		&cli.BoolFlag{
			Name:        "require-indexes",
			Category:    "Indexes:",
			Sources:     cli.EnvVars("TRACKER_REQUIRE_INDEXES"),
			Destination: &cfg.RequireIndexes,
			Usage:       "Refuse range queries no composite index serves (they fall back to owner scans)",
		},
		&cli.BoolFlag{
			Name:        "provision-indexes",
			Category:    "Indexes:",
			Sources:     cli.EnvVars("TRACKER_PROVISION_INDEXES"),
			Destination: &cfg.ProvisionIndexes,
			Value:       cfg.ProvisionIndexes,
			Usage:       "Create the composite indexes at startup",
		},
		&cli.StringFlag{
			Name:        "index-manifest",
			Category:    "Indexes:",
			Sources:     cli.EnvVars("TRACKER_INDEX_MANIFEST"),
			Destination: &cfg.IndexManifest,
			Usage:       "JSON index manifest provisioned in addition to the built-in indexes",
		},
		&cli.BoolFlag{
			Name:        "auto-provision",
			Category:    "Indexes:",
			Sources:     cli.EnvVars("TRACKER_AUTO_PROVISION"),
			Destination: &cfg.AutoProvision,
			Usage:       "Create indexes that degraded queries needed",
		},
		&cli.DurationFlag{
			Name:        "provision-interval",
			Category:    "Indexes:",
			Sources:     cli.EnvVars("TRACKER_PROVISION_INTERVAL"),
			Destination: &cfg.ProvisionInterval,
			Value:       cfg.ProvisionInterval,
			Usage:       "How often auto-provisioning runs",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           cfg.Level(),
	})
	log.SetDefault(logger)

	ds, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer ds.Close()

	specs, err := indexSpecs(cfg.IndexManifest)
	if err != nil {
		return err
	}
	if cfg.ProvisionIndexes {
		if err := generic.EnsureIndexes(ctx, ds.Store, specs); err != nil {
			return fmt.Errorf("provision indexes: %w", err)
		}
		logger.Info("Provisioned indexes", "count", len(specs), "datastore", cfg.DatastoreType)
	}

	store := ds.Store
	observers := []generic.FallbackObserver{generic.LogFallbacks(logger)}
	if cfg.MetricsEnabled {
		store = metrics.Wrap(store)
		observers = append(observers, metrics.FallbackObserver())
	}

	scheduler := api.NewIndexScheduler(store)
	scheduler.CheckInterval = cfg.ProvisionInterval
	scheduler.Enabled = cfg.AutoProvision
	scheduler.Logger = logger
	if cfg.AutoProvision {
		observers = append(observers, scheduler)
	}

	handler := api.NewHandler(store, generic.Observers(observers...))
	handler.Logger = logger
	handler.Scheduler = scheduler

	if cfg.SeedScenario != "" {
		if err := handler.LoadScenarioByID(ctx, cfg.SeedScenario, api.DefaultScenarioOwner); err != nil {
			return fmt.Errorf("seed scenario %s: %w", cfg.SeedScenario, err)
		}
	}

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins(),
		Metrics:        cfg.MetricsEnabled,
		AccessLog:      true,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()
	defer scheduler.Stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", server.Addr, "datastore", cfg.DatastoreType, "require_indexes", cfg.RequireIndexes)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Error("Shutdown error", "err", err)
	}
	logger.Info("Server stopped")
	return nil
}
