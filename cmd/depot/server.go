package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devdepot/depot/internal/artifact"
	"github.com/devdepot/depot/internal/config"
	"github.com/devdepot/depot/internal/gateway/httpapi"
	"github.com/devdepot/depot/internal/maintenance"
	"github.com/devdepot/depot/internal/observability"
	"github.com/devdepot/depot/internal/ratelimit"
	"github.com/devdepot/depot/internal/secret"
	"github.com/devdepot/depot/internal/storage"
	pgstore "github.com/devdepot/depot/internal/storage/postgres"
	sqlitestore "github.com/devdepot/depot/internal/storage/sqlite"
	"github.com/devdepot/depot/internal/workspace"
	goutils "github.com/jkaninda/go-utils"
)

var (
	serverConfigPath string
	serverPort       string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API server",
	RunE:  runServer,
}

func init() {
	// Register flags on both root and server so that
	// `depot --config path` and `depot server --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serverCmd} {
		cmd.Flags().StringVar(&serverConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&serverPort, "port", "", "override HTTP listen port (e.g. :8080)")
	}
}

// runServer starts depot in server mode: storage, services, and the HTTP
// API gateway.
func runServer(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("DEPOT_CONFIG", serverConfigPath))
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if serverPort != "" {
		if cfg.HTTP == nil {
			cfg.HTTP = &config.HTTPConfig{}
		}
		cfg.HTTP.ListenAddr = serverPort
	}

	logger.Info("starting depot server",
		slog.String("config", serverConfigPath),
		slog.String("driver", cfg.StorageDriverName()),
	)

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Throttles live in the services; the HTTP layer cannot bypass them.
	revealLimiter := ratelimit.NewLimiter(ratelimit.Config{
		Requests: cfg.RateLimits.RevealLimit(),
		Window:   time.Minute,
	})
	searchLimiter := ratelimit.NewLimiter(ratelimit.Config{
		Requests: cfg.RateLimits.SearchLimit(),
		Window:   time.Hour,
	})

	artifactSvc := artifact.NewService(store.Artifacts(), store.Tags(), searchLimiter, logger)
	secretSvc := secret.NewService(store.Secrets(), revealLimiter, logger)
	workspaceSvc := workspace.NewService(store.Workspaces(), artifactSvc, store.Artifacts(), store.Tags(), secretSvc, logger)

	// Observability (optional).
	var metrics *observability.MetricsCollector
	var health *observability.HealthChecker
	if cfg.Observability != nil {
		if cfg.Observability.Metrics != nil && cfg.Observability.Metrics.Enabled {
			metrics = observability.NewMetricsCollector()
		}
		health = observability.NewHealthChecker(logger)
		if cfg.Observability.Health != nil && cfg.Observability.Health.IncludeDB {
			health.AddCheck("database", store.Ping)
		}
	}

	// Background tag pruning (optional).
	if cfg.Maintenance != nil && cfg.Maintenance.TagPruneSchedule != "" {
		pruner := maintenance.NewPruner(store, cfg.Maintenance.TagPruneSchedule, logger)
		stopPruner, err := pruner.Start(ctx)
		if err != nil {
			return err
		}
		defer stopPruner()
	}

	httpCfg := httpapi.Config{
		ListenAddr:     cfg.HTTP.Addr(),
		EnableDocs:     cfg.HTTP != nil && cfg.HTTP.EnableDocs,
		APIKeys:        apiKeys(cfg),
		MaxRequestSize: cfg.HTTP.MaxRequestSize(),
		HealthChecker:  health,
		Metrics:        metrics,
	}
	if metrics != nil {
		httpCfg.MetricsRegistry = metrics.Registry
		if cfg.Observability != nil {
			httpCfg.MetricsPath = cfg.Observability.Metrics.MetricsPath()
		}
	}
	gw := httpapi.NewGateway(httpCfg, workspaceSvc, artifactSvc, secretSvc, logger)

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	// Wait for signal or gateway error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return gw.Stop(shutdownCtx)
}

// openStore builds the configured storage backend. SQLite is the default:
// a bare binary starts with a file under the data dir and no extra setup.
func openStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.StorageDriverName() {
	case storage.DriverPostgres:
		pg := cfg.Storage.Postgres
		db, err := pgstore.Open(pgstore.Config{
			DSN:             pg.DSN,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: pg.ConnMaxLifetime(),
		}, logger)
		if err != nil {
			return nil, err
		}
		return pgstore.NewStore(db), nil
	default:
		sqliteCfg := sqlitestore.Config{Path: cfg.DatabasePath()}
		if cfg.Storage != nil && cfg.Storage.SQLite != nil {
			if cfg.Storage.SQLite.Path != "" {
				sqliteCfg.Path = cfg.Storage.SQLite.Path
			}
			sqliteCfg.JournalMode = cfg.Storage.SQLite.JournalMode
		}
		return sqlitestore.Open(sqliteCfg, logger)
	}
}

// apiKeys returns the API key → owner ID mapping, already merged with the
// DEPOT_API_KEYS env override by config.Load.
func apiKeys(cfg *config.Config) map[string]string {
	if cfg.HTTP == nil {
		return nil
	}
	return cfg.HTTP.APIKeyOwnerMapping
}
