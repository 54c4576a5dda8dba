package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/devmetrics/internal/adapter/driven/github"
	sqliteadapter "github.com/ericfisherdev/devmetrics/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/devmetrics/internal/adapter/driving/http"
	"github.com/ericfisherdev/devmetrics/internal/adapter/driving/ws"
	"github.com/ericfisherdev/devmetrics/internal/application"
	"github.com/ericfisherdev/devmetrics/internal/config"
	"github.com/ericfisherdev/devmetrics/internal/resilience"
	"github.com/ericfisherdev/devmetrics/internal/telemetry"
)

const memoryDBPath = ":memory:"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"sync_interval", cfg.SyncInterval,
		"sync_concurrency", cfg.SyncConcurrency,
		"metrics_window", cfg.MetricsWindow,
		"github_username", cfg.GitHubUsername,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	var db *sqliteadapter.DB
	if cfg.DBPath == memoryDBPath {
		db, err = sqliteadapter.NewMemoryDB(ctx, "devmetrics")
	} else {
		db, err = sqliteadapter.NewDB(ctx, cfg.DBPath)
	}
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	logger.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	logger.Info("migrations complete")

	// 5. Metrics registry.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.New(registry)

	// 6. Wire adapters.
	store := sqliteadapter.NewStore(db)
	accounts := sqliteadapter.NewAccountRepo(db, cfg.SecretKey)
	if cfg.SecretKey == nil {
		logger.Warn("DEVMETRICS_SECRET_KEY not set, accounts cannot be stored or synced")
	}

	policy := resilience.New(
		resilience.WithMaxRetries(cfg.MaxRetries),
		resilience.WithLogger(logger),
		resilience.WithObserver(metrics),
	)
	factory := githubadapter.NewFactory(githubadapter.Options{
		Policy:            policy,
		RequestsPerSecond: cfg.RequestsPerSecond,
		CommitStats:       cfg.CommitStats,
		Logger:            logger,
	})
	clients := application.NewClientProvider(factory)
	hub := ws.NewHub(logger)

	// 7. Create services.
	syncSvc := application.NewSyncService(accounts, store, clients,
		application.WithSyncNotifier(hub),
		application.WithSyncTelemetry(metrics),
		application.WithSyncLogger(logger),
	)
	metricsSvc := application.NewMetricsService(store,
		application.WithMetricsNotifier(hub),
		application.WithMetricsTelemetry(metrics),
		application.WithMetricsLogger(logger),
		application.WithMetricsWindow(cfg.MetricsWindow),
	)
	accountSvc := application.NewAccountService(accounts, store, clients, logger)

	// 8. Store the bootstrap account from env credentials.
	if cfg.HasGitHubCredentials() {
		acct, err := accountSvc.Add(ctx, application.AddAccountRequest{Login: cfg.GitHubUsername, Token: cfg.GitHubToken})
		if err != nil {
			logger.Warn("bootstrap account not stored", "login", cfg.GitHubUsername, "error", err)
		} else {
			logger.Info("bootstrap account stored", "account_id", acct.ID, "login", acct.Login)
		}
	}

	// 9. Start the scheduler.
	scheduler := application.NewScheduler(accounts, syncSvc, metricsSvc, cfg.SyncInterval, cfg.SyncConcurrency, logger)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(ctx)
	}()

	// 10. HTTP server.
	apiHandler := httphandler.NewHandler(accountSvc, syncSvc, metricsSvc, logger)
	handler := httphandler.NewServeMux(apiHandler, logger, httphandler.RouterOptions{
		Notifications: hub,
		Gatherer:      registry,
		Registerer:    registry,
		Cycles:        scheduler,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Sync endpoints respond only when their run ends.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("devmetrics started",
		"listen_addr", cfg.ListenAddr,
		"sync_interval", cfg.SyncInterval,
	)

	// 11. Wait for shutdown signal or a server failure.
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("http server error", "error", err)
		stop()
	}
	logger.Info("shutting down")

	// 12. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before the shutdown deadline")
	}

	logger.Info("shutdown complete")
	return nil
}
