// Package main is the entrypoint for the meld API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openmeld/meld/internal/api"
	"github.com/openmeld/meld/internal/config"
	"github.com/openmeld/meld/internal/jobs"
	"github.com/openmeld/meld/internal/metrics"
	"github.com/openmeld/meld/internal/orgs"
	"github.com/openmeld/meld/internal/recommend"
	"github.com/openmeld/meld/internal/registry"
	"github.com/openmeld/meld/internal/scheduler"
	"github.com/openmeld/meld/internal/tenant"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("starting meld server")

	cfg := config.LoadServerConfig()

	topology, err := tenant.LoadConfig(cfg.TenantsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.TenantsFile).Msg("failed to load tenant topology")
		return 1
	}

	tenants, err := tenant.NewRegistry(ctx, topology, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open tenant databases")
		return 1
	}
	defer tenants.Close()

	for _, t := range tenants.Tenants() {
		d, err := tenants.DBFor(t.Name)
		if err != nil {
			logger.Fatal().Err(err).Str("tenant", t.Name).Msg("failed to resolve tenant database")
			return 1
		}
		if err := d.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Str("tenant", t.Name).Msg("failed to run database migrations")
			return 1
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	queue := jobs.NewQueue(rdb, jobs.DefaultQueueConfig(), logger)
	if err := queue.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
		return 1
	}

	reg := registry.NewService(tenants, logger)
	org := orgs.NewService(tenants, logger)

	var oracle recommend.Oracle
	if cfg.GenderAPIURL != "" {
		oracle = recommend.NewHTTPOracle(cfg.GenderAPIURL, cfg.GenderAPIKey)
	}
	rec := recommend.NewService(tenants, reg, org, oracle, logger)

	sched := scheduler.NewService(tenants, queue, logger)

	m := metrics.New()

	// The server promotes due jobs so parked one-shot tasks still fire
	// when no worker carries a poller.
	poller := scheduler.NewPoller(queue, tenants.QueueNames(), scheduler.DefaultPollerConfig(), logger)
	poller.SetObserver(m)
	if err := poller.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start job poller")
		return 1
	}
	defer poller.Stop()

	router, err := api.NewRouter(&cfg, api.Deps{
		Tenants:   tenants,
		Registry:  reg,
		Orgs:      org,
		Recommend: rec,
		Queue:     queue,
		Scheduler: sched,
		Metrics:   m,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			return 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return 1
	}
	logger.Info().Msg("server stopped")
	return 0
}
