// Package main is the entrypoint for the meld job worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openmeld/meld/internal/config"
	"github.com/openmeld/meld/internal/importer"
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
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var queues []string

	rootCmd := &cobra.Command{
		Use:          "meld-worker",
		Short:        "meld job worker - drains the tenant job queues",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(queues)
		},
	}
	rootCmd.Flags().StringSliceVar(&queues, "queues", nil,
		"queues to drain (default: every queue in the tenant topology)")

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("meld worker %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func runWorker(queueFlags []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg := config.LoadWorkerConfig()

	topology, err := tenant.LoadConfig(cfg.TenantsFile)
	if err != nil {
		return fmt.Errorf("load tenant topology: %w", err)
	}
	tenants, err := tenant.NewRegistry(ctx, topology, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("open tenant databases: %w", err)
	}
	defer tenants.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	queue := jobs.NewQueue(rdb, jobs.DefaultQueueConfig(), logger)
	if err := queue.Ping(ctx); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	queues := queueFlags
	if len(queues) == 0 {
		queues = cfg.Queues
	}
	if len(queues) == 0 {
		queues = tenants.QueueNames()
	}

	reg := registry.NewService(tenants, logger)
	org := orgs.NewService(tenants, logger)

	var oracle recommend.Oracle
	if cfg.GenderAPIURL != "" {
		oracle = recommend.NewHTTPOracle(cfg.GenderAPIURL, cfg.GenderAPIKey)
	}
	rec := recommend.NewService(tenants, reg, org, oracle, logger)

	imp := importer.New(reg, org, logger)
	imp.RegisterBackend("file", importer.FileBackend{})
	if cfg.S3Endpoint != "" || cfg.S3Region != "" {
		s3b, err := importer.NewS3Backend(ctx, importer.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UseSSL:          cfg.S3UseSSL,
		})
		if err != nil {
			return fmt.Errorf("configure s3 backend: %w", err)
		}
		imp.RegisterBackend("s3", s3b)
	}

	workerCfg := jobs.DefaultWorkerConfig()
	if cfg.MaxJobDurationMins > 0 {
		workerCfg.MaxJobDuration = time.Duration(cfg.MaxJobDurationMins) * time.Minute
	}

	worker := jobs.NewWorker(queue, queues, workerCfg, logger)
	jobs.RegisterDefaultHandlers(worker, rec, imp)

	sched := scheduler.NewService(tenants, queue, logger)
	worker.SetNotifier(sched)

	m := metrics.New()
	worker.SetObserver(m)

	poller := scheduler.NewPoller(queue, tenants.QueueNames(), scheduler.DefaultPollerConfig(), logger)
	poller.SetObserver(m)
	if err := poller.Start(); err != nil {
		return fmt.Errorf("start job poller: %w", err)
	}
	defer poller.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("draining worker")
		cancel()
	}()

	logger.Info().Strs("queues", queues).Msg("worker starting")
	return worker.Run(ctx)
}
