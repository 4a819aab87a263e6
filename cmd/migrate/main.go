// Package main provides the database migration CLI tool. It applies
// pending migrations to every tenant database in the topology.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmeld/meld/internal/db"
	"github.com/openmeld/meld/internal/tenant"
)

func main() {
	var (
		dbURL       = flag.String("db", "", "Base database URL without a database path (or set MELD_DATABASE_URL)")
		tenantsFile = flag.String("tenants", "", "Tenant topology file (or set MELD_TENANTS_FILE)")
		only        = flag.String("tenant", "", "Migrate a single tenant instead of all of them")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	url := *dbURL
	if url == "" {
		url = os.Getenv("MELD_DATABASE_URL")
	}
	if url == "" {
		logger.Fatal().Msg("database URL required: use -db flag or set MELD_DATABASE_URL")
	}

	topologyPath := *tenantsFile
	if topologyPath == "" {
		topologyPath = os.Getenv("MELD_TENANTS_FILE")
	}
	if topologyPath == "" {
		topologyPath = "tenants.yaml"
	}

	topology, err := tenant.LoadConfig(topologyPath)
	if err != nil {
		logger.Fatal().Err(err).Str("file", topologyPath).Msg("failed to load tenant topology")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, t := range topology.Tenants {
		if *only != "" && t.Name != *only {
			continue
		}
		migrateTenant(ctx, url, t, logger)
	}
}

func migrateTenant(ctx context.Context, baseURL string, t tenant.Tenant, logger zerolog.Logger) {
	url := strings.TrimSuffix(baseURL, "/") + "/" + t.Database

	cfg := db.DefaultConfig(url)
	cfg.MaxConns = 5
	cfg.MinConns = 1

	database, err := db.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("tenant", t.Name).Msg("failed to connect to database")
	}
	defer database.Close()

	logger.Info().Str("tenant", t.Name).Str("database", t.Database).Msg("running migrations")
	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Str("tenant", t.Name).Msg("migration failed")
	}
	logger.Info().Str("tenant", t.Name).Msg("migrations complete")
}
