package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmeld/meld/internal/api/handlers"
	"github.com/openmeld/meld/internal/api/middleware"
	"github.com/openmeld/meld/internal/config"
	"github.com/openmeld/meld/internal/jobs"
	"github.com/openmeld/meld/internal/metrics"
	"github.com/openmeld/meld/internal/orgs"
	"github.com/openmeld/meld/internal/recommend"
	"github.com/openmeld/meld/internal/registry"
	"github.com/openmeld/meld/internal/scheduler"
	"github.com/openmeld/meld/internal/tenant"
	"github.com/rs/zerolog"
)

// Deps bundles everything the router serves.
type Deps struct {
	Tenants   *tenant.Registry
	Registry  *registry.Service
	Orgs      *orgs.Service
	Recommend *recommend.Service
	Queue     *jobs.Queue
	Scheduler *scheduler.Service
	Metrics   *metrics.Metrics
}

// NewRouter assembles the HTTP API. Probes and metrics sit outside the
// tenant middleware; everything else lives under /v1 and requires
// tenant resolution.
func NewRouter(cfg *config.ServerConfig, deps Deps, logger zerolog.Logger) (*gin.Engine, error) {
	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	r.Use(rateLimiter)

	if deps.Metrics != nil {
		r.Use(middleware.Requests(deps.Metrics))
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	health := handlers.NewHealthHandler(deps.Tenants, deps.Queue, logger)
	health.RegisterRoutes(r)

	v1 := r.Group("/v1")
	v1.Use(middleware.TenantResolver(deps.Tenants))

	handlers.NewIndividualsHandler(deps.Tenants, deps.Registry, cfg.PageSize, logger).RegisterRoutes(v1)
	handlers.NewOrgsHandler(deps.Tenants, deps.Orgs, cfg.PageSize, logger).RegisterRoutes(v1)
	handlers.NewRecommendationsHandler(deps.Tenants, deps.Recommend, cfg.PageSize, logger).RegisterRoutes(v1)
	handlers.NewJobsHandler(deps.Tenants, deps.Queue, deps.Scheduler, cfg.PageSize, logger).RegisterRoutes(v1)
	handlers.NewTxLogHandler(deps.Tenants, cfg.PageSize, logger).RegisterRoutes(v1)
	handlers.NewCountriesHandler(deps.Tenants, cfg.PageSize, logger).RegisterRoutes(v1)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r, nil
}
