package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmeld/meld/internal/tenant"
	"github.com/rs/zerolog"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes. Readiness checks
// every tenant database and the job queue.
type HealthHandler struct {
	tenants *tenant.Registry
	queue   Pinger
	logger  zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(tenants *tenant.Registry, queue Pinger, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		tenants: tenants,
		queue:   queue,
		logger:  logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterRoutes registers probe routes. These sit outside the tenant
// middleware so probes need no headers.
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/healthz", h.Live)
	r.GET("/readyz", h.Ready)
}

// Live always reports up.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready pings every tenant database and the queue.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{}
	healthy := true

	for _, t := range h.tenants.Tenants() {
		d, err := h.tenants.DBFor(t.Name)
		if err == nil {
			err = d.Ping(ctx)
		}
		if err != nil {
			h.logger.Warn().Err(err).Str("tenant", t.Name).Msg("tenant database unreachable")
			checks["db:"+t.Name] = err.Error()
			healthy = false
			continue
		}
		checks["db:"+t.Name] = "ok"
	}

	if err := h.queue.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("queue unreachable")
		checks["queue"] = err.Error()
		healthy = false
	} else {
		checks["queue"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"checks": checks})
}
