package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmeld/meld/internal/db"
	"github.com/openmeld/meld/internal/registry"
	"github.com/openmeld/meld/internal/tenant"
	"github.com/rs/zerolog"
)

// IndividualsHandler handles identity and individual endpoints.
type IndividualsHandler struct {
	tenants  *tenant.Registry
	registry *registry.Service
	pageSize int
	logger   zerolog.Logger
}

// NewIndividualsHandler creates a new IndividualsHandler.
func NewIndividualsHandler(tenants *tenant.Registry, reg *registry.Service, pageSize int, logger zerolog.Logger) *IndividualsHandler {
	return &IndividualsHandler{
		tenants:  tenants,
		registry: reg,
		pageSize: pageSize,
		logger:   logger.With().Str("component", "individuals_handler").Logger(),
	}
}

// RegisterRoutes registers individual and identity routes.
func (h *IndividualsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/individuals", h.List)
	r.GET("/individuals/:mk", h.Get)
	r.PATCH("/individuals/:mk/profile", h.UpdateProfile)
	r.POST("/individuals/:mk/lock", h.Lock)
	r.DELETE("/individuals/:mk/lock", h.Unlock)
	r.POST("/individuals/:mk/review", h.Review)

	r.POST("/identities", h.AddIdentity)
	r.DELETE("/identities/:uuid", h.DeleteIdentity)
	r.POST("/identities/:uuid/move", h.MoveIdentity)

	r.POST("/merge", h.Merge)
	r.POST("/unmerge", h.Unmerge)
}

// List returns a page of individuals.
// GET /v1/individuals
func (h *IndividualsHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	d, err := h.tenants.DB(ctx)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	page, pageSize, err := pageParams(c, h.pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	filter := db.IndividualFilter{Term: c.Query("term")}
	if filter.IsLocked, err = boolQuery(c, "is_locked"); err != nil {
		fail(c, h.logger, err)
		return
	}
	if filter.IsBot, err = boolQuery(c, "is_bot"); err != nil {
		fail(c, h.logger, err)
		return
	}
	if expr := c.Query("last_updated"); expr != "" {
		if filter.LastUpdated, err = db.ParseDateFilter(expr); err != nil {
			fail(c, h.logger, err)
			return
		}
	}
	if expr := c.Query("last_reviewed"); expr != "" {
		if filter.LastReviewed, err = db.ParseDateFilter(expr); err != nil {
			fail(c, h.logger, err)
			return
		}
	}

	order := db.IndividualOrder(c.DefaultQuery("order", string(db.OrderByMK)))
	result, err := d.ListIndividuals(ctx, filter, order, page, pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get returns one individual with its identities and enrollments.
// GET /v1/individuals/:mk
func (h *IndividualsHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	d, err := h.tenants.DB(ctx)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ind, err := d.GetIndividual(ctx, c.Param("mk"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ind)
}

type addIdentityRequest struct {
	Source   string `json:"source" binding:"required"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	// UUID optionally attaches the identity to an existing individual.
	UUID string `json:"uuid"`
}

// AddIdentity registers an identity, creating an individual when no
// parent uuid is given.
// POST /v1/identities
func (h *IndividualsHandler) AddIdentity(c *gin.Context) {
	var req addIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, err := h.registry.AddIdentity(c.Request.Context(), req.Source, req.Name, req.Email, req.Username, req.UUID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, identity)
}

// DeleteIdentity removes an identity; deleting the anchor identity
// removes the whole individual.
// DELETE /v1/identities/:uuid
func (h *IndividualsHandler) DeleteIdentity(c *gin.Context) {
	ind, err := h.registry.DeleteIdentity(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if ind == nil {
		c.JSON(http.StatusOK, gin.H{"individual": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"individual": ind})
}

type moveIdentityRequest struct {
	To string `json:"to" binding:"required"`
}

// MoveIdentity moves an identity to the individual anchored at to.
// POST /v1/identities/:uuid/move
func (h *IndividualsHandler) MoveIdentity(c *gin.Context) {
	var req moveIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ind, err := h.registry.MoveIdentity(c.Request.Context(), c.Param("uuid"), req.To)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ind)
}

type mergeRequest struct {
	FromUUIDs []string `json:"from_uuids" binding:"required,min=1"`
	ToUUID    string   `json:"to_uuid" binding:"required"`
}

// Merge absorbs the individuals owning from_uuids into the one owning
// to_uuid.
// POST /v1/merge
func (h *IndividualsHandler) Merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ind, err := h.registry.Merge(c.Request.Context(), req.FromUUIDs, req.ToUUID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ind)
}

type unmergeRequest struct {
	UUIDs []string `json:"uuids" binding:"required,min=1"`
}

// Unmerge splits each identity out into its own individual.
// POST /v1/unmerge
func (h *IndividualsHandler) Unmerge(c *gin.Context) {
	var req unmergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inds, err := h.registry.UnmergeIdentities(c.Request.Context(), req.UUIDs)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"individuals": inds})
}

type updateProfileRequest struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	Gender      *string `json:"gender"`
	GenderAcc   *int    `json:"gender_acc"`
	IsBot       *bool   `json:"is_bot"`
	CountryCode *string `json:"country_code"`
}

// UpdateProfile updates profile fields of an individual. Absent fields
// are untouched; empty strings clear.
// PATCH /v1/individuals/:mk/profile
func (h *IndividualsHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update := registry.ProfileUpdate{
		Name:        req.Name,
		Email:       req.Email,
		Gender:      req.Gender,
		GenderAcc:   req.GenderAcc,
		IsBot:       req.IsBot,
		CountryCode: req.CountryCode,
	}
	ind, err := h.registry.UpdateProfile(c.Request.Context(), c.Param("mk"), update)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ind)
}

// Lock protects an individual from mutations.
// POST /v1/individuals/:mk/lock
func (h *IndividualsHandler) Lock(c *gin.Context) {
	ind, err := h.registry.Lock(c.Request.Context(), c.Param("mk"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ind)
}

// Unlock releases a locked individual.
// DELETE /v1/individuals/:mk/lock
func (h *IndividualsHandler) Unlock(c *gin.Context) {
	ind, err := h.registry.Unlock(c.Request.Context(), c.Param("mk"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ind)
}

type reviewRequest struct {
	Datetime *time.Time `json:"datetime"`
}

// Review marks an individual as reviewed, now or at the given time.
// POST /v1/individuals/:mk/review
func (h *IndividualsHandler) Review(c *gin.Context) {
	var req reviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	at := time.Time{}
	if req.Datetime != nil {
		at = *req.Datetime
	}
	ind, err := h.registry.Review(c.Request.Context(), c.Param("mk"), at)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ind)
}
