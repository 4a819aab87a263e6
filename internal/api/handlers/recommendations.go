package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/recommend"
	"github.com/openmeld/meld/internal/tenant"
	"github.com/rs/zerolog"
)

// RecommendationsHandler handles recommendation and exclusion term
// endpoints.
type RecommendationsHandler struct {
	tenants   *tenant.Registry
	recommend *recommend.Service
	pageSize  int
	logger    zerolog.Logger
}

// NewRecommendationsHandler creates a new RecommendationsHandler.
func NewRecommendationsHandler(tenants *tenant.Registry, svc *recommend.Service, pageSize int, logger zerolog.Logger) *RecommendationsHandler {
	return &RecommendationsHandler{
		tenants:   tenants,
		recommend: svc,
		pageSize:  pageSize,
		logger:    logger.With().Str("component", "recommendations_handler").Logger(),
	}
}

// RegisterRoutes registers recommendation routes.
func (h *RecommendationsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/recommendations", h.List)
	r.POST("/recommendations/:id/apply", h.Apply)
	r.POST("/recommendations/:id/dismiss", h.Dismiss)

	r.GET("/exclusions", h.ListExclusions)
	r.POST("/exclusions", h.AddExclusions)
	r.DELETE("/exclusions", h.DeleteExclusions)
}

// List returns a page of recommendations of one kind.
// GET /v1/recommendations
func (h *RecommendationsHandler) List(c *gin.Context) {
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

	kind := models.RecommendationKind(c.Query("kind"))
	switch kind {
	case models.RecommendationAffiliation, models.RecommendationMerge, models.RecommendationGender:
	default:
		fail(c, h.logger, meld.InvalidValuef("unknown recommendation kind %q", kind))
		return
	}
	isApplied, err := boolQuery(c, "is_applied")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	pending, err := boolQuery(c, "pending")
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	result, err := d.ListRecommendations(ctx, kind, isApplied, pending != nil && *pending, page, pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Apply carries out a recommendation: enroll, merge or set gender.
// POST /v1/recommendations/:id/apply
func (h *RecommendationsHandler) Apply(c *gin.Context) {
	id, err := recommendationID(c)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if err := h.recommend.ApplyRecommendation(c.Request.Context(), id); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": id})
}

// Dismiss marks a recommendation as rejected so it is not suggested
// again.
// POST /v1/recommendations/:id/dismiss
func (h *RecommendationsHandler) Dismiss(c *gin.Context) {
	id, err := recommendationID(c)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if err := h.recommend.DismissRecommendation(c.Request.Context(), id); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dismissed": id})
}

// ListExclusions returns every stored exclusion term.
// GET /v1/exclusions
func (h *RecommendationsHandler) ListExclusions(c *gin.Context) {
	terms, err := h.recommend.ExclusionTerms(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"terms": terms})
}

type exclusionsRequest struct {
	Terms []string `json:"terms" binding:"required,min=1"`
}

// AddExclusions stores matching exclusion terms.
// POST /v1/exclusions
func (h *RecommendationsHandler) AddExclusions(c *gin.Context) {
	var req exclusionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.recommend.AddExclusionTerms(c.Request.Context(), req.Terms); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.Status(http.StatusCreated)
}

// DeleteExclusions removes matching exclusion terms.
// DELETE /v1/exclusions
func (h *RecommendationsHandler) DeleteExclusions(c *gin.Context) {
	var req exclusionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.recommend.DeleteExclusionTerms(c.Request.Context(), req.Terms); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
