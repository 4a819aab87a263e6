package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/orgs"
	"github.com/openmeld/meld/internal/tenant"
	"github.com/rs/zerolog"
)

// OrgsHandler handles organization, team, domain, alias and enrollment
// endpoints.
type OrgsHandler struct {
	tenants  *tenant.Registry
	orgs     *orgs.Service
	pageSize int
	logger   zerolog.Logger
}

// NewOrgsHandler creates a new OrgsHandler.
func NewOrgsHandler(tenants *tenant.Registry, svc *orgs.Service, pageSize int, logger zerolog.Logger) *OrgsHandler {
	return &OrgsHandler{
		tenants:  tenants,
		orgs:     svc,
		pageSize: pageSize,
		logger:   logger.With().Str("component", "orgs_handler").Logger(),
	}
}

// RegisterRoutes registers organization routes.
func (h *OrgsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/organizations", h.ListOrganizations)
	r.POST("/organizations", h.AddOrganization)
	r.GET("/organizations/:name", h.GetOrganization)
	r.DELETE("/organizations/:name", h.DeleteOrganization)
	r.POST("/organizations/:name/merge", h.MergeOrganizations)

	r.GET("/teams", h.ListTeams)
	r.POST("/teams", h.AddTeam)
	r.DELETE("/teams/:name", h.DeleteTeam)

	r.GET("/groups", h.ListGroups)

	r.POST("/domains", h.AddDomain)
	r.DELETE("/domains/:domain", h.DeleteDomain)

	r.POST("/aliases", h.AddAlias)
	r.DELETE("/aliases/:alias", h.DeleteAlias)

	r.POST("/enrollments", h.Enroll)
	r.DELETE("/enrollments", h.Withdraw)
	r.PATCH("/enrollments", h.UpdateEnrollment)
}

// ListOrganizations returns a page of organizations.
// GET /v1/organizations
func (h *OrgsHandler) ListOrganizations(c *gin.Context) {
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
	result, err := d.ListOrganizations(ctx, c.Query("term"), page, pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetOrganization returns an organization with its domains and
// aliases.
// GET /v1/organizations/:name
func (h *OrgsHandler) GetOrganization(c *gin.Context) {
	ctx := c.Request.Context()
	d, err := h.tenants.DB(ctx)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	org, err := d.ResolveOrganization(ctx, c.Param("name"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if org.Domains, err = d.GetDomainsByOrganization(ctx, org.ID); err != nil {
		fail(c, h.logger, err)
		return
	}
	if org.Aliases, err = d.GetAliasesByOrganization(ctx, org.ID); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

type addOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
}

// AddOrganization registers an organization.
// POST /v1/organizations
func (h *OrgsHandler) AddOrganization(c *gin.Context) {
	var req addOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	org, err := h.orgs.AddOrganization(c.Request.Context(), req.Name)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

// DeleteOrganization removes an organization with its teams, domains,
// aliases and enrollments.
// DELETE /v1/organizations/:name
func (h *OrgsHandler) DeleteOrganization(c *gin.Context) {
	if err := h.orgs.DeleteOrganization(c.Request.Context(), c.Param("name")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type mergeOrganizationsRequest struct {
	To string `json:"to" binding:"required"`
}

// MergeOrganizations absorbs the named organization into another.
// POST /v1/organizations/:name/merge
func (h *OrgsHandler) MergeOrganizations(c *gin.Context) {
	var req mergeOrganizationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	org, err := h.orgs.MergeOrganizations(c.Request.Context(), c.Param("name"), req.To)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// ListTeams returns a page of teams, optionally scoped to an
// organization or to organization-less teams.
// GET /v1/teams
func (h *OrgsHandler) ListTeams(c *gin.Context) {
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

	rootless, err := boolQuery(c, "rootless")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	var orgID *uuid.UUID
	if name := c.Query("organization"); name != "" {
		org, err := d.GetOrganization(ctx, name)
		if err != nil {
			fail(c, h.logger, err)
			return
		}
		orgID = &org.ID
	}

	result, err := d.ListTeams(ctx, orgID, rootless != nil && *rootless, page, pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type addTeamRequest struct {
	Name string `json:"name" binding:"required"`
	// Organization owns the team; empty creates an organization-less
	// team.
	Organization string `json:"organization"`
	// Parent nests the team under another team.
	Parent string `json:"parent"`
}

// AddTeam registers a team.
// POST /v1/teams
func (h *OrgsHandler) AddTeam(c *gin.Context) {
	var req addTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	team, err := h.orgs.AddTeam(c.Request.Context(), req.Name, req.Organization, req.Parent)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, team)
}

// DeleteTeam removes a team and its subteams.
// DELETE /v1/teams/:name
func (h *OrgsHandler) DeleteTeam(c *gin.Context) {
	if err := h.orgs.DeleteTeam(c.Request.Context(), c.Param("name"), c.Query("organization")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListGroups returns a page over organizations and teams together.
// GET /v1/groups
func (h *OrgsHandler) ListGroups(c *gin.Context) {
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
	result, err := d.ListGroups(ctx, c.Query("term"), page, pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type addDomainRequest struct {
	Organization string `json:"organization" binding:"required"`
	Domain       string `json:"domain" binding:"required"`
	IsTopDomain  bool   `json:"is_top_domain"`
}

// AddDomain claims an email domain for an organization.
// POST /v1/domains
func (h *OrgsHandler) AddDomain(c *gin.Context) {
	var req addDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	domain, err := h.orgs.AddDomain(c.Request.Context(), req.Organization, req.Domain, req.IsTopDomain)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, domain)
}

// DeleteDomain releases an email domain.
// DELETE /v1/domains/:domain
func (h *OrgsHandler) DeleteDomain(c *gin.Context) {
	if err := h.orgs.DeleteDomain(c.Request.Context(), c.Param("domain")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addAliasRequest struct {
	Organization string `json:"organization" binding:"required"`
	Alias        string `json:"alias" binding:"required"`
}

// AddAlias registers an alternative name for an organization.
// POST /v1/aliases
func (h *OrgsHandler) AddAlias(c *gin.Context) {
	var req addAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	alias, err := h.orgs.AddAlias(c.Request.Context(), req.Organization, req.Alias)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, alias)
}

// DeleteAlias removes an organization alias.
// DELETE /v1/aliases/:alias
func (h *OrgsHandler) DeleteAlias(c *gin.Context) {
	if err := h.orgs.DeleteAlias(c.Request.Context(), c.Param("alias")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type enrollRequest struct {
	UUID      string     `json:"uuid" binding:"required"`
	Group     string     `json:"group" binding:"required"`
	ParentOrg string     `json:"parent_org"`
	From      *time.Time `json:"from"`
	To        *time.Time `json:"to"`
	Force     bool       `json:"force"`
}

// Enroll adds an enrollment period for an individual in a group.
// Missing bounds default to the open-ended sentinels.
// POST /v1/enrollments
func (h *OrgsHandler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ind, err := h.orgs.Enroll(c.Request.Context(), req.UUID, req.Group, req.ParentOrg,
		timeOrZero(req.From), timeOrZero(req.To), req.Force)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ind)
}

type withdrawRequest struct {
	UUID      string     `json:"uuid" binding:"required"`
	Group     string     `json:"group" binding:"required"`
	ParentOrg string     `json:"parent_org"`
	From      *time.Time `json:"from"`
	To        *time.Time `json:"to"`
}

// Withdraw removes the enrollment periods of an individual in a group
// overlapping the given range.
// DELETE /v1/enrollments
func (h *OrgsHandler) Withdraw(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ind, err := h.orgs.Withdraw(c.Request.Context(), req.UUID, req.Group, req.ParentOrg,
		timeOrZero(req.From), timeOrZero(req.To))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ind)
}

type updateEnrollmentRequest struct {
	UUID      string     `json:"uuid" binding:"required"`
	Group     string     `json:"group" binding:"required"`
	ParentOrg string     `json:"parent_org"`
	From      *time.Time `json:"from"`
	To        *time.Time `json:"to"`
	NewFrom   time.Time  `json:"new_from" binding:"required"`
	NewTo     time.Time  `json:"new_to" binding:"required"`
	Force     bool       `json:"force"`
}

// UpdateEnrollment replaces an enrollment period with new bounds in
// one transaction.
// PATCH /v1/enrollments
func (h *OrgsHandler) UpdateEnrollment(c *gin.Context) {
	var req updateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ind, err := h.orgs.UpdateEnrollment(c.Request.Context(), req.UUID, req.Group, req.ParentOrg,
		timeOrZero(req.From), timeOrZero(req.To), req.NewFrom, req.NewTo, req.Force)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ind)
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
