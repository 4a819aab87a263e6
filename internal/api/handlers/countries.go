package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/tenant"
	"github.com/rs/zerolog"
)

// CountriesHandler serves the country reference table backing profile
// country codes.
type CountriesHandler struct {
	tenants  *tenant.Registry
	pageSize int
	logger   zerolog.Logger
}

// NewCountriesHandler creates a new CountriesHandler.
func NewCountriesHandler(tenants *tenant.Registry, pageSize int, logger zerolog.Logger) *CountriesHandler {
	return &CountriesHandler{
		tenants:  tenants,
		pageSize: pageSize,
		logger:   logger.With().Str("component", "countries_handler").Logger(),
	}
}

// RegisterRoutes registers country routes.
func (h *CountriesHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/countries", h.List)
	r.GET("/countries/:code", h.Get)
	r.POST("/countries", h.Create)
}

// List returns a page of countries, optionally filtered by term.
// GET /v1/countries
func (h *CountriesHandler) List(c *gin.Context) {
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
	result, err := d.ListCountries(ctx, c.Query("term"), page, pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get returns a country by its ISO 3166 alpha-2 code.
// GET /v1/countries/:code
func (h *CountriesHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	d, err := h.tenants.DB(ctx)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	country, err := d.GetCountry(ctx, strings.ToUpper(c.Param("code")))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, country)
}

type countryRequest struct {
	Code   string `json:"code" binding:"required"`
	Alpha3 string `json:"alpha3" binding:"required"`
	Name   string `json:"name" binding:"required"`
}

// Create adds a country to the reference table.
// POST /v1/countries
func (h *CountriesHandler) Create(c *gin.Context) {
	var req countryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Code = strings.ToUpper(req.Code)
	req.Alpha3 = strings.ToUpper(req.Alpha3)
	if len(req.Code) != 2 {
		fail(c, h.logger, meld.InvalidValuef("country code must be two letters, got %q", req.Code))
		return
	}
	if len(req.Alpha3) != 3 {
		fail(c, h.logger, meld.InvalidValuef("alpha3 code must be three letters, got %q", req.Alpha3))
		return
	}

	ctx := c.Request.Context()
	d, err := h.tenants.DB(ctx)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	country := &models.Country{Code: req.Code, Alpha3: req.Alpha3, Name: req.Name}
	if err := d.CreateCountry(ctx, country); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, country)
}
