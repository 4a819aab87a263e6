// Package handlers implements the HTTP verbs of the consolidation
// engine. Every handler resolves the tenant-scoped storage gateway
// from the request context; mutation verbs go through the domain
// services so they stay transactional and audited.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/openmeld/meld/internal/meld"
	"github.com/rs/zerolog"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind meld.Kind) int {
	switch kind {
	case meld.KindInvalidValue, meld.KindInvalidRequest:
		return http.StatusBadRequest
	case meld.KindNotFound:
		return http.StatusNotFound
	case meld.KindAlreadyExists, meld.KindDuplicateRange, meld.KindEqualIndividual, meld.KindLocked:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes an error response. Classified errors keep their message
// and kind; anything else is logged and hidden behind a 500.
func fail(c *gin.Context, logger zerolog.Logger, err error) {
	var merr *meld.Error
	if errors.As(err, &merr) {
		c.JSON(statusFor(merr.Kind), gin.H{"error": merr.Message, "kind": merr.Kind.String()})
		return
	}
	logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// pageParams reads the page and page_size query parameters.
func pageParams(c *gin.Context, defaultSize int) (page, pageSize int, err error) {
	page, err = positiveQueryInt(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err = positiveQueryInt(c, "page_size", defaultSize)
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

func positiveQueryInt(c *gin.Context, key string, defaultVal int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, meld.Errorf(meld.KindInvalidRequest, "%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

// boolQuery reads an optional boolean query parameter. nil means
// absent.
func boolQuery(c *gin.Context, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, meld.Errorf(meld.KindInvalidRequest, "%s must be a boolean, got %q", key, raw)
	}
	return &v, nil
}

func recommendationID(c *gin.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, meld.Errorf(meld.KindInvalidRequest, "invalid recommendation id %q", raw)
	}
	return id, nil
}
