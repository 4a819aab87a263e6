package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmeld/meld/internal/db"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/tenant"
	"github.com/rs/zerolog"
)

// TxLogHandler serves the audit log: transactions and the operations
// recorded inside them.
type TxLogHandler struct {
	tenants  *tenant.Registry
	pageSize int
	logger   zerolog.Logger
}

// NewTxLogHandler creates a new TxLogHandler.
func NewTxLogHandler(tenants *tenant.Registry, pageSize int, logger zerolog.Logger) *TxLogHandler {
	return &TxLogHandler{
		tenants:  tenants,
		pageSize: pageSize,
		logger:   logger.With().Str("component", "txlog_handler").Logger(),
	}
}

// RegisterRoutes registers audit log routes.
func (h *TxLogHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/transactions", h.ListTransactions)
	r.GET("/operations", h.ListOperations)
}

// ListTransactions returns a page of transactions.
// GET /v1/transactions
func (h *TxLogHandler) ListTransactions(c *gin.Context) {
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
	isClosed, err := boolQuery(c, "is_closed")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	fromDate, err := timeQuery(c, "from_date")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	toDate, err := timeQuery(c, "to_date")
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	filter := db.TransactionFilter{
		TUID:       c.Query("tuid"),
		Name:       c.Query("name"),
		AuthoredBy: c.Query("authored_by"),
		IsClosed:   isClosed,
		FromDate:   fromDate,
		ToDate:     toDate,
	}
	result, err := d.ListTransactions(ctx, filter, page, pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListOperations returns a page of operations.
// GET /v1/operations
func (h *TxLogHandler) ListOperations(c *gin.Context) {
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
	fromDate, err := timeQuery(c, "from_date")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	toDate, err := timeQuery(c, "to_date")
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	filter := db.OperationFilter{
		OUID:       c.Query("ouid"),
		TUID:       c.Query("tuid"),
		OpType:     models.OpType(c.Query("op_type")),
		EntityType: c.Query("entity_type"),
		Target:     c.Query("target"),
		FromDate:   fromDate,
		ToDate:     toDate,
	}
	result, err := d.ListOperations(ctx, filter, page, pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func timeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, meld.Errorf(meld.KindInvalidRequest, "%s must be an RFC 3339 timestamp, got %q", key, raw)
	}
	return &t, nil
}
