package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/shopclock/internal/catalog"
)

type identifyRequest struct {
	Badge string `json:"badge"`
	PIN   string `json:"pin"`
}

// catalogFailed writes a catalog error; what names the missing row.
func (h *handlers) catalogFailed(c *gin.Context, err error, what string) {
	var ve *catalog.ValidationError
	switch {
	case errors.As(err, &ve):
		badRequest(c, strings.TrimPrefix(ve.Error(), "catalog: "))
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, envelope{Error: "not_found", Message: what + " not found"})
	case errors.Is(err, catalog.ErrInvalidPIN):
		c.JSON(http.StatusForbidden, envelope{Error: "forbidden", Message: "invalid badge or pin"})
	case errors.Is(err, catalog.ErrDuplicate):
		c.JSON(http.StatusConflict, envelope{Error: "conflict", Message: what + " already exists"})
	case errors.Is(err, catalog.ErrInUse):
		c.JSON(http.StatusConflict, envelope{Error: "conflict", Message: what + " is referenced by activities"})
	default:
		h.reportFailed(c, err)
	}
}

// identify resolves a badge and PIN typed at a floor terminal to an operator.
func (h *handlers) identify(c *gin.Context) {
	var req identifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Badge == "" {
		badRequest(c, "badge and pin are required")
		return
	}
	op, err := catalog.Identify(c.Request.Context(), h.db, req.Badge, req.PIN)
	if err != nil {
		h.catalogFailed(c, err, "operator")
		return
	}
	ok(c, http.StatusOK, op)
}

func (h *handlers) listOperators(c *gin.Context) {
	ops, err := catalog.ListOperators(c.Request.Context(), h.db, c.Query("all") == "true")
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	ok(c, http.StatusOK, ops)
}

func (h *handlers) listProcesses(c *gin.Context) {
	ps, err := catalog.ListProcesses(c.Request.Context(), h.db, c.Query("all") == "true")
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	ok(c, http.StatusOK, ps)
}

func (h *handlers) listWorkOrders(c *gin.Context) {
	wos, err := catalog.ListWorkOrders(c.Request.Context(), h.db, catalog.WorkOrderFilters{
		Status:    c.Query("status"),
		Reference: c.Query("reference"),
	})
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	ok(c, http.StatusOK, wos)
}
