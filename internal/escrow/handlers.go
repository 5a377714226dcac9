package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/p2pcash/escrowd/internal/custody"
	"github.com/p2pcash/escrowd/internal/validation"
)

// Handler provides HTTP endpoints for escrow operations.
type Handler struct {
	engine *Engine
	store  Store
}

// NewHandler creates a new escrow handler.
func NewHandler(engine *Engine, store Store) *Handler {
	return &Handler{engine: engine, store: store}
}

// RegisterRoutes sets up the escrow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/escrow", h.CreateEscrow)
	r.GET("/escrow/:id", h.GetEscrow)
	r.POST("/escrow/:id/evaluate", h.EvaluateEscrow)
	r.GET("/trades/:id/escrow", h.GetTradeEscrow)
}

// RegisterAdminRoutes sets up arbiter-only routes. The caller attaches the
// admin auth middleware to the group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/escrow/:id/resolve", h.ResolveEscrow)
}

// CreateEscrow handles POST /v1/escrow
func (h *Handler) CreateEscrow(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("tradeId", req.TradeID),
		validation.ValidAsset("asset", req.Asset),
		validation.ValidAmount("expectedAmount", req.ExpectedAmount),
		validation.ValidAddress("releaseDestination", req.ReleaseDestination),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	tx, err := h.engine.Create(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "escrow_exists",
				"message": "Trade already has an escrow transaction",
			})
		case custody.IsRetryable(err):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "custody_unavailable",
				"message": "Custody provider is unavailable, try again",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "escrow_failed",
				"message": "Failed to open escrow",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"escrow": tx})
}

// GetEscrow handles GET /v1/escrow/:id
func (h *Handler) GetEscrow(c *gin.Context) {
	tx, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Escrow transaction not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lookup_failed",
			"message": "Failed to load escrow transaction",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": tx})
}

// GetTradeEscrow handles GET /v1/trades/:id/escrow
func (h *Handler) GetTradeEscrow(c *gin.Context) {
	tx, err := h.store.GetByTradeID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Trade has no escrow transaction",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lookup_failed",
			"message": "Failed to load escrow transaction",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": tx})
}

// EvaluateEscrow handles POST /v1/escrow/:id/evaluate. Evaluation is
// idempotent, so exposing it is harmless: callers cannot force a release,
// only ask for the preconditions to be re-checked.
func (h *Handler) EvaluateEscrow(c *gin.Context) {
	eval, err := h.engine.Evaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Escrow transaction not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "evaluate_failed",
			"message": "Failed to evaluate escrow",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluation": eval})
}

// ResolveEscrow handles POST /v1/escrow/:id/resolve (arbiter only).
func (h *Handler) ResolveEscrow(c *gin.Context) {
	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	tx, err := h.engine.ResolveDispute(c.Request.Context(), c.Param("id"), req.Resolution)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Escrow transaction not found",
			})
		case errors.Is(err, ErrInvalidResolution):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_resolution",
				"message": "Resolution must be release or refund",
			})
		case errors.Is(err, ErrBadTransition):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "not_disputed",
				"message": "Escrow is not in a resolvable dispute",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "resolve_failed",
				"message": "Failed to resolve dispute",
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": tx})
}
