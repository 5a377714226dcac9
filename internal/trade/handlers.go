package trade

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/p2pcash/escrowd/internal/idgen"
	"github.com/p2pcash/escrowd/internal/logging"
	"github.com/p2pcash/escrowd/internal/validation"
)

// Settlement is the hook into the escrow engine. Defined here so the trade
// layer does not depend on the escrow package.
type Settlement interface {
	// EvaluateTrade re-checks release preconditions for the trade's escrow.
	EvaluateTrade(ctx context.Context, tradeID string) error
	// DisputeTrade freezes the trade's escrow on behalf of callerID.
	DisputeTrade(ctx context.Context, tradeID, callerID, reason string) error
}

// CallerHeader identifies the acting user. Identity is asserted by the
// gateway in front of this service.
const CallerHeader = "X-User-ID"

// Handler provides HTTP endpoints for trade operations.
type Handler struct {
	store      Store
	settlement Settlement
}

// NewHandler creates a new trade handler. settlement may be nil in tests.
func NewHandler(store Store, settlement Settlement) *Handler {
	return &Handler{store: store, settlement: settlement}
}

// RegisterRoutes sets up the trade routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/trades", h.CreateTrade)
	r.GET("/trades/:id", h.GetTrade)
	r.POST("/trades/:id/attest", h.AttestPayment)
	r.POST("/trades/:id/dispute", h.DisputeTrade)
}

// CreateTrade handles POST /v1/trades
func (h *Handler) CreateTrade(c *gin.Context) {
	var req struct {
		BuyerID      string `json:"buyerId"`
		SellerID     string `json:"sellerId"`
		FiatAmount   string `json:"fiatAmount"`
		FiatCurrency string `json:"fiatCurrency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("buyerId", req.BuyerID),
		validation.Required("sellerId", req.SellerID),
		validation.ValidAmount("fiatAmount", req.FiatAmount),
		validation.Required("fiatCurrency", req.FiatCurrency),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	if req.BuyerID == req.SellerID {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Buyer and seller must differ",
		})
		return
	}

	now := time.Now().UTC()
	t := &Trade{
		ID:           idgen.WithPrefix("trd"),
		BuyerID:      req.BuyerID,
		SellerID:     req.SellerID,
		FiatAmount:   req.FiatAmount,
		FiatCurrency: req.FiatCurrency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.Create(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "create_failed",
			"message": "Failed to create trade",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trade": t})
}

// GetTrade handles GET /v1/trades/:id
func (h *Handler) GetTrade(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTradeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Trade not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lookup_failed",
			"message": "Failed to load trade",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": t})
}

// AttestPayment handles POST /v1/trades/:id/attest. Recording the cash leg
// attestation may complete the trade, so the escrow is re-evaluated in the
// background after the flag is stored.
func (h *Handler) AttestPayment(c *gin.Context) {
	callerID := c.GetHeader(CallerHeader)
	if callerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_caller",
			"message": "X-User-ID header is required",
		})
		return
	}

	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTradeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Trade not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lookup_failed",
			"message": "Failed to load trade",
		})
		return
	}
	if !t.IsParty(callerID) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "not_a_party",
			"message": "Only the buyer or seller can attest payment",
		})
		return
	}
	if t.PaymentAttested {
		c.JSON(http.StatusOK, gin.H{"trade": t})
		return
	}

	updated, err := h.store.SetAttested(c.Request.Context(), t.ID, callerID, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "attest_failed",
			"message": "Failed to record attestation",
		})
		return
	}

	if h.settlement != nil {
		go func(tradeID string) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 30*time.Second)
			defer cancel()
			if err := h.settlement.EvaluateTrade(ctx, tradeID); err != nil {
				logging.L(ctx).Error("post-attestation evaluation failed",
					"trade_id", tradeID, "error", err)
			}
		}(t.ID)
	}

	c.JSON(http.StatusOK, gin.H{"trade": updated})
}

// DisputeTrade handles POST /v1/trades/:id/dispute.
func (h *Handler) DisputeTrade(c *gin.Context) {
	callerID := c.GetHeader(CallerHeader)
	if callerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_caller",
			"message": "X-User-ID header is required",
		})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "A dispute reason is required",
		})
		return
	}
	if errs := validation.Validate(
		validation.MaxLength("reason", req.Reason, 2000),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
		})
		return
	}

	if h.settlement == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "settlement_unavailable",
			"message": "Settlement engine is not available",
		})
		return
	}

	err := h.settlement.DisputeTrade(c.Request.Context(), c.Param("id"), callerID, req.Reason)
	if err != nil {
		h.disputeError(c, err)
		return
	}

	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lookup_failed",
			"message": "Failed to load trade",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": t})
}

func (h *Handler) disputeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTradeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Trade not found"})
	case errors.Is(err, ErrNoEscrow):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Trade has no escrow"})
	case errors.Is(err, ErrNotParty):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_a_party", "message": "Only the buyer or seller can dispute"})
	case errors.Is(err, ErrAlreadyReleased):
		c.JSON(http.StatusConflict, gin.H{"error": "already_released", "message": "Funds were already released"})
	case errors.Is(err, ErrNotDisputable):
		c.JSON(http.StatusConflict, gin.H{"error": "not_disputable", "message": "Escrow can no longer be disputed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dispute_failed", "message": "Failed to open dispute"})
	}
}
