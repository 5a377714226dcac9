package deposit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/p2pcash/escrowd/internal/escrow"
	"github.com/p2pcash/escrowd/internal/logging"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Custody-Signature"

const maxWebhookBody = 64 * 1024

// Handler is the webhook ingress for custody deposit notifications.
type Handler struct {
	confirmer Confirmer
	secret    string
}

// NewHandler creates the webhook handler. secret must match the signing
// secret configured at the custody provider.
func NewHandler(confirmer Confirmer, secret string) *Handler {
	return &Handler{confirmer: confirmer, secret: secret}
}

// RegisterRoutes sets up the webhook route. Mounted outside the
// authenticated API group: the HMAC signature is the authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/deposits", h.HandleDepositWebhook)
}

// HandleDepositWebhook handles POST /v1/webhooks/deposits.
//
// The signature is verified over the exact raw body bytes before any
// parsing. Requests with a missing or wrong signature are rejected outright;
// a signed event for an unknown address is accepted and dropped downstream,
// so the provider does not retry it forever.
func (h *Handler) HandleDepositWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		webhooksTotal.WithLabelValues("read_error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Failed to read request body",
		})
		return
	}

	if !h.verify(body, c.GetHeader(SignatureHeader)) {
		webhooksTotal.WithLabelValues("bad_signature").Inc()
		logging.L(c.Request.Context()).Warn("deposit webhook with invalid signature rejected",
			"remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_signature",
			"message": "Webhook signature missing or invalid",
		})
		return
	}

	var ev escrow.DepositEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		webhooksTotal.WithLabelValues("bad_payload").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid webhook payload",
		})
		return
	}

	if err := h.confirmer.ConfirmDeposit(c.Request.Context(), ev); err != nil {
		webhooksTotal.WithLabelValues("error").Inc()
		logging.L(c.Request.Context()).Error("deposit webhook processing failed",
			"address", ev.Address, "error", err)
		// 5xx so the provider redelivers; processing is idempotent.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "processing_failed",
			"message": "Failed to process deposit event",
		})
		return
	}

	webhooksTotal.WithLabelValues("accepted").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h *Handler) verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign computes the hex HMAC-SHA256 signature of payload. Exported for the
// demo custody stub and tests.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
