package deposit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pcash/escrowd/internal/escrow"
)

const testSecret = "test-webhook-secret"

type captureConfirmer struct {
	mu     sync.Mutex
	events []escrow.DepositEvent
	err    error
}

func (c *captureConfirmer) ConfirmDeposit(_ context.Context, ev escrow.DepositEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func newWebhookRouter(confirmer Confirmer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(confirmer, testSecret).RegisterRoutes(r.Group("/v1"))
	return r
}

func postWebhook(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/deposits", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookAcceptsSignedEvent(t *testing.T) {
	confirmer := &captureConfirmer{}
	r := newWebhookRouter(confirmer)

	ev := escrow.DepositEvent{
		Address:       "addr:BTC:webhook01",
		Asset:         "BTC",
		Amount:        "1.0",
		Confirmations: 3,
		TxRef:         "txref_wh_1",
	}
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	w := postWebhook(r, body, Sign(body, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, confirmer.events, 1)
	assert.Equal(t, ev, confirmer.events[0])
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	confirmer := &captureConfirmer{}
	r := newWebhookRouter(confirmer)

	w := postWebhook(r, []byte(`{"address":"a"}`), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, confirmer.events)
}

func TestWebhookRejectsWrongSignature(t *testing.T) {
	confirmer := &captureConfirmer{}
	r := newWebhookRouter(confirmer)

	body := []byte(`{"address":"addr:BTC:webhook01","amount":"1.0"}`)
	w := postWebhook(r, body, Sign(body, "some-other-secret"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, confirmer.events)
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	confirmer := &captureConfirmer{}
	r := newWebhookRouter(confirmer)

	body := []byte(`{"address":"addr:BTC:webhook01","amount":"1.0"}`)
	sig := Sign(body, testSecret)
	tampered := []byte(`{"address":"addr:BTC:webhook01","amount":"9.0"}`)

	w := postWebhook(r, tampered, sig)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, confirmer.events)
}

func TestWebhookRejectsNonHexSignature(t *testing.T) {
	confirmer := &captureConfirmer{}
	r := newWebhookRouter(confirmer)

	w := postWebhook(r, []byte(`{}`), "not-hex!")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	confirmer := &captureConfirmer{}
	r := newWebhookRouter(confirmer)

	body := []byte(`{not json`)
	w := postWebhook(r, body, Sign(body, testSecret))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, confirmer.events)
}

func TestWebhookSignalsRedeliveryOnProcessingError(t *testing.T) {
	confirmer := &captureConfirmer{err: assert.AnError}
	r := newWebhookRouter(confirmer)

	body := []byte(`{"address":"addr:BTC:webhook01","amount":"1.0","confirmations":3}`)
	w := postWebhook(r, body, Sign(body, testSecret))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
