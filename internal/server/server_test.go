package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pcash/escrowd/internal/config"
	"github.com/p2pcash/escrowd/internal/custody"
	"github.com/p2pcash/escrowd/internal/deposit"
	"github.com/p2pcash/escrowd/internal/escrow"
	"github.com/p2pcash/escrowd/internal/trade"
)

const (
	testWebhookSecret = "server-test-webhook-secret"
	testAdminSecret   = "server-test-admin-secret"
)

// scriptedCustody is a deterministic in-process custody provider.
type scriptedCustody struct{}

func (scriptedCustody) CreateEscrowAddress(_ context.Context, asset, _ string) (string, error) {
	return "addr:" + asset + ":servertest01", nil
}

func (scriptedCustody) GetDepositStatus(context.Context, string) (*custody.DepositStatus, error) {
	return &custody.DepositStatus{}, nil
}

func (scriptedCustody) ReleaseFunds(context.Context, string, string, string, string) (string, error) {
	return "txref_server_release", nil
}

func (scriptedCustody) GetReleaseStatus(context.Context, string) (*custody.ReleaseStatus, error) {
	return nil, custody.ErrUnknownRelease
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                  "0",
		Env:                   "development",
		LogLevel:              "error",
		CustodyURL:            "http://custody.invalid",
		ConfirmationThreshold: 2,
		PollInterval:          time.Hour,
		PollGrace:             time.Hour,
		EscrowWindow:          30 * time.Minute,
		SweepInterval:         time.Hour,
		ReleaseTolerance:      "0",
		ReleaseMaxAttempts:    2,
		ReleaseRetryBase:      time.Millisecond,
		WebhookSecret:         testWebhookSecret,
		AdminSecret:           testAdminSecret,
		RateLimitRPM:          60000, // tests poll aggressively
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), WithCustody(scriptedCustody{}))
	require.NoError(t, err)
	return s
}

func do(s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), into))
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Not ready until Run has started the background loops.
	w = do(s, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "escrowd_")
}

// createTradeAndEscrow walks the API through trade + escrow creation and
// returns both records.
func createTradeAndEscrow(t *testing.T, s *Server) (trade.Trade, escrow.Transaction) {
	t.Helper()

	w := do(s, http.MethodPost, "/v1/trades", map[string]string{
		"buyerId":      "buyer-1",
		"sellerId":     "seller-1",
		"fiatAmount":   "65000.00",
		"fiatCurrency": "USD",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var tradeResp struct {
		Trade trade.Trade `json:"trade"`
	}
	decode(t, w, &tradeResp)

	w = do(s, http.MethodPost, "/v1/escrow", map[string]string{
		"tradeId":            tradeResp.Trade.ID,
		"asset":              "BTC",
		"expectedAmount":     "1.0",
		"releaseDestination": "bc1qbuyerdestination",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var escResp struct {
		Escrow escrow.Transaction `json:"escrow"`
	}
	decode(t, w, &escResp)
	require.Equal(t, escrow.StateAwaitingDeposit, escResp.Escrow.State)
	require.NotEmpty(t, escResp.Escrow.CustodyAddress)

	return tradeResp.Trade, escResp.Escrow
}

func postSignedWebhook(t *testing.T, s *Server, ev escrow.DepositEvent) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/deposits", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(deposit.SignatureHeader, deposit.Sign(body, testWebhookSecret))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestEndToEndSettlement(t *testing.T) {
	s := newTestServer(t)
	tr, esc := createTradeAndEscrow(t, s)

	// Deposit webhook funds the escrow.
	w := postSignedWebhook(t, s, escrow.DepositEvent{
		Address:       esc.CustodyAddress,
		Asset:         "BTC",
		Amount:        "1.0",
		Confirmations: 3,
		TxRef:         "txref_e2e_deposit",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodGet, "/v1/escrow/"+esc.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var escResp struct {
		Escrow escrow.Transaction `json:"escrow"`
	}
	decode(t, w, &escResp)
	assert.Equal(t, escrow.StateFunded, escResp.Escrow.State)

	// The seller attests the cash leg; release happens shortly after.
	w = do(s, http.MethodPost, "/v1/trades/"+tr.ID+"/attest", nil,
		map[string]string{trade.CallerHeader: "seller-1"})
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		w := do(s, http.MethodGet, "/v1/escrow/"+esc.ID, nil, nil)
		var resp struct {
			Escrow escrow.Transaction `json:"escrow"`
		}
		if json.Unmarshal(w.Body.Bytes(), &resp) != nil {
			return false
		}
		return resp.Escrow.State == escrow.StateReleased
	}, 3*time.Second, 20*time.Millisecond)

	// The trade mirror follows.
	w = do(s, http.MethodGet, "/v1/trades/"+tr.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tradeResp struct {
		Trade trade.Trade `json:"trade"`
	}
	decode(t, w, &tradeResp)
	assert.Equal(t, trade.StatusCompleted, tradeResp.Trade.Status)

	// The parties got their notifications.
	w = do(s, http.MethodGet, "/v1/users/buyer-1/notifications", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "escrow.released")
}

func TestWebhookWithoutSignatureRejected(t *testing.T) {
	s := newTestServer(t)
	_, esc := createTradeAndEscrow(t, s)

	body, err := json.Marshal(escrow.DepositEvent{
		Address: esc.CustodyAddress, Amount: "1.0", Confirmations: 3,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/deposits", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminResolveRequiresSecret(t *testing.T) {
	s := newTestServer(t)
	tr, esc := createTradeAndEscrow(t, s)

	// Fund and dispute so the escrow is resolvable.
	require.Equal(t, http.StatusOK, postSignedWebhook(t, s, escrow.DepositEvent{
		Address: esc.CustodyAddress, Asset: "BTC", Amount: "1.0", Confirmations: 3, TxRef: "txref_d",
	}).Code)
	w := do(s, http.MethodPost, "/v1/trades/"+tr.ID+"/dispute",
		map[string]string{"reason": "cash never arrived"},
		map[string]string{trade.CallerHeader: "buyer-1"})
	require.Equal(t, http.StatusOK, w.Code)

	// No credentials.
	w = do(s, http.MethodPost, "/v1/escrow/"+esc.ID+"/resolve",
		map[string]string{"resolution": "refund"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Arbiter credentials.
	w = do(s, http.MethodPost, "/v1/escrow/"+esc.ID+"/resolve",
		map[string]string{"resolution": "refund"},
		map[string]string{"Authorization": "Bearer " + testAdminSecret})
	require.Equal(t, http.StatusOK, w.Code)

	var escResp struct {
		Escrow escrow.Transaction `json:"escrow"`
	}
	decode(t, w, &escResp)
	assert.Equal(t, escrow.StateExpired, escResp.Escrow.State)
}

func TestSecondEscrowForTradeConflicts(t *testing.T) {
	s := newTestServer(t)
	tr, _ := createTradeAndEscrow(t, s)

	w := do(s, http.MethodPost, "/v1/escrow", map[string]string{
		"tradeId":            tr.ID,
		"asset":              "BTC",
		"expectedAmount":     "1.0",
		"releaseDestination": "bc1qbuyerdestination",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
