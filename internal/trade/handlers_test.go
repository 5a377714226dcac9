package trade

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettlement struct {
	mu         sync.Mutex
	evaluated  []string
	disputed   []string
	disputeErr error
}

func (f *fakeSettlement) EvaluateTrade(_ context.Context, tradeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, tradeID)
	return nil
}

func (f *fakeSettlement) DisputeTrade(_ context.Context, tradeID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disputeErr != nil {
		return f.disputeErr
	}
	f.disputed = append(f.disputed, tradeID)
	return nil
}

func (f *fakeSettlement) evaluatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.evaluated)
}

func newTradeRouter(store Store, settlement Settlement) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(store, settlement).RegisterRoutes(r.Group("/v1"))
	return r
}

func doJSON(r *gin.Engine, method, path, caller string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateTradeHandler(t *testing.T) {
	store := NewMemoryStore()
	r := newTradeRouter(store, &fakeSettlement{})

	w := doJSON(r, http.MethodPost, "/v1/trades", "", map[string]string{
		"buyerId":      "buyer-1",
		"sellerId":     "seller-1",
		"fiatAmount":   "50000.00",
		"fiatCurrency": "USD",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Trade Trade `json:"trade"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Trade.ID)
	assert.Equal(t, "buyer-1", resp.Trade.BuyerID)
}

func TestCreateTradeRejectsSameParty(t *testing.T) {
	r := newTradeRouter(NewMemoryStore(), &fakeSettlement{})

	w := doJSON(r, http.MethodPost, "/v1/trades", "", map[string]string{
		"buyerId":      "user-1",
		"sellerId":     "user-1",
		"fiatAmount":   "100.00",
		"fiatCurrency": "USD",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttestTriggersEvaluation(t *testing.T) {
	store := NewMemoryStore()
	settlement := &fakeSettlement{}
	r := newTradeRouter(store, settlement)
	tr := seedTrade(t, store)

	w := doJSON(r, http.MethodPost, "/v1/trades/"+tr.ID+"/attest", "seller-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := store.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.True(t, got.PaymentAttested)
	assert.Equal(t, "seller-1", got.AttestedBy)

	// Evaluation runs in the background.
	require.Eventually(t, func() bool {
		return settlement.evaluatedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAttestRequiresCaller(t *testing.T) {
	store := NewMemoryStore()
	r := newTradeRouter(store, &fakeSettlement{})
	tr := seedTrade(t, store)

	w := doJSON(r, http.MethodPost, "/v1/trades/"+tr.ID+"/attest", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttestByStrangerForbidden(t *testing.T) {
	store := NewMemoryStore()
	settlement := &fakeSettlement{}
	r := newTradeRouter(store, settlement)
	tr := seedTrade(t, store)

	w := doJSON(r, http.MethodPost, "/v1/trades/"+tr.ID+"/attest", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, settlement.evaluatedCount())
}

func TestAttestIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	settlement := &fakeSettlement{}
	r := newTradeRouter(store, settlement)
	tr := seedTrade(t, store)

	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/v1/trades/"+tr.ID+"/attest", "seller-1", nil).Code)
	require.Eventually(t, func() bool { return settlement.evaluatedCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Second attest is a no-op and does not re-trigger evaluation.
	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/v1/trades/"+tr.ID+"/attest", "buyer-1", nil).Code)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, settlement.evaluatedCount())
}

func TestDisputeTradeHandler(t *testing.T) {
	store := NewMemoryStore()
	settlement := &fakeSettlement{}
	r := newTradeRouter(store, settlement)
	tr := seedTrade(t, store)

	w := doJSON(r, http.MethodPost, "/v1/trades/"+tr.ID+"/dispute", "buyer-1",
		map[string]string{"reason": "cash never arrived"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{tr.ID}, settlement.disputed)
}

func TestDisputeTradeRequiresReason(t *testing.T) {
	store := NewMemoryStore()
	r := newTradeRouter(store, &fakeSettlement{})
	tr := seedTrade(t, store)

	w := doJSON(r, http.MethodPost, "/v1/trades/"+tr.ID+"/dispute", "buyer-1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDisputeTradeErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not a party", ErrNotParty, http.StatusForbidden},
		{"already released", ErrAlreadyReleased, http.StatusConflict},
		{"not disputable", ErrNotDisputable, http.StatusConflict},
		{"no escrow", ErrNoEscrow, http.StatusNotFound},
		{"trade missing", ErrTradeNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemoryStore()
			r := newTradeRouter(store, &fakeSettlement{disputeErr: tc.err})
			tr := seedTrade(t, store)

			w := doJSON(r, http.MethodPost, "/v1/trades/"+tr.ID+"/dispute", "buyer-1",
				map[string]string{"reason": "anything"})
			assert.Equal(t, tc.code, w.Code)
		})
	}
}
