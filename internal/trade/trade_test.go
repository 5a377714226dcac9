package trade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTrade(t *testing.T, s Store) *Trade {
	t.Helper()
	now := time.Now().UTC()
	tr := &Trade{
		ID:           "trd_001122334455",
		BuyerID:      "buyer-1",
		SellerID:     "seller-1",
		FiatAmount:   "50000.00",
		FiatCurrency: "USD",
		Status:       StatusWaitingForDeposit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.Create(context.Background(), tr))
	return tr
}

func TestIsParty(t *testing.T) {
	tr := &Trade{BuyerID: "buyer-1", SellerID: "seller-1"}
	assert.True(t, tr.IsParty("buyer-1"))
	assert.True(t, tr.IsParty("seller-1"))
	assert.False(t, tr.IsParty("arbiter-1"))
	assert.False(t, tr.IsParty(""))
}

func TestMemoryStoreAttestation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tr := seedTrade(t, s)

	at := time.Now().UTC()
	updated, err := s.SetAttested(ctx, tr.ID, "seller-1", at)
	require.NoError(t, err)
	assert.True(t, updated.PaymentAttested)
	assert.Equal(t, "seller-1", updated.AttestedBy)
	require.NotNil(t, updated.PaymentAttestedAt)

	_, err = s.SetAttested(ctx, "trd_000000000000", "seller-1", at)
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestMemoryStoreDisputeFlag(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tr := seedTrade(t, s)

	updated, err := s.SetDispute(ctx, tr.ID, "cash never arrived")
	require.NoError(t, err)
	assert.True(t, updated.DisputeOpen)
	assert.Equal(t, "cash never arrived", updated.DisputeReason)

	require.NoError(t, s.ClearDispute(ctx, tr.ID))
	got, err := s.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.False(t, got.DisputeOpen)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tr := seedTrade(t, s)

	got, err := s.Get(ctx, tr.ID)
	require.NoError(t, err)
	got.Status = "mutated"

	again, err := s.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaitingForDeposit, again.Status)
}

func TestMemoryStoreSetStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tr := seedTrade(t, s)

	require.NoError(t, s.SetStatus(ctx, tr.ID, StatusCompleted))
	got, err := s.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	assert.ErrorIs(t, s.SetStatus(ctx, "trd_000000000000", StatusCompleted), ErrTradeNotFound)
}
