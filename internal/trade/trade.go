// Package trade holds the marketplace trade record the settlement engine
// reads and mirrors into.
//
// Trades are owned by the matching/CRUD layer; the engine only reads party
// identities and the payment attestation, and writes a UI-facing status
// mirror derived from the escrow state.
package trade

import (
	"context"
	"errors"
	"time"
)

var ErrTradeNotFound = errors.New("trade not found")

// Errors returned by the settlement hook (see Settlement in handlers.go).
var (
	ErrNotParty        = errors.New("caller is not a party to the trade")
	ErrNoEscrow        = errors.New("trade has no escrow transaction")
	ErrAlreadyReleased = errors.New("escrowed funds were already released")
	ErrNotDisputable   = errors.New("trade can no longer be disputed")
)

// Status values mirrored onto the trade for UI consumption. Derived from the
// single escrow state field, never stored independently of it.
const (
	StatusWaitingForDeposit = "waiting_for_deposit"
	StatusWaitingForPayment = "waiting_for_payment"
	StatusReleasing         = "releasing"
	StatusCompleted         = "completed"
	StatusExpired           = "expired"
	StatusDisputed          = "disputed"
	StatusFailed            = "failed"
)

// Trade is the business object behind an escrow transaction.
type Trade struct {
	ID           string     `json:"id"`
	BuyerID      string     `json:"buyerId"`
	SellerID     string     `json:"sellerId"`
	FiatAmount   string     `json:"fiatAmount"`
	FiatCurrency string     `json:"fiatCurrency"`
	Status       string     `json:"status"`

	// PaymentAttested is set when a party asserts the off-chain cash leg
	// was sent/received.
	PaymentAttested   bool       `json:"paymentAttested"`
	PaymentAttestedAt *time.Time `json:"paymentAttestedAt,omitempty"`
	AttestedBy        string     `json:"attestedBy,omitempty"`

	// DisputeOpen blocks automatic release until an arbiter resolves it.
	DisputeOpen   bool   `json:"disputeOpen"`
	DisputeReason string `json:"disputeReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsParty reports whether userID is the buyer or seller of the trade.
func (t *Trade) IsParty(userID string) bool {
	return userID == t.BuyerID || userID == t.SellerID
}

// Store persists trade records.
type Store interface {
	Create(ctx context.Context, t *Trade) error
	Get(ctx context.Context, id string) (*Trade, error)

	// SetAttested records the payment attestation. Returns the updated trade.
	SetAttested(ctx context.Context, id, attestedBy string, at time.Time) (*Trade, error)

	// SetDispute opens the dispute flag with a reason. Returns the updated trade.
	SetDispute(ctx context.Context, id, reason string) (*Trade, error)

	// ClearDispute closes the dispute flag after arbitration.
	ClearDispute(ctx context.Context, id string) error

	// SetStatus writes the UI-facing status mirror.
	SetStatus(ctx context.Context, id, status string) error
}
