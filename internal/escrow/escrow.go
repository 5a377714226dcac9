// Package escrow implements the settlement engine for crypto-for-cash trades.
//
// Flow:
//  1. Trade enters funding → custody address created, transaction AwaitingDeposit
//  2. Deposit confirmed on-chain → Funded (attestation still required)
//  3. Counterparty attests the cash leg → evaluate → ReleasePending → Released
//  4. Deadline passes unresolved → Expired (refund handled out of band)
//  5. Either party disputes → Disputed, pre-empting release and expiry
//
// Every transition is a compare-and-swap against the store, so webhooks,
// user actions, and the timeout sweep can race freely without double-release.
package escrow

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("escrow transaction not found")
	ErrAlreadyExists = errors.New("trade already has an escrow transaction")
	ErrStaleState    = errors.New("escrow state changed since read")
	ErrBadTransition = errors.New("transition not allowed by the state graph")
	ErrReleased      = errors.New("funds already released")
)

// State represents the single authoritative status of an escrow transaction.
type State string

const (
	StateAwaitingDeposit State = "awaiting_deposit"
	StateFunded          State = "funded"
	StateReleasePending  State = "release_pending"
	StateReleased        State = "released"
	StateDisputed        State = "disputed"
	StateExpired         State = "expired"
	StateFailed          State = "failed"
)

// transitions is the allowed state graph. Anything not listed is rejected by
// the stores, so a bug in calling code cannot corrupt a record.
//
// release_pending → funded is the retry edge: a release that was provably
// never sent returns the claim. disputed re-enters via arbitration only.
var transitions = map[State][]State{
	StateAwaitingDeposit: {StateFunded, StateExpired, StateDisputed},
	StateFunded:          {StateReleasePending, StateExpired, StateDisputed},
	StateReleasePending:  {StateReleased, StateFunded, StateFailed, StateDisputed},
	StateDisputed:        {StateReleasePending, StateExpired},
}

// CanTransition reports whether from → to is on the allowed graph.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the engine performs no further automatic
// transitions from s. Disputed is handled by arbitration, not the engine.
func (s State) IsTerminal() bool {
	switch s {
	case StateReleased, StateExpired, StateFailed:
		return true
	}
	return false
}

// Transaction is the unit of custody, 1:1 with a trade.
type Transaction struct {
	ID             string `json:"id"`
	TradeID        string `json:"tradeId"`
	CustodyAddress string `json:"custodyAddress"`
	Asset          string `json:"asset"`

	ExpectedAmount  string `json:"expectedAmount"`
	ConfirmedAmount string `json:"confirmedAmount,omitempty"` // set only once funded

	State State `json:"state"`

	DepositTxRef       string `json:"depositTxRef,omitempty"`
	ReleaseTxRef       string `json:"releaseTxRef,omitempty"`
	ReleaseDestination string `json:"releaseDestination"`
	ReleaseAttempts    int    `json:"releaseAttempts"`
	FailureReason      string `json:"failureReason,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	FundedAt   *time.Time `json:"fundedAt,omitempty"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
	// ExpiresAt is fixed at creation and never extended.
	ExpiresAt time.Time `json:"expiresAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Fields carries the column updates applied together with a conditional
// transition. Nil pointers leave the column untouched.
type Fields struct {
	ConfirmedAmount *string
	DepositTxRef    *string
	ReleaseTxRef    *string
	ReleaseAttempts *int
	FailureReason   *string
	FundedAt        *time.Time
	ReleasedAt      *time.Time
}

// Store persists escrow transactions. All writes after creation go through
// ConditionalTransition; there is deliberately no unconditional update.
type Store interface {
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetByTradeID(ctx context.Context, tradeID string) (*Transaction, error)
	GetByAddress(ctx context.Context, custodyAddress string) (*Transaction, error)

	// ConditionalTransition sets the state to `to` and applies fields only if
	// the record's current state equals `from`. Returns ErrStaleState when
	// the guard does not match (another caller got there first) and
	// ErrBadTransition when from → to is off the graph.
	ConditionalTransition(ctx context.Context, id string, from, to State, fields Fields) (*Transaction, error)

	// ListExpired returns non-terminal transactions whose deadline passed.
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Transaction, error)

	// ListByState returns transactions currently in the given state.
	ListByState(ctx context.Context, state State, limit int) ([]*Transaction, error)

	// ListAwaitingDeposit returns awaiting-deposit transactions created
	// before the cutoff, for the poll fallback.
	ListAwaitingDeposit(ctx context.Context, createdBefore time.Time, limit int) ([]*Transaction, error)
}

func strPtr(s string) *string       { return &s }
func intPtr(i int) *int             { return &i }
func timePtr(t time.Time) *time.Time { return &t }
