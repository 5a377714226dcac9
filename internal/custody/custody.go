// Package custody defines the interface to the external custody provider.
//
// The provider holds private keys and moves on-chain funds on request. It is
// treated as an untrusted, eventually-consistent oracle: every answer is
// re-checked against the ledger's conditional-update discipline before any
// state changes hands.
package custody

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the provider could not be reached or answered with
	// a transient failure. Callers may retry with backoff.
	ErrUnavailable = errors.New("custody provider unavailable")

	// ErrRejected means the provider refused the operation outright (invalid
	// destination, frozen asset, malformed request). Never retried.
	ErrRejected = errors.New("custody provider rejected the request")

	// ErrUnknownRelease means the provider has no record of a release for the
	// given escrow. Used by the reconciliation pass after a crash.
	ErrUnknownRelease = errors.New("custody provider has no release record")
)

// DepositStatus describes what the provider has observed on an address.
type DepositStatus struct {
	Confirmed     bool   `json:"confirmed"`
	Amount        string `json:"amount"`
	TxRef         string `json:"txRef"`
	Confirmations int    `json:"confirmations"`
}

// ReleaseStatus describes the outcome of a past release request, for
// reconciliation after a crash mid-release.
type ReleaseStatus struct {
	Completed bool   `json:"completed"`
	TxRef     string `json:"txRef"`
}

// Adapter is the thin contract the settlement engine needs from the
// custody provider.
type Adapter interface {
	// CreateEscrowAddress provisions a deposit address for a new escrow.
	// No trade-visible escrow record may exist until this succeeds.
	CreateEscrowAddress(ctx context.Context, asset, expectedAmount string) (address string, err error)

	// GetDepositStatus reports what the provider has seen on an address.
	GetDepositStatus(ctx context.Context, address string) (*DepositStatus, error)

	// ReleaseFunds moves the custodied amount to the destination. This is the
	// one non-idempotent call in the system; the caller must hold the
	// release_pending claim before invoking it.
	ReleaseFunds(ctx context.Context, escrowID, destination, asset, amount string) (txRef string, err error)

	// GetReleaseStatus reports whether a prior ReleaseFunds for the escrow
	// went through. Returns ErrUnknownRelease if the provider never saw one.
	GetReleaseStatus(ctx context.Context, escrowID string) (*ReleaseStatus, error)
}

// IsRetryable reports whether err is a transient custody failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
