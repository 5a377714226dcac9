// Package deposit brings confirmed-deposit observations into the settlement
// engine. There are two ingress paths feeding the same funnel: the custody
// provider's signed webhook (primary) and a polling fallback for the windows
// where webhooks are lost or delayed. Both paths are idempotent end to end,
// so overlap between them is harmless.
package deposit

import (
	"context"

	"github.com/p2pcash/escrowd/internal/escrow"
)

// Confirmer is the engine-side funnel both ingress paths feed.
type Confirmer interface {
	ConfirmDeposit(ctx context.Context, ev escrow.DepositEvent) error
}
