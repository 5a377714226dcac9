package deposit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/p2pcash/escrowd/internal/custody"
	"github.com/p2pcash/escrowd/internal/escrow"
)

// Poller is the fallback deposit detector. It periodically asks the custody
// provider about addresses that have been awaiting a deposit for longer than
// the grace period, covering webhooks that never arrived.
type Poller struct {
	store     escrow.Store
	custody   custody.Adapter
	confirmer Confirmer
	interval  time.Duration
	grace     time.Duration
	logger    *slog.Logger
	stop      chan struct{}
	running   atomic.Bool
}

// NewPoller creates the deposit poll fallback.
func NewPoller(store escrow.Store, cust custody.Adapter, confirmer Confirmer, interval, grace time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		store:     store,
		custody:   cust,
		confirmer: confirmer,
		interval:  interval,
		grace:     grace,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// Start runs the poll loop. Call in a goroutine.
func (p *Poller) Start(ctx context.Context) {
	p.running.Store(true)
	defer p.running.Store(false)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.safePoll(ctx)
		}
	}
}

// Stop signals the poller to stop.
func (p *Poller) Stop() {
	select {
	case p.stop <- struct{}{}:
	default:
	}
}

func (p *Poller) safePoll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in deposit poller", "panic", fmt.Sprint(r))
		}
	}()
	p.poll(ctx)
}

func (p *Poller) poll(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.grace)
	waiting, err := p.store.ListAwaitingDeposit(ctx, cutoff, 100)
	if err != nil {
		p.logger.Warn("failed to list awaiting-deposit escrows", "error", err)
		return
	}

	for _, tx := range waiting {
		status, err := p.custody.GetDepositStatus(ctx, tx.CustodyAddress)
		if err != nil {
			pollChecksTotal.WithLabelValues("error").Inc()
			p.logger.Warn("deposit status check failed",
				"escrow_id", tx.ID, "address", tx.CustodyAddress, "error", err)
			continue
		}
		if !status.Confirmed {
			pollChecksTotal.WithLabelValues("none").Inc()
			continue
		}

		pollChecksTotal.WithLabelValues("observed").Inc()
		ev := escrow.DepositEvent{
			Address:       tx.CustodyAddress,
			Asset:         tx.Asset,
			Amount:        status.Amount,
			Confirmations: status.Confirmations,
			TxRef:         status.TxRef,
		}
		if err := p.confirmer.ConfirmDeposit(ctx, ev); err != nil {
			p.logger.Error("polled deposit processing failed",
				"escrow_id", tx.ID, "error", err)
		}
	}

	pollSweepsTotal.Inc()
}
