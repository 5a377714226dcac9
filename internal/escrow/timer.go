package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Supervisor periodically expires overdue escrow transactions and reconciles
// in-flight releases. A single sweep is safe to run on every replica: each
// expiry is a conditional transition, so concurrent sweeps do not collide.
type Supervisor struct {
	engine   *Engine
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewSupervisor creates the dispute/timeout supervisor.
func NewSupervisor(engine *Engine, store Store, interval time.Duration, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		engine:   engine,
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweep loop is active.
func (s *Supervisor) Running() bool {
	return s.running.Load()
}

// Start runs one immediate sweep and then loops on the interval. Call in a
// goroutine.
func (s *Supervisor) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	s.safeSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// Stop signals the supervisor to stop.
func (s *Supervisor) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Supervisor) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in escrow supervisor", "panic", fmt.Sprint(r))
		}
	}()
	s.sweep(ctx)
}

func (s *Supervisor) sweep(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := s.store.ListExpired(ctx, now, 100)
	if err != nil {
		s.logger.Warn("failed to list expired escrows", "error", err)
	} else {
		for _, tx := range expired {
			if err := s.engine.Expire(ctx, tx); err != nil {
				s.logger.Warn("failed to expire escrow",
					"escrow_id", tx.ID, "state", tx.State, "error", err)
				continue
			}
			sweepExpirations.Inc()
		}
	}

	if err := s.engine.Reconcile(ctx); err != nil {
		s.logger.Warn("release reconciliation failed", "error", err)
	}

	sweepsTotal.Inc()
}
