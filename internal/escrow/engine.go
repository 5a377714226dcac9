package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p2pcash/escrowd/internal/amount"
	"github.com/p2pcash/escrowd/internal/custody"
	"github.com/p2pcash/escrowd/internal/idgen"
	"github.com/p2pcash/escrowd/internal/logging"
	"github.com/p2pcash/escrowd/internal/retry"
	"github.com/p2pcash/escrowd/internal/trade"
	"github.com/p2pcash/escrowd/internal/traces"
)

var ErrInvalidResolution = errors.New("resolution must be release or refund")

// Blocked-precondition reasons returned by Evaluate.
const (
	BlockedNotFunded   = "not_funded"
	BlockedUnderfunded = "insufficient_deposit"
	BlockedUnattested  = "awaiting_payment_attestation"
	BlockedExpired     = "expired"
	BlockedDisputed    = "disputed"
)

// Notifier delivers settlement events to trade parties. Implementations must
// not block the settlement path; delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, userID, eventType string, payload map[string]any)
}

// EngineConfig carries the tunables the engine needs from the environment.
type EngineConfig struct {
	EscrowWindow          time.Duration
	ConfirmationThreshold int
	ReleaseTolerance      string
	ReleaseMaxAttempts    int
	ReleaseRetryBase      time.Duration
}

// Engine drives escrow transactions through the state graph. It is the only
// component that calls custody.ReleaseFunds, and it only does so while
// holding the release_pending claim won by a conditional transition.
type Engine struct {
	store    Store
	trades   trade.Store
	custody  custody.Adapter
	notifier Notifier
	logger   *slog.Logger
	cfg      EngineConfig
}

// NewEngine creates a settlement engine. notifier may be nil.
func NewEngine(store Store, trades trade.Store, cust custody.Adapter, notifier Notifier, logger *slog.Logger, cfg EngineConfig) *Engine {
	if cfg.ReleaseMaxAttempts < 1 {
		cfg.ReleaseMaxAttempts = 1
	}
	if cfg.ReleaseTolerance == "" {
		cfg.ReleaseTolerance = "0"
	}
	return &Engine{
		store:    store,
		trades:   trades,
		custody:  cust,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateRequest opens escrow for a trade.
type CreateRequest struct {
	TradeID            string `json:"tradeId"`
	Asset              string `json:"asset"`
	ExpectedAmount     string `json:"expectedAmount"`
	ReleaseDestination string `json:"releaseDestination"`
}

// Create provisions a custody address and opens an escrow transaction for
// the trade. The custody call happens before any record is written, so a
// provider failure leaves nothing behind.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Create",
		traces.TradeID(req.TradeID), traces.Asset(req.Asset))
	defer span.End()

	t, err := e.trades.Get(ctx, req.TradeID)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive(req.ExpectedAmount) {
		return nil, fmt.Errorf("invalid expected amount %q", req.ExpectedAmount)
	}
	if _, err := e.store.GetByTradeID(ctx, req.TradeID); err == nil {
		return nil, ErrAlreadyExists
	} else if err != ErrNotFound {
		return nil, err
	}

	address, err := e.custody.CreateEscrowAddress(ctx, req.Asset, req.ExpectedAmount)
	if err != nil {
		return nil, fmt.Errorf("provisioning custody address: %w", err)
	}

	now := time.Now().UTC()
	tx := &Transaction{
		ID:                 idgen.WithPrefix("esc"),
		TradeID:            req.TradeID,
		CustodyAddress:     address,
		Asset:              req.Asset,
		ExpectedAmount:     req.ExpectedAmount,
		State:              StateAwaitingDeposit,
		ReleaseDestination: req.ReleaseDestination,
		CreatedAt:          now,
		ExpiresAt:          now.Add(e.cfg.EscrowWindow),
		UpdatedAt:          now,
	}
	if err := e.store.Create(ctx, tx); err != nil {
		return nil, err
	}

	e.mirrorStatus(ctx, req.TradeID, StateAwaitingDeposit)
	e.notifyParties(ctx, t, "escrow.created", map[string]any{
		"escrowId":       tx.ID,
		"custodyAddress": tx.CustodyAddress,
		"expectedAmount": tx.ExpectedAmount,
		"asset":          tx.Asset,
		"expiresAt":      tx.ExpiresAt,
	})

	transitionsTotal.WithLabelValues("", string(StateAwaitingDeposit)).Inc()
	logging.L(ctx).Info("escrow opened",
		"escrow_id", tx.ID, "trade_id", tx.TradeID,
		"asset", tx.Asset, "expected", tx.ExpectedAmount,
		"expires_at", tx.ExpiresAt)
	return tx, nil
}

// Evaluation is the outcome of a release-precondition check.
type Evaluation struct {
	// Released is true when this call (or a prior one) released the funds.
	Released bool `json:"released"`
	// AlreadyHandled is true when another caller won the release claim or
	// the transaction had already settled.
	AlreadyHandled bool `json:"alreadyHandled,omitempty"`
	// Blocked lists the preconditions that are not yet satisfied.
	Blocked []string `json:"blocked,omitempty"`
}

// Evaluate checks every release precondition and, when all hold, claims the
// release and pays out. It is safe to call from any number of goroutines or
// replicas concurrently; at most one caller performs the custody release.
func (e *Engine) Evaluate(ctx context.Context, escrowID string) (*Evaluation, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Evaluate", traces.EscrowID(escrowID))
	defer span.End()

	tx, err := e.store.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	switch tx.State {
	case StateReleased:
		return &Evaluation{Released: true, AlreadyHandled: true}, nil
	case StateReleasePending:
		// A release is already in flight; the reconciler owns it.
		return &Evaluation{AlreadyHandled: true}, nil
	}

	t, err := e.trades.Get(ctx, tx.TradeID)
	if err != nil {
		return nil, err
	}

	blocked := e.blockedReasons(tx, t, time.Now().UTC())
	if len(blocked) > 0 {
		for _, reason := range blocked {
			evaluateBlocked.WithLabelValues(reason).Inc()
		}
		return &Evaluation{Blocked: blocked}, nil
	}

	claimed, err := e.transition(ctx, tx.ID, StateFunded, StateReleasePending, Fields{})
	if err == ErrStaleState {
		// Someone else claimed it between our read and our write.
		return &Evaluation{AlreadyHandled: true}, nil
	}
	if err != nil {
		return nil, err
	}
	e.mirrorStatus(ctx, t.ID, StateReleasePending)

	released, err := e.executeRelease(ctx, claimed, t)
	if err != nil {
		return nil, err
	}
	return &Evaluation{Released: released}, nil
}

// blockedReasons returns every unsatisfied release precondition, in a stable
// order so callers and tests can rely on it.
func (e *Engine) blockedReasons(tx *Transaction, t *trade.Trade, now time.Time) []string {
	var blocked []string
	if tx.State != StateFunded {
		blocked = append(blocked, BlockedNotFunded)
	} else if !amount.GTE(tx.ConfirmedAmount, tx.ExpectedAmount, e.cfg.ReleaseTolerance) {
		blocked = append(blocked, BlockedUnderfunded)
	}
	if !t.PaymentAttested {
		blocked = append(blocked, BlockedUnattested)
	}
	if !now.Before(tx.ExpiresAt) {
		blocked = append(blocked, BlockedExpired)
	}
	if t.DisputeOpen || tx.State == StateDisputed {
		blocked = append(blocked, BlockedDisputed)
	}
	return blocked
}

// executeRelease performs the custody release for a transaction the caller
// has already moved to release_pending, then settles the ledger record. The
// bool result reports whether the funds are confirmed released.
func (e *Engine) executeRelease(ctx context.Context, tx *Transaction, t *trade.Trade) (bool, error) {
	log := logging.L(ctx).With("escrow_id", tx.ID, "trade_id", tx.TradeID)

	attempts := 0
	var txRef string
	err := retry.Do(ctx, e.cfg.ReleaseMaxAttempts, e.cfg.ReleaseRetryBase, func() error {
		attempts++
		releaseAttemptsTotal.Inc()
		ref, err := e.custody.ReleaseFunds(ctx, tx.ID, tx.ReleaseDestination, tx.Asset, tx.ConfirmedAmount)
		if err != nil {
			if errors.Is(err, custody.ErrRejected) {
				return retry.Permanent(err)
			}
			return err
		}
		txRef = ref
		return nil
	})

	switch {
	case err == nil:
		now := time.Now().UTC()
		_, terr := e.transition(ctx, tx.ID, StateReleasePending, StateReleased, Fields{
			ReleaseTxRef:    strPtr(txRef),
			ReleaseAttempts: intPtr(tx.ReleaseAttempts + attempts),
			ReleasedAt:      timePtr(now),
		})
		if terr != nil && terr != ErrStaleState {
			return false, terr
		}
		e.mirrorStatus(ctx, tx.TradeID, StateReleased)
		e.notifyParties(ctx, t, "escrow.released", map[string]any{
			"escrowId": tx.ID,
			"txRef":    txRef,
			"amount":   tx.ConfirmedAmount,
		})
		log.Info("funds released", "tx_ref", txRef, "attempts", attempts)
		return true, nil

	case errors.Is(err, custody.ErrRejected):
		releaseFailures.WithLabelValues("rejected").Inc()
		_, terr := e.transition(ctx, tx.ID, StateReleasePending, StateFailed, Fields{
			ReleaseAttempts: intPtr(tx.ReleaseAttempts + attempts),
			FailureReason:   strPtr("custody rejected release: " + err.Error()),
		})
		if terr != nil && terr != ErrStaleState {
			return false, terr
		}
		e.mirrorStatus(ctx, tx.TradeID, StateFailed)
		e.notifyParties(ctx, t, "escrow.failed", map[string]any{
			"escrowId": tx.ID,
			"reason":   "custody_rejected",
		})
		log.Error("release rejected by custody", "error", err)
		return false, nil

	default:
		// Retries exhausted without a definitive answer. Ask the provider
		// whether any attempt actually went through before deciding.
		releaseFailures.WithLabelValues("exhausted").Inc()
		log.Warn("release attempts exhausted, reconciling outcome",
			"attempts", attempts, "error", err)
		return e.resolveUncertainRelease(ctx, tx, t, tx.ReleaseAttempts+attempts)
	}
}

// resolveUncertainRelease decides the fate of a release whose outcome is
// unknown. Completed → released; provably never sent → back to funded so a
// later Evaluate can retry; still unknown → left in release_pending for the
// reconciler.
func (e *Engine) resolveUncertainRelease(ctx context.Context, tx *Transaction, t *trade.Trade, attempts int) (bool, error) {
	log := logging.L(ctx).With("escrow_id", tx.ID)

	status, err := e.custody.GetReleaseStatus(ctx, tx.ID)
	switch {
	case err == nil && status.Completed:
		now := time.Now().UTC()
		_, terr := e.transition(ctx, tx.ID, StateReleasePending, StateReleased, Fields{
			ReleaseTxRef:    strPtr(status.TxRef),
			ReleaseAttempts: intPtr(attempts),
			ReleasedAt:      timePtr(now),
		})
		if terr != nil && terr != ErrStaleState {
			return false, terr
		}
		e.mirrorStatus(ctx, tx.TradeID, StateReleased)
		if t != nil {
			e.notifyParties(ctx, t, "escrow.released", map[string]any{
				"escrowId": tx.ID,
				"txRef":    status.TxRef,
				"amount":   tx.ConfirmedAmount,
			})
		}
		log.Info("release confirmed by provider after retry exhaustion", "tx_ref", status.TxRef)
		return true, nil

	case errors.Is(err, custody.ErrUnknownRelease):
		// Provider never saw it: the claim can safely be returned.
		_, terr := e.transition(ctx, tx.ID, StateReleasePending, StateFunded, Fields{
			ReleaseAttempts: intPtr(attempts),
		})
		if terr != nil && terr != ErrStaleState {
			return false, terr
		}
		e.mirrorStatus(ctx, tx.TradeID, StateFunded)
		log.Info("release never reached provider, claim returned")
		return false, nil

	default:
		// Can't prove anything either way. Leave the claim in place; the
		// reconciler keeps asking until the provider gives an answer.
		log.Warn("release outcome still unknown, leaving claim for reconciler", "error", err)
		return false, nil
	}
}

// DepositEvent is a confirmed-deposit observation, from either the webhook
// ingress or the poll fallback. Both paths funnel through ConfirmDeposit.
type DepositEvent struct {
	Address       string `json:"address"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	Confirmations int    `json:"confirmations"`
	TxRef         string `json:"txRef"`
}

// ConfirmDeposit processes a deposit observation. Unknown addresses and
// duplicate events are dropped without error; an event that crosses the
// confirmation threshold funds the escrow and immediately re-evaluates it.
func (e *Engine) ConfirmDeposit(ctx context.Context, ev DepositEvent) error {
	ctx, span := traces.StartSpan(ctx, "escrow.ConfirmDeposit", traces.Address(ev.Address))
	defer span.End()
	log := logging.L(ctx).With("address", ev.Address, "tx_ref", ev.TxRef)

	tx, err := e.store.GetByAddress(ctx, ev.Address)
	if err == ErrNotFound {
		depositEventsTotal.WithLabelValues("unknown_address").Inc()
		log.Warn("deposit event for unknown address dropped")
		return nil
	}
	if err != nil {
		return err
	}

	if tx.State != StateAwaitingDeposit {
		// Replay or duplicate: the deposit was already processed.
		depositEventsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}
	if ev.Confirmations < e.cfg.ConfirmationThreshold {
		depositEventsTotal.WithLabelValues("unconfirmed").Inc()
		log.Debug("deposit below confirmation threshold",
			"confirmations", ev.Confirmations, "threshold", e.cfg.ConfirmationThreshold)
		return nil
	}
	if !amount.IsPositive(ev.Amount) {
		depositEventsTotal.WithLabelValues("invalid").Inc()
		log.Warn("deposit event with invalid amount dropped", "amount", ev.Amount)
		return nil
	}

	t, err := e.trades.Get(ctx, tx.TradeID)
	if err != nil {
		return err
	}

	if cmp, ok := amount.Cmp(ev.Amount, tx.ExpectedAmount); ok && cmp < 0 {
		// Partial deposit: surface it and keep waiting for the remainder.
		depositEventsTotal.WithLabelValues("partial").Inc()
		e.notifyParties(ctx, t, "escrow.partial_deposit", map[string]any{
			"escrowId": tx.ID,
			"received": ev.Amount,
			"expected": tx.ExpectedAmount,
		})
		log.Info("partial deposit observed",
			"escrow_id", tx.ID, "received", ev.Amount, "expected", tx.ExpectedAmount)
		return nil
	}

	now := time.Now().UTC()
	if !now.Before(tx.ExpiresAt) {
		// The window closed before the deposit confirmed. Never fund past
		// the deadline; the sweep will expire the record and the deposit is
		// returned out of band.
		depositEventsTotal.WithLabelValues("late").Inc()
		e.notifyParties(ctx, t, "escrow.deposit_late", map[string]any{
			"escrowId":  tx.ID,
			"received":  ev.Amount,
			"expiresAt": tx.ExpiresAt,
		})
		log.Warn("deposit confirmed after expiry, not funding", "escrow_id", tx.ID)
		return nil
	}

	_, err = e.transition(ctx, tx.ID, StateAwaitingDeposit, StateFunded, Fields{
		ConfirmedAmount: strPtr(ev.Amount),
		DepositTxRef:    strPtr(ev.TxRef),
		FundedAt:        timePtr(now),
	})
	if err == ErrStaleState {
		// Concurrent webhook and poller: first one wins, this one is a no-op.
		depositEventsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	depositEventsTotal.WithLabelValues("funded").Inc()
	e.mirrorStatus(ctx, tx.TradeID, StateFunded)
	e.notifyParties(ctx, t, "escrow.funded", map[string]any{
		"escrowId": tx.ID,
		"amount":   ev.Amount,
		"txRef":    ev.TxRef,
	})
	log.Info("escrow funded", "escrow_id", tx.ID, "amount", ev.Amount)

	// The cash leg may already be attested, in which case funding was the
	// last missing precondition.
	if _, err := e.Evaluate(ctx, tx.ID); err != nil {
		log.Error("post-funding evaluation failed", "escrow_id", tx.ID, "error", err)
	}
	return nil
}

// Dispute freezes the escrow on behalf of a trade party. The trade flag is
// raised before the escrow transition so the release evaluator sees the
// dispute no matter how the two writes interleave with it.
func (e *Engine) Dispute(ctx context.Context, escrowID, callerID, reason string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Dispute", traces.EscrowID(escrowID))
	defer span.End()

	tx, err := e.store.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	t, err := e.trades.Get(ctx, tx.TradeID)
	if err != nil {
		return nil, err
	}
	if !t.IsParty(callerID) {
		return nil, trade.ErrNotParty
	}

	switch tx.State {
	case StateReleased:
		return nil, ErrReleased
	case StateExpired, StateFailed:
		return nil, ErrBadTransition
	case StateDisputed:
		return tx, nil
	}

	if _, err := e.trades.SetDispute(ctx, t.ID, reason); err != nil {
		return nil, err
	}

	// The state may move under us (deposit confirming, release claiming);
	// re-read and retry once before giving up.
	for i := 0; i < 2; i++ {
		updated, err := e.transition(ctx, tx.ID, tx.State, StateDisputed, Fields{})
		if err == nil {
			e.mirrorStatus(ctx, t.ID, StateDisputed)
			e.notifyParties(ctx, t, "escrow.disputed", map[string]any{
				"escrowId": tx.ID,
				"reason":   reason,
				"by":       callerID,
			})
			logging.L(ctx).Info("escrow disputed",
				"escrow_id", tx.ID, "by", callerID, "reason", reason)
			return updated, nil
		}
		if err != ErrStaleState && err != ErrBadTransition {
			return nil, err
		}
		tx, err = e.store.Get(ctx, escrowID)
		if err != nil {
			return nil, err
		}
		if tx.State == StateReleased {
			return nil, ErrReleased
		}
		if tx.State == StateDisputed {
			return tx, nil
		}
		if tx.State.IsTerminal() {
			return nil, ErrBadTransition
		}
	}
	return nil, ErrStaleState
}

// Dispute resolutions accepted by ResolveDispute.
const (
	ResolutionRelease = "release"
	ResolutionRefund  = "refund"
)

// ResolveDispute settles a disputed escrow per the arbiter's decision:
// release pays the buyer's destination, refund closes the escrow so the
// deposit can be returned to the seller out of band.
func (e *Engine) ResolveDispute(ctx context.Context, escrowID, resolution string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.ResolveDispute", traces.EscrowID(escrowID))
	defer span.End()

	tx, err := e.store.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if tx.State != StateDisputed {
		return nil, ErrBadTransition
	}
	t, err := e.trades.Get(ctx, tx.TradeID)
	if err != nil {
		return nil, err
	}

	switch resolution {
	case ResolutionRelease:
		if tx.ConfirmedAmount == "" {
			// Disputed before the deposit landed; nothing to release.
			return nil, fmt.Errorf("escrow %s was never funded: %w", tx.ID, ErrBadTransition)
		}
		if err := e.trades.ClearDispute(ctx, t.ID); err != nil {
			return nil, err
		}
		claimed, err := e.transition(ctx, tx.ID, StateDisputed, StateReleasePending, Fields{})
		if err != nil {
			return nil, err
		}
		e.mirrorStatus(ctx, t.ID, StateReleasePending)
		if _, err := e.executeRelease(ctx, claimed, t); err != nil {
			return nil, err
		}
		return e.store.Get(ctx, escrowID)

	case ResolutionRefund:
		updated, err := e.transition(ctx, tx.ID, StateDisputed, StateExpired, Fields{
			FailureReason: strPtr("dispute resolved as refund"),
		})
		if err != nil {
			return nil, err
		}
		e.mirrorStatus(ctx, t.ID, StateExpired)
		e.notifyParties(ctx, t, "escrow.refunded", map[string]any{
			"escrowId": tx.ID,
		})
		logging.L(ctx).Info("dispute resolved as refund", "escrow_id", tx.ID)
		return updated, nil

	default:
		return nil, ErrInvalidResolution
	}
}

// Reconcile settles every in-flight release whose outcome was lost, e.g.
// after a crash between ReleaseFunds and the released transition. Called on
// startup and on every supervisor tick.
func (e *Engine) Reconcile(ctx context.Context) error {
	pending, err := e.store.ListByState(ctx, StateReleasePending, 100)
	if err != nil {
		return err
	}
	for _, tx := range pending {
		t, err := e.trades.Get(ctx, tx.TradeID)
		if err != nil {
			logging.L(ctx).Error("reconcile: trade lookup failed",
				"escrow_id", tx.ID, "error", err)
			continue
		}
		if _, err := e.resolveUncertainRelease(ctx, tx, t, tx.ReleaseAttempts); err != nil {
			logging.L(ctx).Error("reconcile failed", "escrow_id", tx.ID, "error", err)
		}
	}
	return nil
}

// Expire moves a transaction past its deadline to expired and notifies the
// parties. Funded escrows additionally flag the deposit as refund-eligible.
func (e *Engine) Expire(ctx context.Context, tx *Transaction) error {
	if tx.State != StateAwaitingDeposit && tx.State != StateFunded {
		return ErrBadTransition
	}
	funded := tx.State == StateFunded

	_, err := e.transition(ctx, tx.ID, tx.State, StateExpired, Fields{})
	if err == ErrStaleState {
		return nil
	}
	if err != nil {
		return err
	}
	e.mirrorStatus(ctx, tx.TradeID, StateExpired)

	t, terr := e.trades.Get(ctx, tx.TradeID)
	if terr == nil {
		payload := map[string]any{"escrowId": tx.ID}
		if funded {
			payload["refundEligible"] = true
			payload["amount"] = tx.ConfirmedAmount
		}
		e.notifyParties(ctx, t, "escrow.expired", payload)
	}
	logging.L(ctx).Info("escrow expired", "escrow_id", tx.ID, "was_funded", funded)
	return nil
}

// EvaluateTrade re-checks release preconditions for the trade's escrow.
// Satisfies the trade package's settlement hook.
func (e *Engine) EvaluateTrade(ctx context.Context, tradeID string) error {
	tx, err := e.store.GetByTradeID(ctx, tradeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return trade.ErrNoEscrow
		}
		return err
	}
	_, err = e.Evaluate(ctx, tx.ID)
	return err
}

// DisputeTrade freezes the trade's escrow on behalf of a party. Satisfies
// the trade package's settlement hook, translating into its error
// vocabulary.
func (e *Engine) DisputeTrade(ctx context.Context, tradeID, callerID, reason string) error {
	tx, err := e.store.GetByTradeID(ctx, tradeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return trade.ErrNoEscrow
		}
		return err
	}
	_, err = e.Dispute(ctx, tx.ID, callerID, reason)
	switch {
	case errors.Is(err, ErrReleased):
		return trade.ErrAlreadyReleased
	case errors.Is(err, ErrBadTransition):
		return trade.ErrNotDisputable
	}
	return err
}

// transition wraps the store's conditional transition with the shared
// transition metric.
func (e *Engine) transition(ctx context.Context, id string, from, to State, fields Fields) (*Transaction, error) {
	tx, err := e.store.ConditionalTransition(ctx, id, from, to, fields)
	if err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	return tx, nil
}

// mirrorStatus writes the UI-facing trade status derived from an escrow
// state. Mirror failures are logged, never propagated: the escrow record is
// the source of truth.
func (e *Engine) mirrorStatus(ctx context.Context, tradeID string, state State) {
	status := map[State]string{
		StateAwaitingDeposit: trade.StatusWaitingForDeposit,
		StateFunded:          trade.StatusWaitingForPayment,
		StateReleasePending:  trade.StatusReleasing,
		StateReleased:        trade.StatusCompleted,
		StateExpired:         trade.StatusExpired,
		StateDisputed:        trade.StatusDisputed,
		StateFailed:          trade.StatusFailed,
	}[state]
	if status == "" {
		return
	}
	if err := e.trades.SetStatus(ctx, tradeID, status); err != nil {
		logging.L(ctx).Error("trade status mirror failed",
			"trade_id", tradeID, "status", status, "error", err)
	}
}

func (e *Engine) notifyParties(ctx context.Context, t *trade.Trade, eventType string, payload map[string]any) {
	if e.notifier == nil {
		return
	}
	payload["tradeId"] = t.ID
	e.notifier.Notify(ctx, t.BuyerID, eventType, payload)
	e.notifier.Notify(ctx, t.SellerID, eventType, payload)
}
