package escrow

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory escrow store for demo/development mode. Its
// ConditionalTransition gives the same compare-and-swap guarantee as the
// Postgres store, so concurrency tests run against it directly.
type MemoryStore struct {
	txs       map[string]*Transaction
	byTrade   map[string]string
	byAddress map[string]string
	mu        sync.Mutex
}

// NewMemoryStore creates a new in-memory escrow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txs:       make(map[string]*Transaction),
		byTrade:   make(map[string]string),
		byAddress: make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byTrade[tx.TradeID]; ok {
		return ErrAlreadyExists
	}
	cp := *tx
	m.txs[tx.ID] = &cp
	m.byTrade[tx.TradeID] = tx.ID
	m.byAddress[tx.CustodyAddress] = tx.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *MemoryStore) GetByTradeID(ctx context.Context, tradeID string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byTrade[tradeID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.get(id)
}

func (m *MemoryStore) GetByAddress(ctx context.Context, custodyAddress string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byAddress[custodyAddress]
	if !ok {
		return nil, ErrNotFound
	}
	return m.get(id)
}

// get returns a copy; caller must hold m.mu.
func (m *MemoryStore) get(id string) (*Transaction, error) {
	tx, ok := m.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) ConditionalTransition(ctx context.Context, id string, from, to State, fields Fields) (*Transaction, error) {
	if !CanTransition(from, to) {
		return nil, ErrBadTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if tx.State != from {
		return nil, ErrStaleState
	}

	tx.State = to
	applyFields(tx, fields)
	tx.UpdatedAt = time.Now()

	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Transaction
	for _, tx := range m.txs {
		if (tx.State == StateAwaitingDeposit || tx.State == StateFunded) && tx.ExpiresAt.Before(before) {
			cp := *tx
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) ListByState(ctx context.Context, state State, limit int) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Transaction
	for _, tx := range m.txs {
		if tx.State == state {
			cp := *tx
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) ListAwaitingDeposit(ctx context.Context, createdBefore time.Time, limit int) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Transaction
	for _, tx := range m.txs {
		if tx.State == StateAwaitingDeposit && tx.CreatedAt.Before(createdBefore) {
			cp := *tx
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func applyFields(tx *Transaction, fields Fields) {
	if fields.ConfirmedAmount != nil {
		tx.ConfirmedAmount = *fields.ConfirmedAmount
	}
	if fields.DepositTxRef != nil {
		tx.DepositTxRef = *fields.DepositTxRef
	}
	if fields.ReleaseTxRef != nil {
		tx.ReleaseTxRef = *fields.ReleaseTxRef
	}
	if fields.ReleaseAttempts != nil {
		tx.ReleaseAttempts = *fields.ReleaseAttempts
	}
	if fields.FailureReason != nil {
		tx.FailureReason = *fields.FailureReason
	}
	if fields.FundedAt != nil {
		tx.FundedAt = fields.FundedAt
	}
	if fields.ReleasedAt != nil {
		tx.ReleasedAt = fields.ReleasedAt
	}
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
