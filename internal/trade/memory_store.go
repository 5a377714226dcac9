package trade

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory trade store for demo/development mode.
type MemoryStore struct {
	trades map[string]*Trade
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory trade store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trades: make(map[string]*Trade)}
}

func (m *MemoryStore) Create(ctx context.Context, t *Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.trades[t.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, ErrTradeNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) SetAttested(ctx context.Context, id, attestedBy string, at time.Time) (*Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, ErrTradeNotFound
	}
	t.PaymentAttested = true
	t.PaymentAttestedAt = &at
	t.AttestedBy = attestedBy
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) SetDispute(ctx context.Context, id, reason string) (*Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, ErrTradeNotFound
	}
	t.DisputeOpen = true
	t.DisputeReason = reason
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ClearDispute(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return ErrTradeNotFound
	}
	t.DisputeOpen = false
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return ErrTradeNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
