package notify

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory notification store for demo/development mode.
type MemoryStore struct {
	byUser map[string][]*Notification
	byID   map[string]*Notification
	mu     sync.Mutex
}

// NewMemoryStore creates a new in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser: make(map[string][]*Notification),
		byID:   make(map[string]*Notification),
	}
}

func (m *MemoryStore) Create(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.byID[n.ID] = &cp
	// Newest first.
	m.byUser[n.UserID] = append([]*Notification{&cp}, m.byUser[n.UserID]...)
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byUser[userID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	result := make([]*Notification, len(list))
	for i, n := range list {
		cp := *n
		result[i] = &cp
	}
	return result, nil
}

func (m *MemoryStore) MarkRead(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.byID[id]
	if !ok || n.UserID != userID {
		return ErrNotificationNotFound
	}
	n.Read = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
