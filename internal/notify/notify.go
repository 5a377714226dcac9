// Package notify persists settlement events per user and pushes them to the
// realtime stream. Delivery is fire-and-forget: the settlement path never
// waits on or fails because of a notification.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/p2pcash/escrowd/internal/idgen"
	"github.com/p2pcash/escrowd/internal/realtime"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Notification is a stored settlement event addressed to one user.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	EventType string         `json:"eventType"`
	TradeID   string         `json:"tradeId,omitempty"`
	Payload   map[string]any `json:"payload"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

const dispatchTimeout = 5 * time.Second

// Service implements the settlement engine's notifier. hub may be nil.
type Service struct {
	store  Store
	hub    *realtime.Hub
	logger *slog.Logger
}

// NewService creates a notification service.
func NewService(store Store, hub *realtime.Hub, logger *slog.Logger) *Service {
	return &Service{store: store, hub: hub, logger: logger}
}

// Notify records the event for the user and pushes it to the realtime
// stream. It returns immediately; persistence happens in the background with
// its own deadline.
func (s *Service) Notify(ctx context.Context, userID, eventType string, payload map[string]any) {
	tradeID, _ := payload["tradeId"].(string)
	n := &Notification{
		ID:        idgen.WithPrefix("ntf"),
		UserID:    userID,
		EventType: eventType,
		TradeID:   tradeID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		defer cancel()
		if err := s.store.Create(ctx, n); err != nil {
			notificationsTotal.WithLabelValues("store_error").Inc()
			s.logger.Error("failed to store notification",
				"user_id", userID, "event", eventType, "error", err)
			return
		}
		notificationsTotal.WithLabelValues("stored").Inc()
	}()

	if s.hub != nil {
		s.hub.Broadcast(&realtime.Event{
			Type:      eventType,
			UserID:    userID,
			TradeID:   tradeID,
			Timestamp: n.CreatedAt,
			Data:      payload,
		})
	}
}

// marshalPayload serializes a payload for storage; a payload that cannot be
// marshaled is stored as an empty object rather than lost.
func marshalPayload(payload map[string]any) []byte {
	b, err := json.Marshal(payload)
	if err != nil {
		return []byte("{}")
	}
	return b
}
