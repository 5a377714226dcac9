package notify

import (
	"context"
	"database/sql"
	"encoding/json"
)

// PostgresStore persists notifications in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed notification store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, n *Notification) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, event_type, trade_id, payload, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, n.EventType, nullStr(n.TradeID), marshalPayload(n.Payload), n.Read, n.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, event_type, trade_id, payload, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Notification
	for rows.Next() {
		n := &Notification{}
		var tradeID sql.NullString
		var payload []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.EventType, &tradeID, &payload, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.TradeID = tradeID.String
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &n.Payload)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (p *PostgresStore) MarkRead(ctx context.Context, id, userID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
