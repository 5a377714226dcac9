package trade

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists trade records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed trade store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tradeColumns = `id, buyer_id, seller_id, fiat_amount, fiat_currency, status,
		payment_attested, payment_attested_at, attested_by,
		dispute_open, dispute_reason, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, t *Trade) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trades (
			id, buyer_id, seller_id, fiat_amount, fiat_currency, status,
			payment_attested, payment_attested_at, attested_by,
			dispute_open, dispute_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.BuyerID, t.SellerID, t.FiatAmount, t.FiatCurrency, t.Status,
		t.PaymentAttested, nullTime(t.PaymentAttestedAt), nullString(t.AttestedBy),
		t.DisputeOpen, nullString(t.DisputeReason), t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Trade, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id)
	return scanTrade(row)
}

func (p *PostgresStore) SetAttested(ctx context.Context, id, attestedBy string, at time.Time) (*Trade, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE trades
		SET payment_attested = TRUE, payment_attested_at = $2, attested_by = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+tradeColumns, id, at, attestedBy)
	return scanTrade(row)
}

func (p *PostgresStore) SetDispute(ctx context.Context, id, reason string) (*Trade, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE trades
		SET dispute_open = TRUE, dispute_reason = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+tradeColumns, id, reason)
	return scanTrade(row)
}

func (p *PostgresStore) ClearDispute(ctx context.Context, id string) error {
	return p.exec(ctx, `
		UPDATE trades SET dispute_open = FALSE, updated_at = NOW() WHERE id = $1`, id)
}

func (p *PostgresStore) SetStatus(ctx context.Context, id, status string) error {
	return p.exec(ctx, `
		UPDATE trades SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
}

func (p *PostgresStore) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTradeNotFound
	}
	return nil
}

func scanTrade(row *sql.Row) (*Trade, error) {
	t := &Trade{}
	var (
		attestedAt    sql.NullTime
		attestedBy    sql.NullString
		disputeReason sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.BuyerID, &t.SellerID, &t.FiatAmount, &t.FiatCurrency, &t.Status,
		&t.PaymentAttested, &attestedAt, &attestedBy,
		&t.DisputeOpen, &disputeReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, err
	}
	if attestedAt.Valid {
		t.PaymentAttestedAt = &attestedAt.Time
	}
	t.AttestedBy = attestedBy.String
	t.DisputeReason = disputeReason.String
	return t, nil
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
