package escrow

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists escrow transactions in PostgreSQL. The conditional
// transition is a single UPDATE guarded on the current state, which is what
// makes the engine safe to run as multiple replicas.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed escrow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txColumns = `id, trade_id, custody_address, asset,
		expected_amount, confirmed_amount, state,
		deposit_tx_ref, release_tx_ref, release_destination,
		release_attempts, failure_reason,
		created_at, funded_at, released_at, expires_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO escrow_transactions (
			id, trade_id, custody_address, asset,
			expected_amount, confirmed_amount, state,
			deposit_tx_ref, release_tx_ref, release_destination,
			release_attempts, failure_reason,
			created_at, funded_at, released_at, expires_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		tx.ID, tx.TradeID, tx.CustodyAddress, tx.Asset,
		tx.ExpectedAmount, nullString(tx.ConfirmedAmount), string(tx.State),
		nullString(tx.DepositTxRef), nullString(tx.ReleaseTxRef), tx.ReleaseDestination,
		tx.ReleaseAttempts, nullString(tx.FailureReason),
		tx.CreatedAt, nullTime(tx.FundedAt), nullTime(tx.ReleasedAt), tx.ExpiresAt, tx.UpdatedAt,
	)
	if err != nil {
		// The unique index on trade_id enforces the 1:1 invariant.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM escrow_transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (p *PostgresStore) GetByTradeID(ctx context.Context, tradeID string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM escrow_transactions WHERE trade_id = $1`, tradeID)
	return scanTransaction(row)
}

func (p *PostgresStore) GetByAddress(ctx context.Context, custodyAddress string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM escrow_transactions WHERE custody_address = $1`, custodyAddress)
	return scanTransaction(row)
}

func (p *PostgresStore) ConditionalTransition(ctx context.Context, id string, from, to State, fields Fields) (*Transaction, error) {
	if !CanTransition(from, to) {
		return nil, ErrBadTransition
	}

	row := p.db.QueryRowContext(ctx, `
		UPDATE escrow_transactions SET
			state = $3,
			confirmed_amount = COALESCE($4, confirmed_amount),
			deposit_tx_ref = COALESCE($5, deposit_tx_ref),
			release_tx_ref = COALESCE($6, release_tx_ref),
			release_attempts = COALESCE($7, release_attempts),
			failure_reason = COALESCE($8, failure_reason),
			funded_at = COALESCE($9, funded_at),
			released_at = COALESCE($10, released_at),
			updated_at = NOW()
		WHERE id = $1 AND state = $2
		RETURNING `+txColumns,
		id, string(from), string(to),
		nullStringPtr(fields.ConfirmedAmount),
		nullStringPtr(fields.DepositTxRef),
		nullStringPtr(fields.ReleaseTxRef),
		nullIntPtr(fields.ReleaseAttempts),
		nullStringPtr(fields.FailureReason),
		nullTime(fields.FundedAt),
		nullTime(fields.ReleasedAt),
	)

	tx, err := scanTransaction(row)
	if err == ErrNotFound {
		// Guard did not match: either the row is gone or another caller
		// moved the state first.
		if _, getErr := p.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStaleState
	}
	return tx, err
}

func (p *PostgresStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM escrow_transactions
		WHERE state IN ('awaiting_deposit', 'funded')
		  AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

func (p *PostgresStore) ListByState(ctx context.Context, state State, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM escrow_transactions
		WHERE state = $1
		ORDER BY created_at
		LIMIT $2`, string(state), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

func (p *PostgresStore) ListAwaitingDeposit(ctx context.Context, createdBefore time.Time, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM escrow_transactions
		WHERE state = 'awaiting_deposit'
		  AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s scanner) (*Transaction, error) {
	tx := &Transaction{}
	var (
		confirmedAmount sql.NullString
		state           string
		depositTxRef    sql.NullString
		releaseTxRef    sql.NullString
		failureReason   sql.NullString
		fundedAt        sql.NullTime
		releasedAt      sql.NullTime
	)

	err := s.Scan(
		&tx.ID, &tx.TradeID, &tx.CustodyAddress, &tx.Asset,
		&tx.ExpectedAmount, &confirmedAmount, &state,
		&depositTxRef, &releaseTxRef, &tx.ReleaseDestination,
		&tx.ReleaseAttempts, &failureReason,
		&tx.CreatedAt, &fundedAt, &releasedAt, &tx.ExpiresAt, &tx.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.State = State(state)
	tx.ConfirmedAmount = confirmedAmount.String
	tx.DepositTxRef = depositTxRef.String
	tx.ReleaseTxRef = releaseTxRef.String
	tx.FailureReason = failureReason.String
	if fundedAt.Valid {
		tx.FundedAt = &fundedAt.Time
	}
	if releasedAt.Valid {
		tx.ReleasedAt = &releasedAt.Time
	}

	return tx, nil
}

func scanTransactions(rows *sql.Rows) ([]*Transaction, error) {
	var result []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringPtr converts a *string to sql.NullString (nil = leave unchanged).
func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullIntPtr converts a *int to sql.NullInt64 (nil = leave unchanged).
func nullIntPtr(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
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
