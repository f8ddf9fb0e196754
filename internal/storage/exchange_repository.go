package storage

import (
	"context"
	"time"

	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/models"
)

// ExchangeTransactionRepository stores exchange fiat orders keyed by order number
type ExchangeTransactionRepository struct {
	db *PostgresDB
}

// NewExchangeTransactionRepository creates a new exchange transaction repository
func NewExchangeTransactionRepository(db *PostgresDB) *ExchangeTransactionRepository {
	return &ExchangeTransactionRepository{db: db}
}

// Upsert inserts or updates a transaction by order_no
func (r *ExchangeTransactionRepository) Upsert(ctx context.Context, tx models.ExchangeTransaction) error {
	query := `
		INSERT INTO exchange_transactions (order_no, exchange, direction, fiat_currency, amount, fee, method, status, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9)
		ON CONFLICT (order_no) DO UPDATE SET
			amount = EXCLUDED.amount,
			fee = EXCLUDED.fee,
			method = EXCLUDED.method,
			status = EXCLUDED.status
	`
	_, err := r.db.Pool().Exec(ctx, query,
		tx.OrderNo,
		tx.Exchange,
		tx.Direction,
		tx.FiatCurrency,
		tx.Amount.String(),
		tx.Fee.String(),
		tx.Method,
		tx.Status,
		tx.CreatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("upsert exchange transaction", err)
	}
	return nil
}

// List returns the most recent transactions, newest first
func (r *ExchangeTransactionRepository) List(ctx context.Context, limit int) ([]models.ExchangeTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT order_no, exchange, direction, fiat_currency, amount::text, fee::text, method, status, created_at
		FROM exchange_transactions
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list exchange transactions", err)
	}
	defer rows.Close()

	var out []models.ExchangeTransaction
	for rows.Next() {
		var tx models.ExchangeTransaction
		var amount, fee string
		if err := rows.Scan(&tx.OrderNo, &tx.Exchange, &tx.Direction, &tx.FiatCurrency, &amount, &fee,
			&tx.Method, &tx.Status, &tx.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan exchange transaction", err)
		}
		if tx.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		if tx.Fee, err = parseNumeric(fee); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list exchange transactions", err)
	}
	return out, nil
}

// LatestCreatedAt returns the creation time of the newest stored order of an
// exchange, or the zero time when none is stored
func (r *ExchangeTransactionRepository) LatestCreatedAt(ctx context.Context, exchange string) (time.Time, error) {
	var latest *time.Time
	err := r.db.Pool().QueryRow(ctx,
		`SELECT MAX(created_at) FROM exchange_transactions WHERE exchange = $1`, exchange).Scan(&latest)
	if err != nil {
		return time.Time{}, apperrors.NewDatabaseError("latest exchange transaction", err)
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return *latest, nil
}
