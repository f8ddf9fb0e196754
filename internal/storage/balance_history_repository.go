package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// historyScale matches the Decimal(76, 18) columns of token_balance_history
const historyScale = 18

// TokenBalancePoint is one unified token's balance at a snapshot
type TokenBalancePoint struct {
	SnapshotDate time.Time       `json:"snapshotDate"`
	ChainID      string          `json:"chainId"`
	Symbol       string          `json:"symbol"`
	Amount       decimal.Decimal `json:"amount"`
	PriceUSD     decimal.Decimal `json:"priceUsd"`
	USDValue     decimal.Decimal `json:"usdValue"`
	WalletCount  uint32          `json:"walletCount"`
}

// BalanceHistoryRepository appends per-token balance rows to ClickHouse
type BalanceHistoryRepository struct {
	db *ClickHouseDB
}

// NewBalanceHistoryRepository creates a new balance history repository
func NewBalanceHistoryRepository(db *ClickHouseDB) *BalanceHistoryRepository {
	return &BalanceHistoryRepository{db: db}
}

// InsertBatch writes all points in one batch
func (r *BalanceHistoryRepository) InsertBatch(ctx context.Context, points []TokenBalancePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO token_balance_history (snapshot_date, chain_id, symbol, amount, price_usd, usd_value, wallet_count)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(
			p.SnapshotDate.UTC(),
			p.ChainID,
			p.Symbol,
			p.Amount.Round(historyScale),
			p.PriceUSD.Round(historyScale),
			p.USDValue.Round(historyScale),
			p.WalletCount,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// History returns the points of one token between from and to, oldest first
func (r *BalanceHistoryRepository) History(ctx context.Context, chainID, symbol string, from, to time.Time) ([]TokenBalancePoint, error) {
	query := `
		SELECT snapshot_date, chain_id, symbol, amount, price_usd, usd_value, wallet_count
		FROM token_balance_history
		WHERE chain_id = ? AND symbol = ? AND snapshot_date >= ? AND snapshot_date <= ?
		ORDER BY snapshot_date ASC
	`

	rows, err := r.db.Conn().Query(ctx, query, chainID, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance history: %w", err)
	}
	defer rows.Close()

	var points []TokenBalancePoint
	for rows.Next() {
		var p TokenBalancePoint
		if err := rows.Scan(&p.SnapshotDate, &p.ChainID, &p.Symbol, &p.Amount, &p.PriceUSD, &p.USDValue, &p.WalletCount); err != nil {
			return nil, fmt.Errorf("failed to scan balance point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}
