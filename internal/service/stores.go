package service

import (
	"context"
	"time"

	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/storage"
	"github.com/wallet-aggregator/internal/types"
)

// Repository interfaces for dependency injection

// WalletStore is implemented by storage.WalletRepository
type WalletStore interface {
	Create(ctx context.Context, wallet *models.Wallet) error
	Get(ctx context.Context, id string) (*models.Wallet, error)
	List(ctx context.Context, family types.ChainFamily) ([]*models.Wallet, error)
	Update(ctx context.Context, id string, upd models.WalletUpdate) (*models.Wallet, error)
	Delete(ctx context.Context, id string) error
}

// HoldingsWriter is the write side of storage.HoldingsRepository
type HoldingsWriter interface {
	UpsertChain(ctx context.Context, chain types.ChainInfo) error
	UpsertToken(ctx context.Context, tok types.TokenRecord) (int64, error)
	UpsertWalletToken(ctx context.Context, link models.WalletToken) error
	ZeroStaleWalletTokens(ctx context.Context, walletID string, chainIDs []string, keep []int64) (int64, error)
	UpsertPosition(ctx context.Context, p models.Position) error
	ZeroStalePositions(ctx context.Context, walletID string, chainIDs []string, keep []string) (int64, error)
}

// HoldingsReader is the read side of storage.HoldingsRepository
type HoldingsReader interface {
	ListHoldings(ctx context.Context, f models.HoldingFilter) ([]storage.HoldingRow, error)
	ListPositions(ctx context.Context, f models.HoldingFilter) ([]types.PositionRecord, error)
}

// SnapshotStore is implemented by storage.SnapshotRepository
type SnapshotStore interface {
	Latest(ctx context.Context) (*models.Snapshot, error)
	Insert(ctx context.Context, s *models.Snapshot) error
	List(ctx context.Context, from, to time.Time) ([]models.Snapshot, error)
}

// SettingsStore is implemented by storage.SettingsRepository
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// ExchangeStore is implemented by storage.ExchangeTransactionRepository
type ExchangeStore interface {
	Upsert(ctx context.Context, tx models.ExchangeTransaction) error
	List(ctx context.Context, limit int) ([]models.ExchangeTransaction, error)
	LatestCreatedAt(ctx context.Context, exchange string) (time.Time, error)
}

// BalanceHistoryWriter is implemented by storage.BalanceHistoryRepository
type BalanceHistoryWriter interface {
	InsertBatch(ctx context.Context, points []storage.TokenBalancePoint) error
}

// ViewCache stores computed read views; implemented by storage.CacheService
type ViewCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	InvalidateType(ctx context.Context, keyType storage.CacheKeyType) error
}

// Invalidator drops cached read views after holdings or wallets change
type Invalidator interface {
	Invalidate(ctx context.Context)
}
