package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/types"
)

// Chain is chain metadata, keyed by chain_id
type Chain struct {
	ChainID      string            `json:"chain_id" db:"chain_id"`
	Name         string            `json:"name" db:"name"`
	Family       types.ChainFamily `json:"family" db:"family"`
	LogoRef      string            `json:"logo_url" db:"logo_url"`
	NativeSymbol string            `json:"native_symbol" db:"native_symbol"`
	UpdatedAt    time.Time         `json:"updatedAt" db:"updated_at"`
}

// Token is a token row, keyed by (chain_id, symbol)
type Token struct {
	ID             int64           `json:"id" db:"id"`
	ChainID        string          `json:"chain_id" db:"chain_id"`
	Name           string          `json:"name" db:"name"`
	Symbol         string          `json:"symbol" db:"symbol"`
	Decimals       int32           `json:"decimals" db:"decimals"`
	LogoRef        string          `json:"logo_url" db:"logo_url"`
	PriceUSD       decimal.Decimal `json:"price" db:"price_usd"`
	Price24hChange decimal.Decimal `json:"price_24h_change" db:"price_24h_change"`
	IsCore         bool            `json:"is_core" db:"is_core"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// WalletToken links a wallet to a token, keyed by (wallet_id, token_id)
type WalletToken struct {
	WalletID  string          `json:"wallet_id" db:"wallet_id"`
	TokenID   int64           `json:"token_id" db:"token_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	RawAmount string          `json:"raw_amount" db:"raw_amount"`
	USDValue  decimal.Decimal `json:"usd_value" db:"usd_value"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// Position is one wallet's protocol position, keyed by
// (wallet_id, protocol_name, chain_id, position_type, token_names)
type Position struct {
	WalletID     string          `json:"wallet_id" db:"wallet_id"`
	ProtocolName string          `json:"protocol_name" db:"protocol_name"`
	ChainID      string          `json:"chain_id" db:"chain_id"`
	PositionType string          `json:"position_type" db:"position_type"`
	TokenNames   string          `json:"token_names" db:"token_names"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	PriceUSD     decimal.Decimal `json:"price_usd" db:"price_usd"`
	USDValue     decimal.Decimal `json:"usd_value" db:"usd_value"`
	LogoRef      string          `json:"logo_url" db:"logo_url"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}

// HoldingFilter narrows holdings and positions read back from storage
type HoldingFilter struct {
	ChainID  string
	WalletID string
	Query    string
	// VisibleOnly excludes wallets hidden by the user.
	VisibleOnly bool
}
