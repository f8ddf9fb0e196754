// Package models provides the persisted data models of the wallet aggregator.
package models

import (
	"time"

	"github.com/wallet-aggregator/internal/types"
)

// Wallet is a user-controlled account. Address is immutable once created.
type Wallet struct {
	ID          string            `json:"id" db:"id"`
	Address     string            `json:"address" db:"address"`
	ChainFamily types.ChainFamily `json:"chain_family" db:"chain_family"`
	Tag         string            `json:"tag" db:"tag"`
	Visible     bool              `json:"visible" db:"visible"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time         `json:"updatedAt" db:"updated_at"`
}

// WalletUpdate holds the mutable wallet fields
type WalletUpdate struct {
	Tag     *string `json:"tag,omitempty"`
	Visible *bool   `json:"visible,omitempty"`
}
