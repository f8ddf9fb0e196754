package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one point of the net-worth time series
type Snapshot struct {
	ID            int64           `json:"id" db:"id"`
	Date          time.Time       `json:"date" db:"date"`
	TotalNetWorth decimal.Decimal `json:"totalNetWorth" db:"total_net_worth"`
	History       json.RawMessage `json:"historyData,omitempty" db:"history"`
}

// Setting is a key/value setting
type Setting struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ExchangeTransaction is a fiat order from an exchange, keyed by order_no
type ExchangeTransaction struct {
	OrderNo      string          `json:"order_no" db:"order_no"`
	Exchange     string          `json:"exchange" db:"exchange"`
	Direction    string          `json:"direction" db:"direction"`
	FiatCurrency string          `json:"fiat_currency" db:"fiat_currency"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Fee          decimal.Decimal `json:"fee" db:"fee"`
	Method       string          `json:"method" db:"method"`
	Status       string          `json:"status" db:"status"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
