// Package types provides common type definitions shared by the fetchers,
// the aggregation pipeline and the read API.
package types

import (
	"github.com/shopspring/decimal"
)

// ChainFamily groups wallets by the data source able to read them
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilySolana ChainFamily = "solana"
	FamilyCosmos ChainFamily = "cosmos"
	FamilySui    ChainFamily = "sui"
	FamilyAptos  ChainFamily = "aptos"
	FamilyStatic ChainFamily = "static"
)

// AllFamilies lists the families in fetch order
var AllFamilies = []ChainFamily{FamilyEVM, FamilySolana, FamilyCosmos, FamilySui, FamilyAptos, FamilyStatic}

// Valid reports whether f is a known family
func (f ChainFamily) Valid() bool {
	for _, known := range AllFamilies {
		if f == known {
			return true
		}
	}
	return false
}

// PositionTypeStaked is used for native staking and delegations
const PositionTypeStaked = "Staked"

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// TokenKey is the canonical identity of a token across sources and storage
type TokenKey struct {
	ChainID string
	Symbol  string
}

// TokenRecord is a normalized holding as reported by one source for one wallet
type TokenRecord struct {
	ChainID        string          `json:"chain_id"`
	Name           string          `json:"name"`
	Symbol         string          `json:"symbol"`
	Decimals       int32           `json:"decimals"`
	LogoRef        string          `json:"logo_url,omitempty"`
	PriceUSD       decimal.Decimal `json:"price"`
	Price24hChange decimal.Decimal `json:"price_24h_change"`
	Amount         decimal.Decimal `json:"amount"`
	RawAmount      string          `json:"raw_amount"`
	IsCore         bool            `json:"is_core"`
}

// Key returns the canonical identity key
func (t TokenRecord) Key() TokenKey {
	return TokenKey{ChainID: t.ChainID, Symbol: t.Symbol}
}

// USDValue returns amount × price
func (t TokenRecord) USDValue() decimal.Decimal {
	return t.Amount.Mul(t.PriceUSD)
}

// WalletAttribution records how much of a merged holding one wallet contributed
type WalletAttribution struct {
	WalletID string          `json:"wallet_id"`
	Tag      string          `json:"tag"`
	Amount   decimal.Decimal `json:"amount"`
}

// UnifiedToken is a token merged across wallets
type UnifiedToken struct {
	TokenRecord
	Wallets       []WalletAttribution `json:"wallets"`
	TotalUSDValue decimal.Decimal     `json:"total_usd_value"`
}

// PositionRecord is one wallet's share of a protocol position before unification
type PositionRecord struct {
	WalletID     string          `json:"wallet_id"`
	WalletTag    string          `json:"wallet_tag"`
	ProtocolName string          `json:"protocol_name"`
	ChainID      string          `json:"chain_id"`
	PositionType string          `json:"position_type"`
	TokenNames   string          `json:"token_names"`
	Amount       decimal.Decimal `json:"amount"`
	PriceUSD     decimal.Decimal `json:"price_usd"`
	USDValue     decimal.Decimal `json:"usd_value"`
	LogoRef      string          `json:"logo_url,omitempty"`
}

// PositionKey identifies a position within one protocol
type PositionKey struct {
	TokenNames   string
	PositionType string
	ChainID      string
}

// Key returns the unification key
func (p PositionRecord) Key() PositionKey {
	return PositionKey{TokenNames: p.TokenNames, PositionType: p.PositionType, ChainID: p.ChainID}
}

// ProtocolPosition is a position merged across wallets
type ProtocolPosition struct {
	ProtocolName string              `json:"protocol_name"`
	ChainID      string              `json:"chain_id"`
	PositionType string              `json:"position_type"`
	TokenNames   string              `json:"token_names"`
	Amount       decimal.Decimal     `json:"amount"`
	PriceUSD     decimal.Decimal     `json:"price_usd"`
	USDValue     decimal.Decimal     `json:"usd_value"`
	LogoRef      string              `json:"logo_url,omitempty"`
	Wallets      []WalletAttribution `json:"wallets"`
}

// ProtocolGroup is the protocols-table row
type ProtocolGroup struct {
	Name      string             `json:"name"`
	Positions []ProtocolPosition `json:"positions"`
	TotalUSD  decimal.Decimal    `json:"totalUSD"`
}

// PriceQuote is a USD quote for one token
type PriceQuote struct {
	USD           decimal.Decimal  `json:"usd"`
	USDMarketCap  *decimal.Decimal `json:"usd_market_cap,omitempty"`
	USD24hVol     *decimal.Decimal `json:"usd_24h_vol,omitempty"`
	USD24hChange  *decimal.Decimal `json:"usd_24h_change,omitempty"` // fraction, not percent
	LastUpdatedAt *int64           `json:"last_updated_at,omitempty"`
}

// ChainInfo is chain metadata persisted ahead of tokens
type ChainInfo struct {
	ChainID      string      `json:"chain_id"`
	Name         string      `json:"name"`
	Family       ChainFamily `json:"family"`
	LogoRef      string      `json:"logo_url,omitempty"`
	NativeSymbol string      `json:"native_symbol,omitempty"`
}

// ChainResult is what one source returned for one chain.
// A failed chain keeps an empty Data slice and carries Error.
type ChainResult struct {
	Chain     ChainInfo        `json:"chain"`
	Data      []TokenRecord    `json:"data"`
	Positions []PositionRecord `json:"positions,omitempty"`
	Error     string           `json:"error,omitempty"`
	// Partial marks a read that could only identify part of the holdings.
	// Its data is stored but missing rows are not zeroed.
	Partial bool `json:"partial,omitempty"`
}

// Failed reports whether the chain could not be read
func (c ChainResult) Failed() bool {
	return c.Error != ""
}

// Replaceable reports whether the read is authoritative for the chain
func (c ChainResult) Replaceable() bool {
	return !c.Failed() && !c.Partial
}

// FetchResult is the outcome of fetching one wallet from one source
type FetchResult struct {
	Source   ChainFamily   `json:"source"`
	WalletID string        `json:"wallet_id"`
	Tag      string        `json:"tag"`
	Chains   []ChainResult `json:"chains"`
	// Protocols are wallet-wide positions not tied to one chain read.
	Protocols []PositionRecord `json:"protocols,omitempty"`
	// Error is set when the wallet's tokens could not be read at all.
	Error string `json:"error,omitempty"`
	// PositionsError is set when the protocol list could not be read;
	// previously stored positions are then left untouched.
	PositionsError string `json:"positions_error,omitempty"`
}

// Tokens flattens the tokens of all chains that were read successfully
func (r FetchResult) Tokens() []TokenRecord {
	var out []TokenRecord
	for _, c := range r.Chains {
		out = append(out, c.Data...)
	}
	return out
}

// Positions flattens the positions of all chains that were read
// successfully, followed by the wallet-wide protocol positions
func (r FetchResult) Positions() []PositionRecord {
	var out []PositionRecord
	for _, c := range r.Chains {
		if c.Failed() {
			continue
		}
		out = append(out, c.Positions...)
	}
	return append(out, r.Protocols...)
}

// SucceededChains returns the chain ids read without error
func (r FetchResult) SucceededChains() []string {
	var out []string
	for _, c := range r.Chains {
		if !c.Failed() {
			out = append(out, c.Chain.ChainID)
		}
	}
	return out
}

// ReplaceableChains returns the chain ids whose stored rows the result may replace
func (r FetchResult) ReplaceableChains() []string {
	var out []string
	for _, c := range r.Chains {
		if c.Replaceable() {
			out = append(out, c.Chain.ChainID)
		}
	}
	return out
}

// Complete reports whether every part of the wallet was read
func (r FetchResult) Complete() bool {
	return r.Error == "" && r.PositionsError == "" && len(r.ReplaceableChains()) == len(r.Chains)
}

// FailedChains returns the chain ids that carry an error
func (r FetchResult) FailedChains() []string {
	var out []string
	for _, c := range r.Chains {
		if c.Failed() {
			out = append(out, c.Chain.ChainID)
		}
	}
	return out
}

// Aggregate is the full state written into a snapshot
type Aggregate struct {
	Tokens        []UnifiedToken  `json:"tokens"`
	Protocols     []ProtocolGroup `json:"protocols"`
	TotalNetWorth decimal.Decimal `json:"totalNetWorth"`
}
