// Package aggregate merges per-wallet holdings into unified records.
//
// Tokens are keyed by (chain id, symbol), the same natural key used in
// storage. Positions are keyed by (token names, position type, chain id)
// inside one protocol. A wallet seen twice for the same key replaces its
// earlier contribution instead of adding to it.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/types"
)

type tokenEntry struct {
	token    types.UnifiedToken
	byWallet map[string]int
}

// Unifier merges TokenRecords observed across wallets.
// A Unifier is not safe for concurrent use; build one per request.
type Unifier struct {
	entries map[types.TokenKey]*tokenEntry
	order   []types.TokenKey
}

// NewUnifier creates an empty unifier
func NewUnifier() *Unifier {
	return &Unifier{entries: make(map[types.TokenKey]*tokenEntry)}
}

// Add merges rec as held by the given wallet
func (u *Unifier) Add(walletID, tag string, rec types.TokenRecord) {
	key := rec.Key()
	e, ok := u.entries[key]
	if !ok {
		e = &tokenEntry{
			token: types.UnifiedToken{
				TokenRecord: rec,
				Wallets:     []types.WalletAttribution{{WalletID: walletID, Tag: tag, Amount: rec.Amount}},
			},
			byWallet: map[string]int{walletID: 0},
		}
		u.entries[key] = e
		u.order = append(u.order, key)
		return
	}

	t := &e.token
	if idx, seen := e.byWallet[walletID]; seen {
		prev := t.Wallets[idx].Amount
		t.Amount = t.Amount.Sub(prev).Add(rec.Amount)
		t.Wallets[idx].Amount = rec.Amount
		t.Wallets[idx].Tag = tag
	} else {
		t.Amount = t.Amount.Add(rec.Amount)
		e.byWallet[walletID] = len(t.Wallets)
		t.Wallets = append(t.Wallets, types.WalletAttribution{WalletID: walletID, Tag: tag, Amount: rec.Amount})
	}

	// first seen wins for display metadata; a missing price is filled in
	if t.PriceUSD.IsZero() && !rec.PriceUSD.IsZero() {
		t.PriceUSD = rec.PriceUSD
		t.Price24hChange = rec.Price24hChange
	}
	if t.LogoRef == "" {
		t.LogoRef = rec.LogoRef
	}
	t.IsCore = t.IsCore || rec.IsCore
}

// Len returns the number of distinct keys seen
func (u *Unifier) Len() int {
	return len(u.entries)
}

// Result computes total_usd_value, drops records at or below threshold and
// sorts the rest by value, largest first.
func (u *Unifier) Result(threshold decimal.Decimal) []types.UnifiedToken {
	out := make([]types.UnifiedToken, 0, len(u.order))
	for _, key := range u.order {
		t := u.entries[key].token
		t.TotalUSDValue = t.Amount.Mul(t.PriceUSD)
		if t.TotalUSDValue.LessThanOrEqual(threshold) {
			continue
		}
		t.Wallets = append([]types.WalletAttribution(nil), t.Wallets...)
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalUSDValue.GreaterThan(out[j].TotalUSDValue)
	})
	return out
}

// Holding is one wallet's record, as read back from storage
type Holding struct {
	WalletID string
	Tag      string
	Token    types.TokenRecord
}

// UnifyTokens merges holdings in order and applies the threshold
func UnifyTokens(holdings []Holding, threshold decimal.Decimal) []types.UnifiedToken {
	u := NewUnifier()
	for _, h := range holdings {
		u.Add(h.WalletID, h.Tag, h.Token)
	}
	return u.Result(threshold)
}

// TotalValue sums TotalUSDValue
func TotalValue(tokens []types.UnifiedToken) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range tokens {
		sum = sum.Add(t.TotalUSDValue)
	}
	return sum
}
