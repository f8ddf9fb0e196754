package aggregate

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/types"
)

// DustUSD is the fixed value under which a position leg is treated as dust.
// It is independent from the user's small-balance threshold.
var DustUSD = decimal.RequireFromString("0.1")

// Leg is one underlying token of a protocol portfolio item
type Leg struct {
	Symbol   string
	Amount   decimal.Decimal
	PriceUSD decimal.Decimal
}

// Value returns amount × price
func (l Leg) Value() decimal.Decimal {
	return l.Amount.Mul(l.PriceUSD)
}

// PortfolioItem is one position a wallet holds inside a protocol
type PortfolioItem struct {
	PositionType  string
	AssetUSDValue decimal.Decimal
	Legs          []Leg
}

// WalletProtocol is a protocol as reported for one wallet
type WalletProtocol struct {
	WalletID     string
	Tag          string
	ProtocolName string
	ChainID      string
	LogoRef      string
	Items        []PortfolioItem
}

// ExpandPositions flattens wallets × protocols × items into position records.
// A leg is dropped only when both its own value and the item's stated asset
// value are below DustUSD; an item with no surviving leg is skipped.
func ExpandPositions(protocols []WalletProtocol) []types.PositionRecord {
	var out []types.PositionRecord
	for _, p := range protocols {
		for _, item := range p.Items {
			itemIsDust := item.AssetUSDValue.LessThan(DustUSD)

			var names []string
			seen := make(map[string]bool)
			amount := decimal.Zero
			legValue := decimal.Zero
			for _, leg := range item.Legs {
				if itemIsDust && leg.Value().LessThan(DustUSD) {
					continue
				}
				amount = amount.Add(leg.Amount)
				legValue = legValue.Add(leg.Value())
				if !seen[leg.Symbol] {
					seen[leg.Symbol] = true
					names = append(names, leg.Symbol)
				}
			}
			if len(names) == 0 {
				continue
			}

			usd := item.AssetUSDValue
			if !usd.IsPositive() {
				usd = legValue
			}
			out = append(out, types.PositionRecord{
				WalletID:     p.WalletID,
				WalletTag:    p.Tag,
				ProtocolName: p.ProtocolName,
				ChainID:      p.ChainID,
				PositionType: item.PositionType,
				TokenNames:   strings.Join(names, "+"),
				Amount:       amount,
				PriceUSD:     unitPrice(usd, amount),
				USDValue:     usd,
				LogoRef:      p.LogoRef,
			})
		}
	}
	return out
}

// unitPrice is the value-weighted average price of a position
func unitPrice(usd, amount decimal.Decimal) decimal.Decimal {
	if amount.IsZero() {
		return decimal.Zero
	}
	return usd.DivRound(amount, 12)
}

// PositionFilter narrows positions before unification
type PositionFilter struct {
	ChainID  string
	WalletID string
	// Query is a case-insensitive substring of the composite token name.
	Query string
}

// Match reports whether p passes the filter
func (f PositionFilter) Match(p types.PositionRecord) bool {
	if f.ChainID != "" && p.ChainID != f.ChainID {
		return false
	}
	if f.WalletID != "" && p.WalletID != f.WalletID {
		return false
	}
	if f.Query != "" && !strings.Contains(strings.ToLower(p.TokenNames), strings.ToLower(f.Query)) {
		return false
	}
	return true
}

type positionEntry struct {
	pos       types.ProtocolPosition
	byWallet  map[string]int
	walletUSD []decimal.Decimal
}

type protocolBucket struct {
	entries map[types.PositionKey]*positionEntry
	order   []types.PositionKey
}

// UnifyPositions groups records by protocol, merges each protocol's
// positions across wallets and drops positions at or below threshold.
func UnifyPositions(records []types.PositionRecord, threshold decimal.Decimal) []types.ProtocolGroup {
	buckets := make(map[string]*protocolBucket)
	var protocols []string

	for _, r := range records {
		b, ok := buckets[r.ProtocolName]
		if !ok {
			b = &protocolBucket{entries: make(map[types.PositionKey]*positionEntry)}
			buckets[r.ProtocolName] = b
			protocols = append(protocols, r.ProtocolName)
		}

		key := r.Key()
		e, ok := b.entries[key]
		if !ok {
			b.entries[key] = &positionEntry{
				pos: types.ProtocolPosition{
					ProtocolName: r.ProtocolName,
					ChainID:      r.ChainID,
					PositionType: r.PositionType,
					TokenNames:   r.TokenNames,
					Amount:       r.Amount,
					USDValue:     r.USDValue,
					LogoRef:      r.LogoRef,
					Wallets:      []types.WalletAttribution{{WalletID: r.WalletID, Tag: r.WalletTag, Amount: r.Amount}},
				},
				byWallet:  map[string]int{r.WalletID: 0},
				walletUSD: []decimal.Decimal{r.USDValue},
			}
			b.order = append(b.order, key)
			continue
		}

		pos := &e.pos
		if idx, seen := e.byWallet[r.WalletID]; seen {
			// reprocessed wallet: swap its previous share for the new one
			pos.Amount = pos.Amount.Sub(pos.Wallets[idx].Amount).Add(r.Amount)
			pos.USDValue = pos.USDValue.Sub(e.walletUSD[idx]).Add(r.USDValue)
			pos.Wallets[idx].Amount = r.Amount
			e.walletUSD[idx] = r.USDValue
			continue
		}
		pos.Amount = pos.Amount.Add(r.Amount)
		pos.USDValue = pos.USDValue.Add(r.USDValue)
		e.byWallet[r.WalletID] = len(pos.Wallets)
		pos.Wallets = append(pos.Wallets, types.WalletAttribution{WalletID: r.WalletID, Tag: r.WalletTag, Amount: r.Amount})
		e.walletUSD = append(e.walletUSD, r.USDValue)
	}

	var groups []types.ProtocolGroup
	for _, name := range protocols {
		b := buckets[name]
		group := types.ProtocolGroup{Name: name, TotalUSD: decimal.Zero}
		for _, key := range b.order {
			pos := b.entries[key].pos
			if pos.USDValue.LessThanOrEqual(threshold) {
				continue
			}
			pos.PriceUSD = unitPrice(pos.USDValue, pos.Amount)
			group.Positions = append(group.Positions, pos)
			group.TotalUSD = group.TotalUSD.Add(pos.USDValue)
		}
		if len(group.Positions) == 0 {
			continue
		}
		sort.SliceStable(group.Positions, func(i, j int) bool {
			return group.Positions[i].USDValue.GreaterThan(group.Positions[j].USDValue)
		})
		groups = append(groups, group)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].TotalUSD.GreaterThan(groups[j].TotalUSD)
	})
	return groups
}

// TotalProtocolValue sums TotalUSD over groups
func TotalProtocolValue(groups []types.ProtocolGroup) decimal.Decimal {
	sum := decimal.Zero
	for _, g := range groups {
		sum = sum.Add(g.TotalUSD)
	}
	return sum
}
