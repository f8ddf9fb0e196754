package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/price"
	"github.com/wallet-aggregator/internal/types"
)

// StaticHolding is one manually maintained holding
type StaticHolding struct {
	Chain     string          `json:"chain"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	WalletTag string          `json:"wallet_tag"`
	Amount    decimal.Decimal `json:"amount"`
	Decimals  int32           `json:"decimals"`
	PriceID   string          `json:"price_id"`
	LogoURL   string          `json:"logo_url"`
}

// LoadStaticHoldings reads the holdings file. An empty path yields no holdings.
func LoadStaticHoldings(path string) ([]StaticHolding, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read static holdings: %w", err)
	}
	var out []StaticHolding
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse static holdings: %w", err)
	}
	for i, h := range out {
		if h.Chain == "" || h.Symbol == "" {
			return nil, fmt.Errorf("static holding %d: chain and symbol are required", i)
		}
	}
	return out, nil
}

// StaticFetcher serves holdings that no API can reach, priced dynamically.
// A holding belongs to a wallet when its wallet_tag equals the wallet's tag
// or address.
type StaticFetcher struct {
	holdings []StaticHolding
	prices   PriceResolver
}

// NewStaticFetcher creates a static fetcher
func NewStaticFetcher(holdings []StaticHolding, prices PriceResolver) *StaticFetcher {
	return &StaticFetcher{holdings: holdings, prices: prices}
}

// Source implements Fetcher
func (f *StaticFetcher) Source() types.ChainFamily { return types.FamilyStatic }

func (f *StaticFetcher) matches(h StaticHolding, wallet *models.Wallet) bool {
	return strings.EqualFold(h.WalletTag, wallet.Tag) || strings.EqualFold(h.WalletTag, wallet.Address)
}

// Fetch implements Fetcher
func (f *StaticFetcher) Fetch(ctx context.Context, wallet *models.Wallet) types.FetchResult {
	res := newResult(f.Source(), wallet)

	var mine []StaticHolding
	var ids []string
	for _, h := range f.holdings {
		if f.matches(h, wallet) {
			mine = append(mine, h)
			ids = append(ids, h.PriceID)
		}
	}
	if len(mine) == 0 {
		return res
	}
	quotes := f.prices.ResolveMany(ctx, ids)

	index := make(map[string]int)
	for _, h := range mine {
		i, ok := index[h.Chain]
		if !ok {
			i = len(res.Chains)
			index[h.Chain] = i
			res.Chains = append(res.Chains, types.ChainResult{
				Chain: types.ChainInfo{ChainID: h.Chain, Name: h.Chain, Family: types.FamilyStatic},
				Data:  []types.TokenRecord{},
			})
		}

		q := quotes[normalizePriceID(h.PriceID)]
		name := h.Name
		if name == "" {
			name = h.Symbol
		}
		res.Chains[i].Data = append(res.Chains[i].Data, types.TokenRecord{
			ChainID:        h.Chain,
			Name:           name,
			Symbol:         h.Symbol,
			Decimals:       h.Decimals,
			LogoRef:        h.LogoURL,
			PriceUSD:       price.USDOrFallback(q, decimal.Zero),
			Price24hChange: price.ChangeOrZero(q),
			Amount:         h.Amount,
			RawAmount:      h.Amount.Shift(h.Decimals).Truncate(0).String(),
		})
	}

	walletLogger(ctx, f.Source(), wallet).WithField("holdings", len(mine)).Debug("Loaded static holdings")
	return res
}
