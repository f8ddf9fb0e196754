// Package fetcher reads wallet holdings from each chain family and
// normalizes them into token and position records.
//
// Fetchers never return errors. Whatever could be read is returned and
// failures are annotated on the result, per wallet or per chain, so one
// source or chain going down does not affect the others.
package fetcher

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/logging"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/types"
)

// Fetcher reads one wallet from one source
type Fetcher interface {
	Source() types.ChainFamily
	Fetch(ctx context.Context, wallet *models.Wallet) types.FetchResult
}

// Preparer is implemented by fetchers that load shared data once per run
type Preparer interface {
	Prepare(ctx context.Context) error
}

// PriceResolver resolves price ids to USD quotes, returning nil when unknown
type PriceResolver interface {
	Resolve(ctx context.Context, id string) *types.PriceQuote
	ResolveMany(ctx context.Context, ids []string) map[string]*types.PriceQuote
}

// Registry holds the configured fetchers by source
type Registry struct {
	fetchers map[types.ChainFamily]Fetcher
}

// NewRegistry creates a registry; a later fetcher replaces an earlier one of the same source
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[types.ChainFamily]Fetcher, len(fetchers))}
	for _, f := range fetchers {
		r.fetchers[f.Source()] = f
	}
	return r
}

// Get returns the fetcher of a source
func (r *Registry) Get(source types.ChainFamily) (Fetcher, bool) {
	f, ok := r.fetchers[source]
	return f, ok
}

// Sources returns the configured sources in fetch order
func (r *Registry) Sources() []types.ChainFamily {
	var out []types.ChainFamily
	for _, s := range types.AllFamilies {
		if _, ok := r.fetchers[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func newResult(source types.ChainFamily, wallet *models.Wallet) types.FetchResult {
	return types.FetchResult{
		Source:   source,
		WalletID: wallet.ID,
		Tag:      wallet.Tag,
		Chains:   []types.ChainResult{},
	}
}

func failChain(info types.ChainInfo, err error) types.ChainResult {
	return types.ChainResult{Chain: info, Data: []types.TokenRecord{}, Error: err.Error()}
}

func fromBaseUnits(raw decimal.Decimal, decimals int32) decimal.Decimal {
	return raw.Shift(-decimals)
}

func walletLogger(ctx context.Context, source types.ChainFamily, wallet *models.Wallet) *logging.Logger {
	return logging.FromContext(ctx).WithFields(map[string]interface{}{
		"source":    string(source),
		"wallet_id": wallet.ID,
		"tag":       wallet.Tag,
	})
}

// stakedPosition builds the position of a native staking balance
func stakedPosition(wallet *models.Wallet, chainName, chainID, symbol string, amount, price decimal.Decimal) types.PositionRecord {
	return types.PositionRecord{
		WalletID:     wallet.ID,
		WalletTag:    wallet.Tag,
		ProtocolName: chainName + " Staking",
		ChainID:      chainID,
		PositionType: types.PositionTypeStaked,
		TokenNames:   symbol,
		Amount:       amount,
		PriceUSD:     price,
		USDValue:     amount.Mul(price),
	}
}

// normalizePriceID matches the keys returned by PriceResolver.ResolveMany
func normalizePriceID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
