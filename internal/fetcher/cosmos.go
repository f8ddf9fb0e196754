package fetcher

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wallet-aggregator/internal/adapter"
	"github.com/wallet-aggregator/internal/config"
	"github.com/wallet-aggregator/internal/derive"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/price"
	"github.com/wallet-aggregator/internal/types"
)

// Denoms relayed over IBC or minted by the token factory are not native holdings
var foreignDenomPrefixes = []string{"ibc/", "factory/"}

// secondary denoms on Cosmos chains default to micro units
const cosmosSecondaryDecimals = 6

// CosmosAPI reads one Cosmos-SDK chain
type CosmosAPI interface {
	Balances(ctx context.Context, address string) ([]adapter.CosmosCoin, error)
	Delegations(ctx context.Context, address string) ([]adapter.CosmosDelegation, error)
}

// CosmosChain binds chain configuration to its client
type CosmosChain struct {
	config.CosmosChain
	Client CosmosAPI
}

// CosmosFetcher derives the wallet's address on every configured chain and
// reads balances and delegations of all chains concurrently.
type CosmosFetcher struct {
	chains    []CosmosChain
	overrides map[string]string
	prices    PriceResolver
}

// NewCosmosFetcher creates a Cosmos-family fetcher
func NewCosmosFetcher(chains []CosmosChain, overrides map[string]string, prices PriceResolver) *CosmosFetcher {
	return &CosmosFetcher{chains: chains, overrides: overrides, prices: prices}
}

// Source implements Fetcher
func (f *CosmosFetcher) Source() types.ChainFamily { return types.FamilyCosmos }

func (f *CosmosFetcher) targets() []derive.Target {
	out := make([]derive.Target, 0, len(f.chains))
	for _, c := range f.chains {
		out = append(out, derive.Target{Symbol: c.Symbol, Prefix: c.Prefix, Derivable: c.Derivable})
	}
	return out
}

// Fetch implements Fetcher
func (f *CosmosFetcher) Fetch(ctx context.Context, wallet *models.Wallet) types.FetchResult {
	res := newResult(f.Source(), wallet)
	log := walletLogger(ctx, f.Source(), wallet)

	addresses, err := derive.Derive(wallet.Address, f.targets(), f.overrides)
	if err != nil {
		log.WithError(err).Warn("Skipping Cosmos wallet")
		res.Error = err.Error()
		return res
	}

	ids := make([]string, 0, len(f.chains))
	for _, c := range f.chains {
		ids = append(ids, c.PriceID)
	}
	quotes := f.prices.ResolveMany(ctx, ids)

	results := make([]*types.ChainResult, len(f.chains))
	g, gctx := errgroup.WithContext(ctx)
	for i, chain := range f.chains {
		address, ok := addresses[chain.Symbol]
		if !ok {
			log.WithField("chain", chain.Symbol).Debug("No address for chain")
			continue
		}
		g.Go(func() error {
			r := f.fetchChain(gctx, wallet, chain, address, quotes[normalizePriceID(chain.PriceID)])
			if r.Failed() {
				log.WithFields(map[string]interface{}{
					"chain":   chain.ChainID,
					"address": address,
					"error":   r.Error,
				}).Warn("Failed to fetch Cosmos chain")
			}
			results[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r != nil {
			res.Chains = append(res.Chains, *r)
		}
	}
	return res
}

func (f *CosmosFetcher) fetchChain(ctx context.Context, wallet *models.Wallet, chain CosmosChain, address string, quote *types.PriceQuote) types.ChainResult {
	info := types.ChainInfo{
		ChainID:      chain.ChainID,
		Name:         chain.Name,
		Family:       types.FamilyCosmos,
		NativeSymbol: chain.Symbol,
	}

	var (
		balances      []adapter.CosmosCoin
		delegations   []adapter.CosmosDelegation
		balanceErr    error
		delegationErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		balances, balanceErr = chain.Client.Balances(gctx, address)
		return nil
	})
	g.Go(func() error {
		delegations, delegationErr = chain.Client.Delegations(gctx, address)
		return nil
	})
	_ = g.Wait()

	if balanceErr != nil {
		return failChain(info, balanceErr)
	}
	if delegationErr != nil {
		return failChain(info, delegationErr)
	}

	usd := price.USDOrFallback(quote, decimal.Zero)
	change := price.ChangeOrZero(quote)

	out := types.ChainResult{Chain: info, Data: []types.TokenRecord{}}
	for _, coin := range balances {
		if isForeignDenom(coin.Denom) || !coin.Amount.IsPositive() {
			continue
		}
		rec := types.TokenRecord{ChainID: chain.ChainID, RawAmount: coin.Amount.String()}
		if coin.Denom == chain.Denom {
			rec.Name = chain.Name
			rec.Symbol = chain.Symbol
			rec.Decimals = chain.Decimals
			rec.PriceUSD = usd
			rec.Price24hChange = change
			rec.IsCore = true
		} else {
			rec.Symbol = secondarySymbol(coin.Denom)
			rec.Name = rec.Symbol
			rec.Decimals = cosmosSecondaryDecimals
		}
		rec.Amount = fromBaseUnits(coin.Amount, rec.Decimals)
		out.Data = append(out.Data, rec)
	}

	staked := decimal.Zero
	for _, d := range delegations {
		if d.Balance.Denom == chain.Denom {
			staked = staked.Add(d.Balance.Amount)
		}
	}
	if staked.IsPositive() {
		out.Positions = append(out.Positions,
			stakedPosition(wallet, chain.Name, chain.ChainID, chain.Symbol, fromBaseUnits(staked, chain.Decimals), usd))
	}
	return out
}

func isForeignDenom(denom string) bool {
	for _, p := range foreignDenomPrefixes {
		if strings.HasPrefix(denom, p) {
			return true
		}
	}
	return false
}

// secondarySymbol turns a micro denom such as "uusdc" into "USDC"
func secondarySymbol(denom string) string {
	if len(denom) > 1 && denom[0] == 'u' {
		denom = denom[1:]
	}
	return strings.ToUpper(denom)
}
