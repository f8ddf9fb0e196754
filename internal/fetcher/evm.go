package fetcher

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/wallet-aggregator/internal/adapter"
	"github.com/wallet-aggregator/internal/aggregate"
	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/types"
)

// DeBankAPI is the subset of the aggregation API used by EVMFetcher
type DeBankAPI interface {
	AllTokens(ctx context.Context, address string) ([]adapter.DeBankToken, error)
	AllComplexProtocols(ctx context.Context, address string) ([]adapter.DeBankProtocol, error)
	Chains(ctx context.Context) ([]adapter.DeBankChain, error)
}

// EVMFetcher reads every EVM chain of a wallet with one aggregation API call
// and trusts the upstream prices.
type EVMFetcher struct {
	api DeBankAPI

	mu     sync.RWMutex
	chains map[string]adapter.DeBankChain
}

// NewEVMFetcher creates an EVM fetcher
func NewEVMFetcher(api DeBankAPI) *EVMFetcher {
	return &EVMFetcher{api: api, chains: make(map[string]adapter.DeBankChain)}
}

// Source implements Fetcher
func (f *EVMFetcher) Source() types.ChainFamily { return types.FamilyEVM }

// Prepare loads chain metadata. Chains stay usable without it, named by id.
func (f *EVMFetcher) Prepare(ctx context.Context) error {
	chains, err := f.api.Chains(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chains {
		f.chains[c.ID] = c
	}
	return nil
}

func (f *EVMFetcher) chainInfo(id string) types.ChainInfo {
	f.mu.RLock()
	c, ok := f.chains[id]
	f.mu.RUnlock()

	info := types.ChainInfo{ChainID: id, Name: id, Family: types.FamilyEVM}
	if ok {
		info.Name = c.Name
		info.LogoRef = c.LogoURL
		info.NativeSymbol = c.NativeTokenID
	}
	return info
}

// Fetch implements Fetcher
func (f *EVMFetcher) Fetch(ctx context.Context, wallet *models.Wallet) types.FetchResult {
	res := newResult(f.Source(), wallet)
	log := walletLogger(ctx, f.Source(), wallet)

	if !common.IsHexAddress(wallet.Address) {
		err := apperrors.NewInvalidAddressFormatError(wallet.Address, nil)
		log.WithError(err).Warn("Skipping EVM wallet")
		res.Error = err.Error()
		res.PositionsError = err.Error()
		return res
	}
	address := common.HexToAddress(wallet.Address).Hex()

	var (
		tokens       []adapter.DeBankToken
		protocols    []adapter.DeBankProtocol
		tokenErr     error
		protocolsErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tokens, tokenErr = f.api.AllTokens(gctx, address)
		return nil
	})
	g.Go(func() error {
		protocols, protocolsErr = f.api.AllComplexProtocols(gctx, address)
		return nil
	})
	_ = g.Wait()

	if tokenErr != nil {
		log.WithError(tokenErr).Warn("Failed to fetch EVM tokens")
		res.Error = tokenErr.Error()
	} else {
		res.Chains = f.groupTokens(tokens)
	}

	if protocolsErr != nil {
		log.WithError(protocolsErr).Warn("Failed to fetch EVM protocols")
		res.PositionsError = protocolsErr.Error()
	} else {
		res.Protocols = aggregate.ExpandPositions(walletProtocols(wallet, protocols))
	}

	log.WithFields(map[string]interface{}{
		"chains":    len(res.Chains),
		"positions": len(res.Protocols),
	}).Debug("Fetched EVM wallet")
	return res
}

// groupTokens splits the flat token list per chain, keeping upstream order
func (f *EVMFetcher) groupTokens(tokens []adapter.DeBankToken) []types.ChainResult {
	index := make(map[string]int)
	var out []types.ChainResult
	for _, t := range tokens {
		i, ok := index[t.Chain]
		if !ok {
			i = len(out)
			index[t.Chain] = i
			out = append(out, types.ChainResult{Chain: f.chainInfo(t.Chain), Data: []types.TokenRecord{}})
		}
		out[i].Data = append(out[i].Data, evmToken(t))
	}
	return out
}

func evmToken(t adapter.DeBankToken) types.TokenRecord {
	symbol := t.OptimizedSymbol
	if symbol == "" {
		symbol = t.Symbol
	}
	return types.TokenRecord{
		ChainID:        t.Chain,
		Name:           t.Name,
		Symbol:         symbol,
		Decimals:       t.Decimals,
		LogoRef:        t.LogoURL,
		PriceUSD:       t.Price,
		Price24hChange: t.Price24hChange,
		Amount:         t.Amount,
		RawAmount:      t.RawAmount.String(),
		IsCore:         t.IsCore,
	}
}

func walletProtocols(wallet *models.Wallet, protocols []adapter.DeBankProtocol) []aggregate.WalletProtocol {
	out := make([]aggregate.WalletProtocol, 0, len(protocols))
	for _, p := range protocols {
		wp := aggregate.WalletProtocol{
			WalletID:     wallet.ID,
			Tag:          wallet.Tag,
			ProtocolName: p.Name,
			ChainID:      p.Chain,
			LogoRef:      p.LogoURL,
		}
		for _, item := range p.PortfolioItemList {
			pi := aggregate.PortfolioItem{
				PositionType:  item.Name,
				AssetUSDValue: item.Stats.AssetUSDValue,
			}
			for _, list := range [][]adapter.DeBankPortfolioToken{item.Detail.SupplyTokenList, item.Detail.TokenList, item.Detail.RewardTokenList} {
				for _, t := range list {
					pi.Legs = append(pi.Legs, aggregate.Leg{Symbol: t.Symbol, Amount: t.Amount, PriceUSD: t.Price})
				}
			}
			wp.Items = append(wp.Items, pi)
		}
		out = append(out, wp)
	}
	return out
}

var _ Preparer = (*EVMFetcher)(nil)
