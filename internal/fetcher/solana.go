package fetcher

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/adapter"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/price"
	"github.com/wallet-aggregator/internal/ratelimit"
	"github.com/wallet-aggregator/internal/types"
)

const (
	solanaChainID   = "sol"
	solanaDecimals  = 9
	solanaPriceID   = "solana"
	solanaNativeSym = "SOL"
)

// SolanaAPI is the subset of the Solana client used by SolanaFetcher
type SolanaAPI interface {
	NativeBalance(ctx context.Context, owner string) (uint64, error)
	TokenBalances(ctx context.Context, owner string) ([]adapter.SPLBalance, error)
	VerifiedTokens(ctx context.Context) ([]adapter.SolanaListedToken, error)
}

// SpecialMint describes a mint that is priced although it is not on the verified list
type SpecialMint struct {
	Symbol  string
	Name    string
	PriceID string
}

// DefaultSpecialMints are matched by exact mint address
var DefaultSpecialMints = map[string]SpecialMint{
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So": {Symbol: "mSOL", Name: "Marinade staked SOL", PriceID: "msol"},
}

// SolanaFetcher reads native SOL and SPL token balances. Every RPC call
// waits on the injected limiter first.
type SolanaFetcher struct {
	api     SolanaAPI
	prices  PriceResolver
	limiter ratelimit.Waiter
	special map[string]SpecialMint

	mu     sync.RWMutex
	listed map[string]adapter.SolanaListedToken
	loaded bool
}

// NewSolanaFetcher creates a Solana fetcher. A nil limiter disables pacing.
func NewSolanaFetcher(api SolanaAPI, prices PriceResolver, limiter ratelimit.Waiter, special map[string]SpecialMint) *SolanaFetcher {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if special == nil {
		special = DefaultSpecialMints
	}
	return &SolanaFetcher{
		api:     api,
		prices:  prices,
		limiter: limiter,
		special: special,
		listed:  make(map[string]adapter.SolanaListedToken),
	}
}

// Source implements Fetcher
func (f *SolanaFetcher) Source() types.ChainFamily { return types.FamilySolana }

// Prepare loads the verified token list once per run. When it fails the
// previous list, if any, stays in use.
func (f *SolanaFetcher) Prepare(ctx context.Context) error {
	tokens, err := f.api.VerifiedTokens(ctx)
	if err != nil {
		return err
	}
	listed := make(map[string]adapter.SolanaListedToken, len(tokens))
	for _, t := range tokens {
		listed[t.Address] = t
	}
	f.mu.Lock()
	f.listed = listed
	f.loaded = true
	f.mu.Unlock()
	return nil
}

func (f *SolanaFetcher) chainInfo() types.ChainInfo {
	return types.ChainInfo{ChainID: solanaChainID, Name: "Solana", Family: types.FamilySolana, NativeSymbol: solanaNativeSym}
}

// Fetch implements Fetcher
func (f *SolanaFetcher) Fetch(ctx context.Context, wallet *models.Wallet) types.FetchResult {
	res := newResult(f.Source(), wallet)
	log := walletLogger(ctx, f.Source(), wallet)
	info := f.chainInfo()

	fail := func(err error) types.FetchResult {
		if errors.Is(err, adapter.ErrInvalidAddress) {
			log.WithError(err).Warn("Skipping Solana wallet")
			res.Error = err.Error()
			return res
		}
		log.WithError(err).Warn("Failed to fetch Solana wallet")
		res.Chains = append(res.Chains, failChain(info, err))
		return res
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return fail(err)
	}
	lamports, err := f.api.NativeBalance(ctx, wallet.Address)
	if err != nil {
		return fail(err)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return fail(err)
	}
	balances, err := f.api.TokenBalances(ctx, wallet.Address)
	if err != nil {
		return fail(err)
	}

	type pending struct {
		rec     types.TokenRecord
		priceID string
	}
	items := []pending{{
		rec: types.TokenRecord{
			ChainID:   solanaChainID,
			Name:      "Solana",
			Symbol:    solanaNativeSym,
			Decimals:  solanaDecimals,
			Amount:    fromBaseUnits(decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0), solanaDecimals),
			RawAmount: strconv.FormatUint(lamports, 10),
			IsCore:    true,
		},
		priceID: solanaPriceID,
	}}

	// Without a token list unlisted mints cannot be told apart from verified
	// ones, so the read only covers native SOL and the special mints.
	unidentified := 0
	f.mu.RLock()
	loaded := f.loaded
	for _, b := range balances {
		rec := types.TokenRecord{
			ChainID:   solanaChainID,
			Decimals:  b.Decimals,
			Amount:    fromBaseUnits(b.RawAmount, b.Decimals),
			RawAmount: b.RawAmount.String(),
		}
		var priceID string
		if t, ok := f.listed[b.Mint]; ok {
			rec.Name, rec.Symbol, rec.LogoRef, rec.IsCore = t.Name, t.Symbol, t.LogoURI, true
			priceID = t.Extensions.CoingeckoID
		} else if s, ok := f.special[b.Mint]; ok {
			rec.Name, rec.Symbol = s.Name, s.Symbol
			priceID = s.PriceID
		} else {
			if !loaded {
				unidentified++
			}
			log.WithField("mint", b.Mint).Debug("Skipping unlisted mint")
			continue
		}
		items = append(items, pending{rec: rec, priceID: priceID})
	}
	f.mu.RUnlock()

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.priceID)
	}
	quotes := f.prices.ResolveMany(ctx, ids)

	chain := types.ChainResult{Chain: info, Data: make([]types.TokenRecord, 0, len(items)), Partial: unidentified > 0}
	if chain.Partial {
		log.WithField("mints", unidentified).Warn("Token list unavailable, keeping stored SPL balances")
	}
	for _, it := range items {
		q := quotes[normalizePriceID(it.priceID)]
		it.rec.PriceUSD = price.USDOrFallback(q, decimal.Zero)
		it.rec.Price24hChange = price.ChangeOrZero(q)
		chain.Data = append(chain.Data, it.rec)
	}
	res.Chains = append(res.Chains, chain)

	log.WithField("tokens", len(chain.Data)).Debug("Fetched Solana wallet")
	return res
}

var _ Preparer = (*SolanaFetcher)(nil)
