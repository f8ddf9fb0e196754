package fetcher

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wallet-aggregator/internal/adapter"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/price"
	"github.com/wallet-aggregator/internal/types"
)

const (
	suiChainID  = "sui"
	suiDecimals = 9
	suiPriceID  = "sui"
	suiSymbol   = "SUI"
)

// SuiAPI is the subset of the Sui client used by SuiFetcher
type SuiAPI interface {
	Balance(ctx context.Context, owner string) (decimal.Decimal, error)
	StakingEvents(ctx context.Context, owner string) ([]adapter.SuiEvent, error)
}

// SuiFetcher reads the SUI balance and replays staking requests
type SuiFetcher struct {
	api    SuiAPI
	prices PriceResolver
}

// NewSuiFetcher creates a Sui fetcher
func NewSuiFetcher(api SuiAPI, prices PriceResolver) *SuiFetcher {
	return &SuiFetcher{api: api, prices: prices}
}

// Source implements Fetcher
func (f *SuiFetcher) Source() types.ChainFamily { return types.FamilySui }

// Fetch implements Fetcher
func (f *SuiFetcher) Fetch(ctx context.Context, wallet *models.Wallet) types.FetchResult {
	res := newResult(f.Source(), wallet)
	log := walletLogger(ctx, f.Source(), wallet)
	info := types.ChainInfo{ChainID: suiChainID, Name: "Sui", Family: types.FamilySui, NativeSymbol: suiSymbol}

	var (
		balance    decimal.Decimal
		events     []adapter.SuiEvent
		balanceErr error
		eventsErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		balance, balanceErr = f.api.Balance(gctx, wallet.Address)
		return nil
	})
	g.Go(func() error {
		events, eventsErr = f.api.StakingEvents(gctx, wallet.Address)
		return nil
	})
	_ = g.Wait()

	for _, err := range []error{balanceErr, eventsErr} {
		if err != nil {
			log.WithError(err).Warn("Failed to fetch Sui wallet")
			res.Chains = append(res.Chains, failChain(info, err))
			return res
		}
	}

	q := f.prices.Resolve(ctx, suiPriceID)
	usd := price.USDOrFallback(q, decimal.Zero)

	chain := types.ChainResult{Chain: info, Data: []types.TokenRecord{}}
	if balance.IsPositive() {
		chain.Data = append(chain.Data, types.TokenRecord{
			ChainID:        suiChainID,
			Name:           "Sui",
			Symbol:         suiSymbol,
			Decimals:       suiDecimals,
			PriceUSD:       usd,
			Price24hChange: price.ChangeOrZero(q),
			Amount:         fromBaseUnits(balance, suiDecimals),
			RawAmount:      balance.String(),
			IsCore:         true,
		})
	}

	staked := ReplayStake(suiStakeEvents(events))
	if staked.IsPositive() {
		chain.Positions = append(chain.Positions,
			stakedPosition(wallet, "Sui", suiChainID, suiSymbol, fromBaseUnits(staked, suiDecimals), usd))
	}
	res.Chains = append(res.Chains, chain)
	return res
}

func suiStakeEvents(events []adapter.SuiEvent) []StakeEvent {
	out := make([]StakeEvent, 0, len(events))
	for _, ev := range events {
		se := StakeEvent{}
		se.Timestamp, _ = strconv.ParseInt(ev.TimestampMs, 10, 64)
		se.Sequence, _ = strconv.ParseInt(ev.ID.EventSeq, 10, 64)
		switch ev.Type {
		case adapter.SuiStakingRequestEvent:
			se.Kind, se.Amount = StakeAdd, ev.ParsedJSON.Amount
		case adapter.SuiUnstakingRequestEvent:
			se.Kind, se.Amount = StakeRemove, ev.ParsedJSON.PrincipalAmount
		default:
			continue
		}
		out = append(out, se)
	}
	return out
}
