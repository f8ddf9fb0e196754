package fetcher

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wallet-aggregator/internal/adapter"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/price"
	"github.com/wallet-aggregator/internal/types"
)

const (
	aptosChainID  = "aptos"
	aptosDecimals = 8
	aptosPriceID  = "aptos"
	aptosSymbol   = "APT"
)

// AptosAPI is the subset of the Aptos client used by AptosFetcher
type AptosAPI interface {
	Balance(ctx context.Context, owner string) (decimal.Decimal, error)
	StakeActivities(ctx context.Context, delegator string) ([]adapter.AptosStakeActivity, error)
}

// AptosFetcher reads the APT balance and replays delegation pool activity
type AptosFetcher struct {
	api    AptosAPI
	prices PriceResolver
}

// NewAptosFetcher creates an Aptos fetcher
func NewAptosFetcher(api AptosAPI, prices PriceResolver) *AptosFetcher {
	return &AptosFetcher{api: api, prices: prices}
}

// Source implements Fetcher
func (f *AptosFetcher) Source() types.ChainFamily { return types.FamilyAptos }

// Fetch implements Fetcher
func (f *AptosFetcher) Fetch(ctx context.Context, wallet *models.Wallet) types.FetchResult {
	res := newResult(f.Source(), wallet)
	log := walletLogger(ctx, f.Source(), wallet)
	info := types.ChainInfo{ChainID: aptosChainID, Name: "Aptos", Family: types.FamilyAptos, NativeSymbol: aptosSymbol}

	var (
		balance     decimal.Decimal
		activities  []adapter.AptosStakeActivity
		balanceErr  error
		activityErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		balance, balanceErr = f.api.Balance(gctx, wallet.Address)
		return nil
	})
	g.Go(func() error {
		activities, activityErr = f.api.StakeActivities(gctx, wallet.Address)
		return nil
	})
	_ = g.Wait()

	for _, err := range []error{balanceErr, activityErr} {
		if err != nil {
			log.WithError(err).Warn("Failed to fetch Aptos wallet")
			res.Chains = append(res.Chains, failChain(info, err))
			return res
		}
	}

	q := f.prices.Resolve(ctx, aptosPriceID)
	usd := price.USDOrFallback(q, decimal.Zero)

	chain := types.ChainResult{Chain: info, Data: []types.TokenRecord{}}
	if balance.IsPositive() {
		chain.Data = append(chain.Data, types.TokenRecord{
			ChainID:        aptosChainID,
			Name:           "Aptos",
			Symbol:         aptosSymbol,
			Decimals:       aptosDecimals,
			PriceUSD:       usd,
			Price24hChange: price.ChangeOrZero(q),
			Amount:         fromBaseUnits(balance, aptosDecimals),
			RawAmount:      balance.String(),
			IsCore:         true,
		})
	}

	staked := ReplayStake(aptosStakeEvents(activities))
	if staked.IsPositive() {
		chain.Positions = append(chain.Positions,
			stakedPosition(wallet, "Aptos", aptosChainID, aptosSymbol, fromBaseUnits(staked, aptosDecimals), usd))
	}
	res.Chains = append(res.Chains, chain)
	return res
}

// aptosStakeEvents maps delegation pool events. Unlocked stake leaves the
// active balance, so a later withdraw is not subtracted again.
func aptosStakeEvents(activities []adapter.AptosStakeActivity) []StakeEvent {
	out := make([]StakeEvent, 0, len(activities))
	for _, a := range activities {
		se := StakeEvent{Amount: a.Amount, Timestamp: a.TransactionVersion, Sequence: a.EventIndex}
		switch {
		case strings.HasSuffix(a.EventType, "::AddStakeEvent"), strings.HasSuffix(a.EventType, "::ReactivateStakeEvent"):
			se.Kind = StakeAdd
		case strings.HasSuffix(a.EventType, "::UnlockStakeEvent"):
			se.Kind = StakeRemove
		default:
			continue
		}
		out = append(out, se)
	}
	return out
}
