package fetcher

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakePrices serves fixed USD prices; unknown ids resolve to nil
type fakePrices map[string]string

func (p fakePrices) Resolve(ctx context.Context, id string) *types.PriceQuote {
	return p.ResolveMany(ctx, []string{id})[strings.ToLower(id)]
}

func (p fakePrices) ResolveMany(_ context.Context, ids []string) map[string]*types.PriceQuote {
	out := make(map[string]*types.PriceQuote)
	for _, id := range ids {
		id = strings.ToLower(id)
		if v, ok := p[id]; ok {
			change := d("0.01")
			out[id] = &types.PriceQuote{USD: d(v), USD24hChange: &change}
		}
	}
	return out
}

// countingWaiter counts calls to Wait
type countingWaiter struct {
	calls int32
}

func (w *countingWaiter) Wait(ctx context.Context) error {
	atomic.AddInt32(&w.calls, 1)
	return ctx.Err()
}
