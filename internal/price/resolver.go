// Package price resolves token identifiers to USD quotes.
package price

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/adapter"
	"github.com/wallet-aggregator/internal/logging"
	"github.com/wallet-aggregator/internal/storage"
	"github.com/wallet-aggregator/internal/types"
)

var hundred = decimal.NewFromInt(100)

// Quoter is the upstream quote API
type Quoter interface {
	SimplePrice(ctx context.Context, ids []string) (map[string]adapter.CoinGeckoQuote, error)
}

// Cache stores resolved quotes
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Resolver resolves token ids to USD quotes. It never returns an error:
// empty, unknown and failed lookups all yield nil so callers apply their
// own fallback.
type Resolver struct {
	quoter Quoter
	cache  Cache
	ttl    time.Duration
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(quoter Quoter, cache Cache, ttl time.Duration) *Resolver {
	return &Resolver{quoter: quoter, cache: cache, ttl: ttl}
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Resolve returns the quote for one id, or nil
func (r *Resolver) Resolve(ctx context.Context, id string) *types.PriceQuote {
	id = normalizeID(id)
	if id == "" {
		return nil
	}
	return r.ResolveMany(ctx, []string{id})[id]
}

// ResolveMany resolves several ids with at most one upstream call.
// Ids without a quote are absent from the result.
func (r *Resolver) ResolveMany(ctx context.Context, ids []string) map[string]*types.PriceQuote {
	out := make(map[string]*types.PriceQuote, len(ids))
	log := logging.FromContext(ctx)

	seen := make(map[string]bool, len(ids))
	var missing []string
	for _, raw := range ids {
		id := normalizeID(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		if q := r.cached(ctx, id); q != nil {
			out[id] = q
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}

	quotes, err := r.quoter.SimplePrice(ctx, missing)
	if err != nil {
		log.WithError(err).WithField("ids", missing).Warn("Price lookup failed")
		return out
	}

	for _, id := range missing {
		raw, ok := quotes[id]
		if !ok || raw.USD == nil {
			log.WithField("id", id).Debug("No price quote for id")
			continue
		}
		q := toQuote(raw)
		out[id] = q
		r.store(ctx, id, q)
	}
	return out
}

// toQuote converts an upstream quote, turning the 24h percent change into a fraction
func toQuote(raw adapter.CoinGeckoQuote) *types.PriceQuote {
	q := &types.PriceQuote{
		USD:           *raw.USD,
		USDMarketCap:  raw.USDMarketCap,
		USD24hVol:     raw.USD24hVol,
		LastUpdatedAt: raw.LastUpdatedAt,
	}
	if raw.USD24hChange != nil {
		frac := raw.USD24hChange.Div(hundred)
		q.USD24hChange = &frac
	}
	return q
}

func (r *Resolver) cached(ctx context.Context, id string) *types.PriceQuote {
	if r.cache == nil {
		return nil
	}
	var q types.PriceQuote
	found, err := r.cache.Get(ctx, storage.Key(storage.CacheKeyPrice, id), &q)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("id", id).Warn("Price cache read failed")
		return nil
	}
	if !found {
		return nil
	}
	return &q
}

func (r *Resolver) store(ctx context.Context, id string, q *types.PriceQuote) {
	if r.cache == nil || r.ttl <= 0 {
		return
	}
	if err := r.cache.SetWithTTL(ctx, storage.Key(storage.CacheKeyPrice, id), q, r.ttl); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("id", id).Warn("Price cache write failed")
	}
}

// USDOrFallback applies the fallback order quote, then listed price, then zero
func USDOrFallback(q *types.PriceQuote, listed decimal.Decimal) decimal.Decimal {
	if q != nil && q.USD.IsPositive() {
		return q.USD
	}
	if listed.IsPositive() {
		return listed
	}
	return decimal.Zero
}

// ChangeOrZero returns the 24h change fraction or zero
func ChangeOrZero(q *types.PriceQuote) decimal.Decimal {
	if q == nil || q.USD24hChange == nil {
		return decimal.Zero
	}
	return *q.USD24hChange
}
