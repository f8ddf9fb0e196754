package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/aggregate"
	"github.com/wallet-aggregator/internal/logging"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/storage"
	"github.com/wallet-aggregator/internal/types"
)

// PortfolioQuery narrows the tokens and protocols views
type PortfolioQuery struct {
	ChainID  string
	WalletID string
	Query    string
}

// TokensView is the unified token list
type TokensView struct {
	Tokens    []types.UnifiedToken `json:"tokens"`
	TotalUSD  decimal.Decimal      `json:"totalUSD"`
	Threshold decimal.Decimal      `json:"threshold"`
}

// PortfolioService merges stored holdings across wallets for the read API
type PortfolioService struct {
	holdings HoldingsReader
	settings *SettingsService
	cache    ViewCache
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(holdings HoldingsReader, settings *SettingsService) *PortfolioService {
	return &PortfolioService{holdings: holdings, settings: settings}
}

// SetCache enables caching of the tokens and protocols views
func (s *PortfolioService) SetCache(c ViewCache) {
	s.cache = c
}

// Invalidate drops every cached view. Cache failures are logged only.
func (s *PortfolioService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, kt := range []storage.CacheKeyType{storage.CacheKeyTokens, storage.CacheKeyProtocols} {
		if err := s.cache.InvalidateType(ctx, kt); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("type", string(kt)).Warn("Failed to invalidate view cache")
		}
	}
}

// viewKey includes the threshold so a settings change never serves a stale view
func viewKey(kt storage.CacheKeyType, threshold decimal.Decimal, q PortfolioQuery) string {
	return storage.Key(kt, threshold.String(), q.ChainID, q.WalletID, q.Query)
}

func (s *PortfolioService) cached(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	found, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("View cache read failed")
		return false
	}
	return found
}

func (s *PortfolioService) remember(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("View cache write failed")
	}
}

// Tokens returns visible wallets' holdings unified by (chain, symbol),
// above the small-balance threshold, largest first
func (s *PortfolioService) Tokens(ctx context.Context, q PortfolioQuery) (*TokensView, error) {
	threshold, err := s.settings.SmallBalanceThreshold(ctx)
	if err != nil {
		return nil, err
	}
	key := viewKey(storage.CacheKeyTokens, threshold, q)
	var view TokensView
	if s.cached(ctx, key, &view) {
		return &view, nil
	}

	tokens, err := s.unifiedTokens(ctx, models.HoldingFilter{
		ChainID:     q.ChainID,
		WalletID:    q.WalletID,
		Query:       q.Query,
		VisibleOnly: true,
	}, threshold)
	if err != nil {
		return nil, err
	}
	view = TokensView{Tokens: tokens, TotalUSD: aggregate.TotalValue(tokens), Threshold: threshold}
	s.remember(ctx, key, view)
	return &view, nil
}

// Protocols returns visible wallets' positions grouped by protocol. The query
// is a case-insensitive substring of the composite token name.
func (s *PortfolioService) Protocols(ctx context.Context, q PortfolioQuery) ([]types.ProtocolGroup, error) {
	threshold, err := s.settings.SmallBalanceThreshold(ctx)
	if err != nil {
		return nil, err
	}
	key := viewKey(storage.CacheKeyProtocols, threshold, q)
	var groups []types.ProtocolGroup
	if s.cached(ctx, key, &groups) {
		return groups, nil
	}

	groups, err = s.protocolGroups(ctx, q, threshold)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, key, groups)
	return groups, nil
}

// Aggregate composes the full state of every visible wallet without a
// threshold. Net worth is rounded to cents.
func (s *PortfolioService) Aggregate(ctx context.Context) (*types.Aggregate, error) {
	tokens, err := s.unifiedTokens(ctx, models.HoldingFilter{VisibleOnly: true}, decimal.Zero)
	if err != nil {
		return nil, err
	}
	protocols, err := s.protocolGroups(ctx, PortfolioQuery{}, decimal.Zero)
	if err != nil {
		return nil, err
	}
	total := aggregate.TotalValue(tokens).Add(aggregate.TotalProtocolValue(protocols))
	return &types.Aggregate{
		Tokens:        tokens,
		Protocols:     protocols,
		TotalNetWorth: total.Round(2),
	}, nil
}

func (s *PortfolioService) unifiedTokens(ctx context.Context, f models.HoldingFilter, threshold decimal.Decimal) ([]types.UnifiedToken, error) {
	rows, err := s.holdings.ListHoldings(ctx, f)
	if err != nil {
		return nil, err
	}
	holdings := make([]aggregate.Holding, 0, len(rows))
	for _, r := range rows {
		holdings = append(holdings, aggregate.Holding{WalletID: r.WalletID, Tag: r.Tag, Token: r.Token})
	}
	return aggregate.UnifyTokens(holdings, threshold), nil
}

func (s *PortfolioService) protocolGroups(ctx context.Context, q PortfolioQuery, threshold decimal.Decimal) ([]types.ProtocolGroup, error) {
	records, err := s.holdings.ListPositions(ctx, models.HoldingFilter{
		ChainID:     q.ChainID,
		WalletID:    q.WalletID,
		VisibleOnly: true,
	})
	if err != nil {
		return nil, err
	}
	filter := aggregate.PositionFilter{ChainID: q.ChainID, WalletID: q.WalletID, Query: q.Query}
	matched := records[:0]
	for _, r := range records {
		if filter.Match(r) {
			matched = append(matched, r)
		}
	}
	return aggregate.UnifyPositions(matched, threshold), nil
}
