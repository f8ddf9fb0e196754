package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/logging"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/storage"
	"github.com/wallet-aggregator/internal/types"
)

// SyncStats summarizes what one Persist call wrote
type SyncStats struct {
	WalletID        string            `json:"wallet_id"`
	Source          types.ChainFamily `json:"source"`
	Chains          int               `json:"chains"`
	Tokens          int               `json:"tokens"`
	Positions       int               `json:"positions"`
	ZeroedTokens    int64             `json:"zeroed_tokens"`
	ZeroedPositions int64             `json:"zeroed_positions"`
	FailedChains    []string          `json:"failed_chains,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// SyncService writes fetch results to storage with natural-key upserts.
// Within one result chains are written before tokens and tokens before links.
type SyncService struct {
	store HoldingsWriter
}

// NewSyncService creates a new sync service
func NewSyncService(store HoldingsWriter) *SyncService {
	return &SyncService{store: store}
}

// Persist writes one wallet's fetch result. Rows the wallet held before but
// that were not reported by a successful read are zeroed. Chains that failed
// and parts of the result that could not be read leave stored rows untouched.
func (s *SyncService) Persist(ctx context.Context, r types.FetchResult) (*SyncStats, error) {
	stats := &SyncStats{
		WalletID:     r.WalletID,
		Source:       r.Source,
		FailedChains: r.FailedChains(),
		Error:        r.Error,
	}
	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"wallet_id": r.WalletID,
		"source":    string(r.Source),
	})

	if r.Error == "" {
		if err := s.persistTokens(ctx, r, stats); err != nil {
			return stats, err
		}
	} else {
		log.WithField("error", r.Error).Warn("Wallet tokens unavailable, keeping stored holdings")
	}

	if r.PositionsError == "" {
		if err := s.persistPositions(ctx, r, stats); err != nil {
			return stats, err
		}
	} else {
		log.WithField("error", r.PositionsError).Warn("Wallet positions unavailable, keeping stored positions")
	}

	log.WithFields(map[string]interface{}{
		"chains":           stats.Chains,
		"tokens":           stats.Tokens,
		"positions":        stats.Positions,
		"zeroed_tokens":    stats.ZeroedTokens,
		"zeroed_positions": stats.ZeroedPositions,
		"failed_chains":    len(stats.FailedChains),
	}).Debug("Persisted fetch result")
	return stats, nil
}

func (s *SyncService) persistTokens(ctx context.Context, r types.FetchResult, stats *SyncStats) error {
	keep := []int64{}
	for _, c := range r.Chains {
		if c.Failed() {
			continue
		}
		if err := s.store.UpsertChain(ctx, c.Chain); err != nil {
			return err
		}
		stats.Chains++

		for _, tok := range mergeTokens(c.Data) {
			if tok.ChainID == "" {
				tok.ChainID = c.Chain.ChainID
			}
			id, err := s.store.UpsertToken(ctx, tok)
			if err != nil {
				return err
			}
			link := models.WalletToken{
				WalletID:  r.WalletID,
				TokenID:   id,
				Amount:    tok.Amount,
				RawAmount: tok.RawAmount,
				USDValue:  tok.USDValue(),
			}
			if link.RawAmount == "" {
				link.RawAmount = "0"
			}
			if err := s.store.UpsertWalletToken(ctx, link); err != nil {
				return err
			}
			keep = append(keep, id)
			stats.Tokens++
		}
	}

	scope, ok := staleScope(r, true)
	if !ok {
		return nil
	}
	n, err := s.store.ZeroStaleWalletTokens(ctx, r.WalletID, scope, keep)
	if err != nil {
		return err
	}
	stats.ZeroedTokens = n
	return nil
}

func (s *SyncService) persistPositions(ctx context.Context, r types.FetchResult, stats *SyncStats) error {
	keep := []string{}
	for _, p := range mergePositions(r.Positions()) {
		pos := models.Position{
			WalletID:     r.WalletID,
			ProtocolName: p.ProtocolName,
			ChainID:      p.ChainID,
			PositionType: p.PositionType,
			TokenNames:   p.TokenNames,
			Amount:       p.Amount,
			PriceUSD:     p.PriceUSD,
			USDValue:     p.USDValue,
			LogoRef:      p.LogoRef,
		}
		if err := s.store.UpsertPosition(ctx, pos); err != nil {
			return err
		}
		keep = append(keep, storage.PositionKey(pos.ProtocolName, pos.ChainID, pos.PositionType, pos.TokenNames))
		stats.Positions++
	}

	scope, ok := staleScope(r, r.Error == "")
	if !ok {
		return nil
	}
	n, err := s.store.ZeroStalePositions(ctx, r.WalletID, scope, keep)
	if err != nil {
		return err
	}
	stats.ZeroedPositions = n
	return nil
}

// staleScope returns the chains whose stale rows may be zeroed. A nil scope
// means every chain of the wallet; ok is false when nothing may be zeroed.
// Failed and partial chains are never in scope.
func staleScope(r types.FetchResult, walletRead bool) ([]string, bool) {
	replaceable := r.ReplaceableChains()
	if walletRead && len(replaceable) == len(r.Chains) {
		return nil, true
	}
	if len(replaceable) == 0 {
		return nil, false
	}
	return replaceable, true
}

// mergeTokens sums records sharing a (chain, symbol) key. First-seen metadata wins.
func mergeTokens(in []types.TokenRecord) []types.TokenRecord {
	idx := make(map[types.TokenKey]int, len(in))
	out := make([]types.TokenRecord, 0, len(in))
	for _, t := range in {
		i, ok := idx[t.Key()]
		if !ok {
			idx[t.Key()] = len(out)
			out = append(out, t)
			continue
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
		out[i].RawAmount = addRaw(out[i].RawAmount, t.RawAmount)
		if out[i].PriceUSD.IsZero() {
			out[i].PriceUSD = t.PriceUSD
		}
	}
	return out
}

func addRaw(a, b string) string {
	x, errA := decimal.NewFromString(a)
	y, errB := decimal.NewFromString(b)
	switch {
	case errA != nil && errB != nil:
		return "0"
	case errA != nil:
		return y.String()
	case errB != nil:
		return x.String()
	}
	return x.Add(y).String()
}

// mergePositions sums positions sharing a storage key
func mergePositions(in []types.PositionRecord) []types.PositionRecord {
	idx := make(map[string]int, len(in))
	out := make([]types.PositionRecord, 0, len(in))
	for _, p := range in {
		key := storage.PositionKey(p.ProtocolName, p.ChainID, p.PositionType, p.TokenNames)
		i, ok := idx[key]
		if !ok {
			idx[key] = len(out)
			out = append(out, p)
			continue
		}
		out[i].Amount = out[i].Amount.Add(p.Amount)
		out[i].USDValue = out[i].USDValue.Add(p.USDValue)
		if !out[i].Amount.IsZero() {
			out[i].PriceUSD = out[i].USDValue.DivRound(out[i].Amount, 12)
		}
	}
	return out
}
