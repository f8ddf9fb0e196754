package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/logging"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/storage"
	"github.com/wallet-aggregator/internal/types"
)

// Aggregator composes the current aggregate; implemented by PortfolioService
type Aggregator interface {
	Aggregate(ctx context.Context) (*types.Aggregate, error)
}

// Refresher refetches every source; implemented by AggregationService
type Refresher interface {
	RunAll(ctx context.Context) (*RunSummary, error)
}

// WriteSnapshotInput is a snapshot submitted by a client
type WriteSnapshotInput struct {
	Date          *time.Time      `json:"date,omitempty"`
	TotalNetWorth decimal.Decimal `json:"totalNetWorth"`
	History       json.RawMessage `json:"historyData,omitempty"`
}

// WriteResult reports whether a snapshot row was written
type WriteResult struct {
	Changed  bool             `json:"changed"`
	Message  string           `json:"message"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
}

// SnapshotService writes net-worth snapshots and schedules the daily capture
type SnapshotService struct {
	store      SnapshotStore
	aggregator Aggregator
	refresher  Refresher
	history    BalanceHistoryWriter

	mu       sync.Mutex // serializes compare-and-insert
	ticker   *time.Ticker
	stopChan chan struct{}
	running  bool
}

// NewSnapshotService creates a new snapshot service. refresher and history may be nil.
func NewSnapshotService(store SnapshotStore, aggregator Aggregator, refresher Refresher, history BalanceHistoryWriter) *SnapshotService {
	return &SnapshotService{
		store:      store,
		aggregator: aggregator,
		refresher:  refresher,
		history:    history,
		stopChan:   make(chan struct{}),
	}
}

// Write stores a snapshot unless its net worth equals the latest stored one
func (s *SnapshotService) Write(ctx context.Context, in WriteSnapshotInput) (*WriteResult, error) {
	snap := &models.Snapshot{TotalNetWorth: in.TotalNetWorth, History: in.History}
	if in.Date != nil {
		snap.Date = in.Date.UTC()
	}

	var agg *types.Aggregate
	if len(in.History) > 0 {
		var parsed types.Aggregate
		if err := json.Unmarshal(in.History, &parsed); err == nil {
			agg = &parsed
		}
	}
	return s.write(ctx, snap, agg)
}

// Capture composes the current aggregate and writes it as a snapshot
func (s *SnapshotService) Capture(ctx context.Context) (*WriteResult, error) {
	agg, err := s.aggregator.Aggregate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compose aggregate: %w", err)
	}
	history, err := json.Marshal(agg)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode snapshot history", err)
	}
	return s.write(ctx, &models.Snapshot{TotalNetWorth: agg.TotalNetWorth, History: history}, agg)
}

func (s *SnapshotService) write(ctx context.Context, snap *models.Snapshot, agg *types.Aggregate) (*WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logging.FromContext(ctx).WithField("total_net_worth", snap.TotalNetWorth.String())

	latest, err := s.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.TotalNetWorth.Equal(snap.TotalNetWorth) {
		log.Debug("Net worth unchanged, snapshot skipped")
		return &WriteResult{Changed: false, Message: "not changed", Snapshot: latest}, nil
	}

	if err := s.store.Insert(ctx, snap); err != nil {
		return nil, err
	}
	log.WithField("snapshot_id", snap.ID).Info("Snapshot written")

	if s.history != nil && agg != nil {
		if err := s.history.InsertBatch(ctx, balancePoints(snap.Date, agg.Tokens)); err != nil {
			log.WithError(err).Warn("Failed to export balance history")
		}
	}

	return &WriteResult{Changed: true, Message: "created", Snapshot: snap}, nil
}

func balancePoints(at time.Time, tokens []types.UnifiedToken) []storage.TokenBalancePoint {
	points := make([]storage.TokenBalancePoint, 0, len(tokens))
	for _, t := range tokens {
		points = append(points, storage.TokenBalancePoint{
			SnapshotDate: at,
			ChainID:      t.ChainID,
			Symbol:       t.Symbol,
			Amount:       t.Amount,
			PriceUSD:     t.PriceUSD,
			USDValue:     t.TotalUSDValue,
			WalletCount:  uint32(len(t.Wallets)), // #nosec G115 - wallet count is small
		})
	}
	return points
}

// History returns the net-worth series between from and to
func (s *SnapshotService) History(ctx context.Context, from, to time.Time) ([]models.Snapshot, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.After(to) {
		return nil, apperrors.NewInvalidParameterError("from", "must not be after to")
	}
	return s.store.List(ctx, from, to)
}

// RunOnce refreshes every source when a refresher is configured, then captures.
// A failed refresh is logged and the capture still runs on stored data.
func (s *SnapshotService) RunOnce(ctx context.Context) (*WriteResult, error) {
	log := logging.FromContext(ctx)
	if s.refresher != nil {
		if _, err := s.refresher.RunAll(ctx); err != nil {
			log.WithError(err).Warn("Refresh before snapshot failed, capturing stored holdings")
		}
	}
	return s.Capture(ctx)
}

// Start begins the snapshot scheduler.
// The first capture runs at the next midnight UTC, then every 24 hours.
func (s *SnapshotService) Start(ctx context.Context) error {
	if s.running {
		return fmt.Errorf("snapshot scheduler is already running")
	}
	s.running = true

	log := logging.FromContext(ctx)
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	untilMidnight := nextMidnight.Sub(now)

	log.WithFields(map[string]interface{}{
		"next_run": nextMidnight,
		"in":       untilMidnight.String(),
	}).Info("Snapshot scheduler starting")

	go func() {
		select {
		case <-time.After(untilMidnight):
			s.scheduledRun(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}

		s.ticker = time.NewTicker(24 * time.Hour)
		defer s.ticker.Stop()

		for {
			select {
			case <-s.ticker.C:
				s.scheduledRun(ctx)
			case <-s.stopChan:
				log.Info("Snapshot scheduler stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (s *SnapshotService) scheduledRun(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("Scheduled snapshot failed")
		return
	}
	logging.FromContext(ctx).WithField("changed", res.Changed).Info("Scheduled snapshot finished")
}

// Stop stops the snapshot scheduler
func (s *SnapshotService) Stop() error {
	if !s.running {
		return fmt.Errorf("snapshot scheduler is not running")
	}
	close(s.stopChan)
	s.running = false
	return nil
}
