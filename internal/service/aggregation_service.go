package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/fetcher"
	"github.com/wallet-aggregator/internal/logging"
	"github.com/wallet-aggregator/internal/types"
)

// defaultWalletConcurrency bounds the wallets fetched at once per source
const defaultWalletConcurrency = 4

// SourceSummary reports one source of an aggregation run
type SourceSummary struct {
	Source        string   `json:"source"`
	Wallets       int      `json:"wallets"`
	Tokens        int      `json:"tokens"`
	Positions     int      `json:"positions"`
	FailedWallets []string `json:"failed_wallets,omitempty"`
	FailedChains  int      `json:"failed_chains"`
	Error         string   `json:"error,omitempty"`
}

// RunSummary reports an aggregation run
type RunSummary struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMs int64           `json:"duration_ms"`
	Sources    []SourceSummary `json:"sources"`
}

// ExchangeSyncer imports exchange history as part of a full run
type ExchangeSyncer interface {
	Name() string
	Sync(ctx context.Context) (int, error)
}

// AggregationService runs fetchers over the stored wallets and persists the results
type AggregationService struct {
	wallets     WalletStore
	registry    *fetcher.Registry
	syncSvc     *SyncService
	exchange    ExchangeSyncer
	invalidator Invalidator
	concurrency int
	mu          sync.Mutex // one run at a time
}

// NewAggregationService creates a new aggregation service. exchange may be nil.
func NewAggregationService(wallets WalletStore, registry *fetcher.Registry, syncSvc *SyncService, exchange ExchangeSyncer) *AggregationService {
	return &AggregationService{
		wallets:     wallets,
		registry:    registry,
		syncSvc:     syncSvc,
		exchange:    exchange,
		concurrency: defaultWalletConcurrency,
	}
}

// SetConcurrency sets how many wallets of one source are fetched at once
func (s *AggregationService) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// SetInvalidator registers the read views to drop after every run
func (s *AggregationService) SetInvalidator(i Invalidator) {
	s.invalidator = i
}

// RunAll fetches every configured source concurrently, then syncs exchange history.
// A source that fails to prepare is reported in the summary; persistence
// failures are returned as an error alongside the summary.
func (s *AggregationService) RunAll(ctx context.Context) (*RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ctx := s.newRun(ctx)
	log := logging.FromContext(ctx)
	log.Info("Starting full aggregation run")

	sources := s.registry.Sources()
	results := make([]SourceSummary, len(sources))
	errs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, source := range sources {
		g.Go(func() error {
			results[i], errs[i] = s.runSource(gctx, source)
			return nil
		})
	}
	_ = g.Wait()
	summary.Sources = append(summary.Sources, results...)

	if s.exchange != nil {
		ex := SourceSummary{Source: s.exchange.Name()}
		n, err := s.exchange.Sync(ctx)
		ex.Tokens = n
		if err != nil {
			ex.Error = err.Error()
			log.WithError(err).Warn("Exchange sync failed")
		}
		summary.Sources = append(summary.Sources, ex)
	}

	s.finish(ctx, summary)
	return summary, joinSourceErrors(sources, errs)
}

// RunSource fetches one source. Unknown sources are rejected.
func (s *AggregationService) RunSource(ctx context.Context, source types.ChainFamily) (*RunSummary, error) {
	if _, ok := s.registry.Get(source); !ok {
		return nil, apperrors.NewInvalidParameterError("source", fmt.Sprintf("unknown or unconfigured source %q", source))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ctx := s.newRun(ctx)
	logging.FromContext(ctx).WithField("source", string(source)).Info("Starting source aggregation run")

	result, err := s.runSource(ctx, source)
	summary.Sources = append(summary.Sources, result)
	s.finish(ctx, summary)
	return summary, err
}

func (s *AggregationService) newRun(ctx context.Context) (*RunSummary, context.Context) {
	summary := &RunSummary{RunID: uuid.New().String(), StartedAt: time.Now().UTC()}
	log := logging.FromContext(ctx).WithField("run_id", summary.RunID)
	return summary, logging.WithLogger(ctx, log)
}

func (s *AggregationService) finish(ctx context.Context, summary *RunSummary) {
	summary.DurationMs = time.Since(summary.StartedAt).Milliseconds()
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

// runSource prepares the source once and fetches its wallets with bounded
// concurrency. Each wallet is persisted as soon as it has been fetched.
func (s *AggregationService) runSource(ctx context.Context, source types.ChainFamily) (SourceSummary, error) {
	out := SourceSummary{Source: string(source)}
	log := logging.FromContext(ctx).WithField("source", string(source))

	f, _ := s.registry.Get(source)
	wallets, err := s.wallets.List(ctx, source)
	if err != nil {
		out.Error = err.Error()
		return out, err
	}
	out.Wallets = len(wallets)
	if len(wallets) == 0 {
		return out, nil
	}

	// Fetchers degrade on their own when preparation fails, so the source
	// is still read.
	var prepareErr error
	if p, ok := f.(fetcher.Preparer); ok {
		if prepareErr = p.Prepare(ctx); prepareErr != nil {
			log.WithError(prepareErr).Warn("Source preparation failed, fetching without it")
			out.Error = prepareErr.Error()
		}
	}

	stats := make([]*SyncStats, len(wallets))
	persistErrs := make([]error, len(wallets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, w := range wallets {
		g.Go(func() error {
			result := f.Fetch(gctx, w)
			stats[i], persistErrs[i] = s.syncSvc.Persist(gctx, result)
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	for i, st := range stats {
		if persistErrs[i] != nil && firstErr == nil {
			firstErr = persistErrs[i]
		}
		if st == nil {
			continue
		}
		out.Tokens += st.Tokens
		out.Positions += st.Positions
		out.FailedChains += len(st.FailedChains)
		if st.Error != "" || persistErrs[i] != nil {
			out.FailedWallets = append(out.FailedWallets, wallets[i].ID)
		}
	}
	if firstErr != nil {
		out.Error = firstErr.Error()
		if prepareErr != nil {
			out.Error = prepareErr.Error() + "; " + firstErr.Error()
		}
	}

	log.WithFields(map[string]interface{}{
		"wallets":        out.Wallets,
		"tokens":         out.Tokens,
		"positions":      out.Positions,
		"failed_wallets": len(out.FailedWallets),
		"failed_chains":  out.FailedChains,
	}).Info("Source aggregation finished")
	return out, firstErr
}

func joinSourceErrors(sources []types.ChainFamily, errs []error) error {
	var failed []string
	var first error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		failed = append(failed, string(sources[i]))
	}
	if first == nil {
		return nil
	}
	return fmt.Errorf("persisting sources %v: %w", failed, first)
}
