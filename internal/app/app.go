// Package app wires configuration, storage, upstream clients and services
// into a runnable application shared by the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/adapter"
	"github.com/wallet-aggregator/internal/circuitbreaker"
	"github.com/wallet-aggregator/internal/config"
	"github.com/wallet-aggregator/internal/fetcher"
	"github.com/wallet-aggregator/internal/logging"
	"github.com/wallet-aggregator/internal/price"
	"github.com/wallet-aggregator/internal/ratelimit"
	"github.com/wallet-aggregator/internal/retry"
	"github.com/wallet-aggregator/internal/service"
	"github.com/wallet-aggregator/internal/storage"
)

// App holds the long-lived dependencies of a process
type App struct {
	Config *config.Config

	Postgres   *storage.PostgresDB
	Redis      *storage.RedisCache   // nil when Redis is unreachable
	ClickHouse *storage.ClickHouseDB // nil when disabled or unreachable
	Breakers   *circuitbreaker.Registry

	Wallets     *service.WalletService
	Portfolio   *service.PortfolioService
	Settings    *service.SettingsService
	Aggregation *service.AggregationService
	Snapshots   *service.SnapshotService
	Exchange    *service.ExchangeService
}

// New connects to the stores and builds every service. Postgres is
// required; Redis and ClickHouse degrade to no caching and no
// balance history export.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.FromContext(ctx)
	a := &App{Config: cfg, Breakers: circuitbreaker.NewRegistry(nil)}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	a.Postgres = postgres

	if err := checkSchema(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	if redis, err := storage.NewRedisCache(&cfg.Database.Redis); err != nil {
		logger.WithError(err).Warn("Redis unavailable, prices and read views will not be cached")
	} else {
		a.Redis = redis
	}

	if cfg.Database.ClickHouse.Enabled {
		if ch, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse); err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, balance history export disabled")
		} else {
			a.ClickHouse = ch
		}
	}

	var cache *storage.CacheService
	if a.Redis != nil {
		cache = storage.NewCacheService(a.Redis, cfg.Price.CacheTTL)
	}

	registry, err := a.buildFetchers(cache)
	if err != nil {
		a.Close()
		return nil, err
	}

	wallets := storage.NewWalletRepository(postgres)
	holdings := storage.NewHoldingsRepository(postgres)

	a.Wallets = service.NewWalletService(wallets)
	a.Settings = service.NewSettingsService(storage.NewSettingsRepository(postgres), decimal.NewFromFloat(cfg.Aggregation.Threshold))
	a.Portfolio = service.NewPortfolioService(holdings, a.Settings)
	if cache != nil {
		a.Portfolio.SetCache(cache)
	}
	a.Wallets.SetInvalidator(a.Portfolio)

	binance := adapter.NewBinanceClient(cfg.Sources.Binance.BaseURL, cfg.Sources.Binance.APIKey, cfg.Sources.Binance.APISecret, a.httpOptions("binance"))
	a.Exchange = service.NewExchangeService(storage.NewExchangeTransactionRepository(postgres), binance)

	a.Aggregation = service.NewAggregationService(wallets, registry, service.NewSyncService(holdings), a.Exchange)
	a.Aggregation.SetInvalidator(a.Portfolio)

	var history service.BalanceHistoryWriter
	if a.ClickHouse != nil {
		history = storage.NewBalanceHistoryRepository(a.ClickHouse)
	}
	a.Snapshots = service.NewSnapshotService(storage.NewSnapshotRepository(postgres), a.Portfolio, a.Aggregation, history)

	return a, nil
}

// httpOptions builds client options sharing one breaker per upstream
func (a *App) httpOptions(name string) adapter.HTTPOptions {
	rc := retry.DefaultRetryConfig()
	if a.Config.Sources.MaxRetry > 0 {
		rc.MaxAttempts = a.Config.Sources.MaxRetry
	}
	return adapter.HTTPOptions{
		Timeout: a.Config.Sources.Timeout,
		Retry:   rc,
		Breaker: a.Breakers.Get(name),
	}
}

// buildFetchers creates one fetcher per source. cache may be nil.
func (a *App) buildFetchers(cache *storage.CacheService) (*fetcher.Registry, error) {
	cfg := a.Config

	quoter := adapter.NewCoinGeckoClient(cfg.Price.BaseURL, cfg.Price.APIKey, a.httpOptions("coingecko"))
	resolver := price.NewResolver(quoter, nil, cfg.Price.CacheTTL)
	if cache != nil {
		resolver = price.NewResolver(quoter, cache, cfg.Price.CacheTTL)
	}

	static, err := fetcher.LoadStaticHoldings(cfg.Sources.Static.HoldingsFile)
	if err != nil {
		return nil, err
	}

	cosmosChains := make([]fetcher.CosmosChain, 0, len(cfg.Cosmos.Chains))
	for _, c := range cfg.Cosmos.Chains {
		cosmosChains = append(cosmosChains, fetcher.CosmosChain{
			CosmosChain: c,
			Client:      adapter.NewCosmosClient(c.Symbol, c.RESTURL, a.httpOptions("cosmos:"+c.Symbol)),
		})
	}

	solana := adapter.NewSolanaClient(cfg.Sources.Solana.RPCURL, cfg.Sources.Solana.TokenListURL, a.httpOptions("solana"))
	solanaPace := ratelimit.NewIntervalLimiter("solana", cfg.Sources.Solana.CallInterval)

	return fetcher.NewRegistry(
		fetcher.NewEVMFetcher(adapter.NewDeBankClient(cfg.Sources.DeBank.BaseURL, cfg.Sources.DeBank.APIKey, a.httpOptions("debank"))),
		fetcher.NewSolanaFetcher(solana, resolver, solanaPace, nil),
		fetcher.NewCosmosFetcher(cosmosChains, cfg.Cosmos.Overrides, resolver),
		fetcher.NewSuiFetcher(adapter.NewSuiClient(cfg.Sources.Sui.RPCURL, a.httpOptions("sui")), resolver),
		fetcher.NewAptosFetcher(adapter.NewAptosClient(cfg.Sources.Aptos.NodeURL, cfg.Sources.Aptos.IndexerURL, a.httpOptions("aptos")), resolver),
		fetcher.NewStaticFetcher(static, resolver),
	), nil
}

// LogBreakers reports upstream circuit states, typically after a run
func (a *App) LogBreakers(ctx context.Context) {
	fields := make(map[string]interface{})
	for name, state := range a.Breakers.States() {
		fields[name] = string(state)
	}
	logging.FromContext(ctx).WithFields(fields).Info("Upstream circuit states")
}

// Close releases every connection. Safe on a partially built App.
func (a *App) Close() {
	if a.ClickHouse != nil {
		_ = a.ClickHouse.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}

// RunOnStart refreshes every source in the background, bounded by timeout
func (a *App) RunOnStart(ctx context.Context, timeout time.Duration) {
	go func() {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		summary, err := a.Aggregation.RunAll(ctx)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Error("Startup aggregation failed")
			return
		}
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"run_id":      summary.RunID,
			"duration_ms": summary.DurationMs,
		}).Info("Startup aggregation complete")
		a.LogBreakers(ctx)
	}()
}

// checkSchema refuses a half-applied Postgres migration and warns when the
// schema cannot be read or was never migrated.
func checkSchema(ctx context.Context, cfg *config.Config) error {
	log := logging.FromContext(ctx)
	dir := storage.PostgresMigrationsPath(cfg.Database.MigrationsDir)
	schema, err := storage.CurrentSchema(cfg.Database.Postgres.URL(), dir)
	if err != nil {
		log.WithError(err).Warn("Could not read Postgres schema version")
		return nil
	}
	if schema.Dirty {
		return fmt.Errorf("postgres schema version %d is dirty, fix it with cmd/migrate", schema.Version)
	}
	if !schema.Applied() {
		log.Warn("Postgres schema has no migrations applied, run cmd/migrate")
		return nil
	}
	log.WithField("schema_version", schema.Version).Debug("Postgres schema checked")
	return nil
}
