package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-aggregator/internal/config"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/types"
)

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "wallet_aggregator_test",
		User:           "aggregator",
		Password:       "aggregator_dev_password",
		MaxConnections: 10,
	}
}

// setupTestDB connects to a local Postgres, migrates it and empties every table.
// The test is skipped when Postgres is not reachable.
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	requireIntegration(t)

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	require.NoError(t, RunMigrations(cfg.URL(), PostgresMigrationsPath("../../migrations")))
	_, err = db.Pool().Exec(context.Background(),
		`TRUNCATE wallet_tokens, positions, tokens, chains, wallets, snapshots, settings, exchange_transactions`)
	require.NoError(t, err)
	return db
}

func TestCurrentSchema(t *testing.T) {
	setupTestDB(t)
	cfg := testPostgresConfig()
	schema, err := CurrentSchema(cfg.URL(), PostgresMigrationsPath("../../migrations"))
	require.NoError(t, err)
	assert.True(t, schema.Applied())
	assert.False(t, schema.Dirty)
}

func TestNewPostgresDB(t *testing.T) {
	db := setupTestDB(t)
	assert.NotNil(t, db.Pool())
	assert.NoError(t, db.Ping(testContext(t)))
}

func TestWalletRepository_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := testContext(t)

	w := &models.Wallet{Address: "0xabc", ChainFamily: types.FamilyEVM, Tag: "main", Visible: true}
	require.NoError(t, repo.Create(ctx, w))
	assert.NotEmpty(t, w.ID)

	dup := &models.Wallet{Address: "0xabc", ChainFamily: types.FamilyEVM}
	assert.Error(t, repo.Create(ctx, dup))

	got, err := repo.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "main", got.Tag)

	tag := "cold"
	hidden := false
	updated, err := repo.Update(ctx, w.ID, models.WalletUpdate{Tag: &tag, Visible: &hidden})
	require.NoError(t, err)
	assert.Equal(t, "cold", updated.Tag)
	assert.False(t, updated.Visible)
	assert.Equal(t, "0xabc", updated.Address)

	evm, err := repo.List(ctx, types.FamilyEVM)
	require.NoError(t, err)
	assert.Len(t, evm, 1)
	sol, err := repo.List(ctx, types.FamilySolana)
	require.NoError(t, err)
	assert.Empty(t, sol)

	require.NoError(t, repo.Delete(ctx, w.ID))
	_, err = repo.Get(ctx, w.ID)
	assert.Error(t, err)
	assert.Error(t, repo.Delete(ctx, w.ID))
}

func TestHoldingsRepository_UpsertIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	wallets := NewWalletRepository(db)
	repo := NewHoldingsRepository(db)
	ctx := testContext(t)

	w := &models.Wallet{Address: "0xabc", ChainFamily: types.FamilyEVM, Tag: "main", Visible: true}
	require.NoError(t, wallets.Create(ctx, w))

	require.NoError(t, repo.UpsertChain(ctx, types.ChainInfo{ChainID: "eth", Name: "Ethereum", Family: types.FamilyEVM}))
	tok := types.TokenRecord{ChainID: "eth", Name: "Ether", Symbol: "ETH", Decimals: 18, PriceUSD: d("3000"), Amount: d("2")}

	var ids []int64
	for i := 0; i < 2; i++ {
		id, err := repo.UpsertToken(ctx, tok)
		require.NoError(t, err)
		ids = append(ids, id)
		require.NoError(t, repo.UpsertWalletToken(ctx, models.WalletToken{
			WalletID: w.ID, TokenID: id, Amount: tok.Amount, RawAmount: "2000000000000000000", USDValue: tok.USDValue(),
		}))
	}
	assert.Equal(t, ids[0], ids[1])

	rows, err := repo.ListHoldings(ctx, models.HoldingFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, d("2").Equal(rows[0].Token.Amount))
	assert.True(t, d("3000").Equal(rows[0].Token.PriceUSD))
	assert.Equal(t, "main", rows[0].Tag)

	// metadata outage reports the chain by id
	require.NoError(t, repo.UpsertChain(ctx, types.ChainInfo{ChainID: "eth", Name: "eth", Family: types.FamilyEVM}))
	var name string
	require.NoError(t, db.Pool().QueryRow(ctx, `SELECT name FROM chains WHERE chain_id = 'eth'`).Scan(&name))
	assert.Equal(t, "Ethereum", name)
}

func TestHoldingsRepository_ZeroStaleScopedToChains(t *testing.T) {
	db := setupTestDB(t)
	wallets := NewWalletRepository(db)
	repo := NewHoldingsRepository(db)
	ctx := testContext(t)

	w := &models.Wallet{Address: "cosmos1abc", ChainFamily: types.FamilyCosmos, Visible: true}
	require.NoError(t, wallets.Create(ctx, w))

	link := func(chain, symbol string) int64 {
		require.NoError(t, repo.UpsertChain(ctx, types.ChainInfo{ChainID: chain, Name: chain, Family: types.FamilyCosmos}))
		id, err := repo.UpsertToken(ctx, types.TokenRecord{ChainID: chain, Name: symbol, Symbol: symbol, PriceUSD: d("1")})
		require.NoError(t, err)
		require.NoError(t, repo.UpsertWalletToken(ctx, models.WalletToken{WalletID: w.ID, TokenID: id, Amount: d("5"), RawAmount: "5", USDValue: d("5")}))
		return id
	}
	atom := link("cosmoshub-4", "ATOM")
	link("osmosis-1", "OSMO")

	// osmosis failed this cycle: only cosmoshub-4 is swept
	n, err := repo.ZeroStaleWalletTokens(ctx, w.ID, []string{"cosmoshub-4"}, []int64{atom})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = repo.ZeroStaleWalletTokens(ctx, w.ID, nil, []int64{atom})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := repo.ListHoldings(ctx, models.HoldingFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ATOM", rows[0].Token.Symbol)
}

func TestHoldingsRepository_Positions(t *testing.T) {
	db := setupTestDB(t)
	wallets := NewWalletRepository(db)
	repo := NewHoldingsRepository(db)
	ctx := testContext(t)

	w := &models.Wallet{Address: "0xabc", ChainFamily: types.FamilyEVM, Tag: "main", Visible: true}
	require.NoError(t, wallets.Create(ctx, w))

	lp := models.Position{WalletID: w.ID, ProtocolName: "Uniswap V3", ChainID: "eth", PositionType: "Liquidity Pool",
		TokenNames: "ETH+USDC", Amount: d("1"), PriceUSD: d("200"), USDValue: d("200")}
	old := lp
	old.TokenNames = "ETH+DAI"
	require.NoError(t, repo.UpsertPosition(ctx, lp))
	require.NoError(t, repo.UpsertPosition(ctx, old))

	keep := []string{PositionKey(lp.ProtocolName, lp.ChainID, lp.PositionType, lp.TokenNames)}
	n, err := repo.ZeroStalePositions(ctx, w.ID, nil, keep)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	out, err := repo.ListPositions(ctx, models.HoldingFilter{ChainID: "eth"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ETH+USDC", out[0].TokenNames)
	assert.Equal(t, "main", out[0].WalletTag)
}

func TestSnapshotRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepository(db)
	ctx := testContext(t)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	s := &models.Snapshot{TotalNetWorth: d("1234.56"), History: []byte(`{"tokens":[]}`)}
	require.NoError(t, repo.Insert(ctx, s))
	assert.NotZero(t, s.ID)

	latest, err = repo.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, d("1234.56").Equal(latest.TotalNetWorth))

	list, err := repo.List(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	backdated := &models.Snapshot{Date: time.Now().UTC().AddDate(0, 0, -30), TotalNetWorth: d("999")}
	require.NoError(t, repo.Insert(ctx, backdated))
	latest, err = repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, backdated.ID, latest.ID, "latest follows insertion order")
}

func TestSettingsRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db)
	ctx := testContext(t)

	_, ok, err := repo.Get(ctx, "hidesmallbalances")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "hidesmallbalances", "5"))
	require.NoError(t, repo.Set(ctx, "hidesmallbalances", "25"))
	v, ok, err := repo.Get(ctx, "hidesmallbalances")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "25", v)
}

func TestExchangeTransactionRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewExchangeTransactionRepository(db)
	ctx := testContext(t)

	latest, err := repo.LatestCreatedAt(ctx, "binance")
	require.NoError(t, err)
	assert.True(t, latest.IsZero())

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tx := models.ExchangeTransaction{OrderNo: "o1", Exchange: "binance", Direction: "deposit", FiatCurrency: "EUR",
		Amount: d("100"), Fee: d("1"), Status: "Processing", CreatedAt: created}
	require.NoError(t, repo.Upsert(ctx, tx))
	tx.Status = "Successful"
	require.NoError(t, repo.Upsert(ctx, tx))

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Successful", list[0].Status)

	latest, err = repo.LatestCreatedAt(ctx, "binance")
	require.NoError(t, err)
	assert.True(t, created.Equal(latest))
}
