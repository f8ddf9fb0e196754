package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/types"
)

func cosmosResult(walletID string, chains ...types.ChainResult) types.FetchResult {
	return types.FetchResult{Source: types.FamilyCosmos, WalletID: walletID, Chains: chains}
}

func chainOK(id string, tokens ...types.TokenRecord) types.ChainResult {
	for i := range tokens {
		tokens[i].ChainID = id
	}
	return types.ChainResult{Chain: types.ChainInfo{ChainID: id, Name: id, Family: types.FamilyCosmos}, Data: tokens}
}

func chainFailed(id string) types.ChainResult {
	return types.ChainResult{Chain: types.ChainInfo{ChainID: id}, Data: []types.TokenRecord{}, Error: "connection refused"}
}

func tok(symbol, amount, price string) types.TokenRecord {
	return types.TokenRecord{Name: symbol, Symbol: symbol, Amount: d(amount), RawAmount: amount, PriceUSD: d(price)}
}

func newSyncFixture() (*SyncService, *memHoldings) {
	wallets := &memWallets{}
	wallets.add("w1", "main", types.FamilyCosmos, true)
	store := newMemHoldings(wallets)
	return NewSyncService(store), store
}

func TestSyncService_WritesChainBeforeTokenBeforeLink(t *testing.T) {
	svc, store := newSyncFixture()

	_, err := svc.Persist(context.Background(), cosmosResult("w1", chainOK("cosmoshub-4", tok("ATOM", "3", "2"))))
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(store.calls), 3)
	assert.Equal(t, "chain:cosmoshub-4", store.calls[0])
	assert.Equal(t, "token:cosmoshub-4/ATOM", store.calls[1])
	assert.True(t, strings.HasPrefix(store.calls[2], "link:w1/"))
}

func TestSyncService_IsIdempotent(t *testing.T) {
	svc, store := newSyncFixture()
	result := cosmosResult("w1", chainOK("cosmoshub-4", tok("ATOM", "3", "2")), chainOK("osmosis-1", tok("OSMO", "10", "0.5")))

	first, err := svc.Persist(context.Background(), result)
	require.NoError(t, err)
	second, err := svc.Persist(context.Background(), result)
	require.NoError(t, err)

	assert.Equal(t, first.Tokens, second.Tokens)
	assert.Len(t, store.tokens, 2)
	assert.Len(t, store.links, 2)
	assert.Equal(t, int64(0), second.ZeroedTokens)

	amount, ok := store.linkAmount("w1", "cosmoshub-4", "ATOM")
	require.True(t, ok)
	assert.True(t, d("3").Equal(amount))
}

func TestSyncService_RecomputesUSDValue(t *testing.T) {
	svc, store := newSyncFixture()
	_, err := svc.Persist(context.Background(), cosmosResult("w1", chainOK("cosmoshub-4", tok("ATOM", "3", "2.5"))))
	require.NoError(t, err)

	for _, link := range store.links {
		assert.True(t, d("7.5").Equal(link.USDValue), link.USDValue.String())
	}
}

func TestSyncService_ZeroesSoldTokens(t *testing.T) {
	svc, store := newSyncFixture()
	ctx := context.Background()

	_, err := svc.Persist(ctx, cosmosResult("w1", chainOK("cosmoshub-4", tok("ATOM", "3", "2"), tok("STATOM", "1", "3"))))
	require.NoError(t, err)

	stats, err := svc.Persist(ctx, cosmosResult("w1", chainOK("cosmoshub-4", tok("ATOM", "3", "2"))))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ZeroedTokens)

	amount, ok := store.linkAmount("w1", "cosmoshub-4", "STATOM")
	require.True(t, ok)
	assert.True(t, amount.IsZero())
}

func TestSyncService_FailedChainKeepsStoredRows(t *testing.T) {
	svc, store := newSyncFixture()
	ctx := context.Background()

	_, err := svc.Persist(ctx, cosmosResult("w1",
		chainOK("cosmoshub-4", tok("ATOM", "3", "2"), tok("STATOM", "1", "3")),
		chainOK("osmosis-1", tok("OSMO", "10", "0.5")),
	))
	require.NoError(t, err)

	stats, err := svc.Persist(ctx, cosmosResult("w1",
		chainOK("cosmoshub-4", tok("ATOM", "4", "2")),
		chainFailed("osmosis-1"),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"osmosis-1"}, stats.FailedChains)

	osmo, _ := store.linkAmount("w1", "osmosis-1", "OSMO")
	assert.True(t, d("10").Equal(osmo), "failed chain must keep its stored balance")

	statom, _ := store.linkAmount("w1", "cosmoshub-4", "STATOM")
	assert.True(t, statom.IsZero(), "stale token of a successful chain is zeroed")

	atom, _ := store.linkAmount("w1", "cosmoshub-4", "ATOM")
	assert.True(t, d("4").Equal(atom))
}

func TestSyncService_PartialChainKeepsUnreportedRows(t *testing.T) {
	svc, store := newSyncFixture()
	ctx := context.Background()

	_, err := svc.Persist(ctx, cosmosResult("w1", chainOK("solana", tok("SOL", "2", "150"), tok("JUP", "40", "1"))))
	require.NoError(t, err)

	partial := chainOK("solana", tok("SOL", "3", "150"))
	partial.Partial = true
	stats, err := svc.Persist(ctx, cosmosResult("w1", partial))
	require.NoError(t, err)
	assert.Zero(t, stats.ZeroedTokens)

	sol, _ := store.linkAmount("w1", "solana", "SOL")
	assert.True(t, d("3").Equal(sol))
	jup, _ := store.linkAmount("w1", "solana", "JUP")
	assert.True(t, d("40").Equal(jup), "token missing from a partial read keeps its balance")
}

func TestSyncService_WalletErrorWritesNothing(t *testing.T) {
	svc, store := newSyncFixture()
	ctx := context.Background()

	_, err := svc.Persist(ctx, cosmosResult("w1", chainOK("cosmoshub-4", tok("ATOM", "3", "2"))))
	require.NoError(t, err)

	failed := cosmosResult("w1")
	failed.Error = "INVALID_ADDRESS_FORMAT"
	failed.PositionsError = failed.Error
	stats, err := svc.Persist(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.ZeroedTokens)

	atom, _ := store.linkAmount("w1", "cosmoshub-4", "ATOM")
	assert.True(t, d("3").Equal(atom))
}

func TestSyncService_Positions(t *testing.T) {
	svc, store := newSyncFixture()
	ctx := context.Background()

	lp := types.PositionRecord{ProtocolName: "Aave V3", ChainID: "eth", PositionType: "Lending", TokenNames: "USDC",
		Amount: d("100"), PriceUSD: d("1"), USDValue: d("100")}
	staked := types.PositionRecord{ProtocolName: "Cosmos Hub Staking", ChainID: "cosmoshub-4", PositionType: types.PositionTypeStaked,
		TokenNames: "ATOM", Amount: d("5"), PriceUSD: d("2"), USDValue: d("10")}

	r := types.FetchResult{Source: types.FamilyEVM, WalletID: "w1", Protocols: []types.PositionRecord{lp, staked}}
	stats, err := svc.Persist(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Positions)

	// the protocol list could not be read: stored positions stay
	r2 := types.FetchResult{Source: types.FamilyEVM, WalletID: "w1", PositionsError: "timeout"}
	stats, err = svc.Persist(ctx, r2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.ZeroedPositions)

	// a successful read without the lending position zeroes it
	r3 := types.FetchResult{Source: types.FamilyEVM, WalletID: "w1", Protocols: []types.PositionRecord{staked}}
	stats, err = svc.Persist(ctx, r3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ZeroedPositions)

	out, err := store.ListPositions(ctx, models.HoldingFilter{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ATOM", out[0].TokenNames)
}

func TestSyncService_MergesDuplicateKeys(t *testing.T) {
	svc, store := newSyncFixture()

	usdcA := tok("USDC", "10", "1")
	usdcA.RawAmount = "10000000"
	usdcB := tok("USDC", "5", "1")
	usdcB.RawAmount = "5000000"
	_, err := svc.Persist(context.Background(), cosmosResult("w1", chainOK("noble-1", usdcA, usdcB)))
	require.NoError(t, err)

	amount, ok := store.linkAmount("w1", "noble-1", "USDC")
	require.True(t, ok)
	assert.True(t, d("15").Equal(amount))
	for _, link := range store.links {
		assert.Equal(t, "15000000", link.RawAmount)
	}
}

func TestSyncService_ReturnsStoreErrors(t *testing.T) {
	svc, store := newSyncFixture()
	store.failOn = "token:"

	_, err := svc.Persist(context.Background(), cosmosResult("w1", chainOK("cosmoshub-4", tok("ATOM", "3", "2"))))
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)
}

func TestStaleScope(t *testing.T) {
	ok := cosmosResult("w1", chainOK("a"), chainOK("b"))
	scope, zero := staleScope(ok, true)
	assert.True(t, zero)
	assert.Nil(t, scope)

	partial := cosmosResult("w1", chainOK("a"), chainFailed("b"))
	scope, zero = staleScope(partial, true)
	assert.True(t, zero)
	assert.Equal(t, []string{"a"}, scope)

	incomplete := chainOK("b")
	incomplete.Partial = true
	scope, zero = staleScope(cosmosResult("w1", chainOK("a"), incomplete), true)
	assert.True(t, zero)
	assert.Equal(t, []string{"a"}, scope)

	allFailed := cosmosResult("w1", chainFailed("a"))
	_, zero = staleScope(allFailed, true)
	assert.False(t, zero)

	_, zero = staleScope(cosmosResult("w1"), false)
	assert.False(t, zero)
}
