package fetcher

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-aggregator/internal/adapter"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/types"
)

func TestReplayStake_SortsBeforeReplay(t *testing.T) {
	events := []StakeEvent{
		{Kind: StakeRemove, Amount: d("40"), Timestamp: 300, Sequence: 0},
		{Kind: StakeAdd, Amount: d("100"), Timestamp: 100, Sequence: 1},
		{Kind: StakeAdd, Amount: d("10"), Timestamp: 100, Sequence: 0},
		{Kind: StakeAdd, Amount: d("5"), Timestamp: 200, Sequence: 0},
	}
	assert.True(t, ReplayStake(events).Equal(d("75")))
	assert.Equal(t, int64(300), events[0].Timestamp, "input is not reordered")
}

func TestReplayStake_ClampsAtZero(t *testing.T) {
	events := []StakeEvent{
		{Kind: StakeAdd, Amount: d("10"), Timestamp: 1},
		{Kind: StakeRemove, Amount: d("12"), Timestamp: 2},
	}
	assert.True(t, ReplayStake(events).IsZero())
	assert.True(t, ReplayStake(nil).IsZero())
}

func TestReplayStake_OrderIndependentProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("shuffling events does not change the replayed stake", prop.ForAll(
		func(amounts []int64, seed int64) bool {
			events := make([]StakeEvent, len(amounts))
			for i, a := range amounts {
				kind := StakeAdd
				if i%3 == 2 {
					kind = StakeRemove
				}
				events[i] = StakeEvent{Kind: kind, Amount: decimal.NewFromInt(a), Timestamp: int64(i / 2), Sequence: int64(i % 2)}
			}
			want := ReplayStake(events)

			shuffled := make([]StakeEvent, len(events))
			copy(shuffled, events)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			return ReplayStake(shuffled).Equal(want) && !want.IsNegative()
		},
		gen.SliceOf(gen.Int64Range(0, 1_000_000)),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

type fakeSui struct {
	balance   string
	events    []adapter.SuiEvent
	eventsErr error
}

func (f *fakeSui) Balance(context.Context, string) (decimal.Decimal, error) {
	return d(f.balance), nil
}

func (f *fakeSui) StakingEvents(context.Context, string) ([]adapter.SuiEvent, error) {
	return f.events, f.eventsErr
}

func suiEvent(typ, ts, seq, amount, principal string) adapter.SuiEvent {
	var ev adapter.SuiEvent
	ev.Type = typ
	ev.TimestampMs = ts
	ev.ID.EventSeq = seq
	if amount != "" {
		ev.ParsedJSON.Amount = d(amount)
	}
	if principal != "" {
		ev.ParsedJSON.PrincipalAmount = d(principal)
	}
	return ev
}

func TestSuiFetcher_Fetch(t *testing.T) {
	api := &fakeSui{
		balance: "3000000000",
		events: []adapter.SuiEvent{
			suiEvent(adapter.SuiUnstakingRequestEvent, "1700000002000", "0", "", "1000000000"),
			suiEvent(adapter.SuiStakingRequestEvent, "1700000000000", "0", "5000000000", ""),
			suiEvent(adapter.SuiStakingRequestEvent, "1700000001000", "1", "1000000000", ""),
		},
	}
	w := &models.Wallet{ID: "w-sui", Address: "0xabc", ChainFamily: types.FamilySui, Tag: "sui"}
	res := NewSuiFetcher(api, fakePrices{"sui": "1.5"}).Fetch(context.Background(), w)

	require.Len(t, res.Chains, 1)
	c := res.Chains[0]
	require.Len(t, c.Data, 1)
	assert.True(t, c.Data[0].Amount.Equal(d("3")))
	assert.True(t, c.Data[0].PriceUSD.Equal(d("1.5")))

	require.Len(t, c.Positions, 1)
	assert.Equal(t, "Sui Staking", c.Positions[0].ProtocolName)
	assert.True(t, c.Positions[0].Amount.Equal(d("5")))
	assert.True(t, c.Positions[0].USDValue.Equal(d("7.5")))
}

func TestSuiFetcher_EventsFailure(t *testing.T) {
	api := &fakeSui{balance: "1", eventsErr: errors.New("rpc error -32000")}
	w := &models.Wallet{ID: "w-sui", Address: "0xabc"}
	res := NewSuiFetcher(api, fakePrices{}).Fetch(context.Background(), w)
	require.Len(t, res.Chains, 1)
	assert.True(t, res.Chains[0].Failed())
}

type fakeAptos struct {
	balance    string
	activities []adapter.AptosStakeActivity
}

func (f *fakeAptos) Balance(context.Context, string) (decimal.Decimal, error) {
	return d(f.balance), nil
}

func (f *fakeAptos) StakeActivities(context.Context, string) ([]adapter.AptosStakeActivity, error) {
	return f.activities, nil
}

func TestAptosFetcher_Fetch(t *testing.T) {
	api := &fakeAptos{
		balance: "250000000",
		activities: []adapter.AptosStakeActivity{
			{EventType: "0x1::delegation_pool::UnlockStakeEvent", Amount: d("300000000"), TransactionVersion: 20, EventIndex: 0},
			{EventType: "0x1::delegation_pool::AddStakeEvent", Amount: d("1000000000"), TransactionVersion: 10, EventIndex: 1},
			{EventType: "0x1::delegation_pool::WithdrawStakeEvent", Amount: d("300000000"), TransactionVersion: 30, EventIndex: 0},
			{EventType: "0x1::delegation_pool::ReactivateStakeEvent", Amount: d("100000000"), TransactionVersion: 25, EventIndex: 0},
		},
	}
	w := &models.Wallet{ID: "w-apt", Address: "0x1", ChainFamily: types.FamilyAptos, Tag: "petra"}
	res := NewAptosFetcher(api, fakePrices{"aptos": "10"}).Fetch(context.Background(), w)

	require.Len(t, res.Chains, 1)
	c := res.Chains[0]
	require.Len(t, c.Data, 1)
	assert.True(t, c.Data[0].Amount.Equal(d("2.5")))

	require.Len(t, c.Positions, 1)
	assert.Equal(t, "Aptos Staking", c.Positions[0].ProtocolName)
	assert.True(t, c.Positions[0].Amount.Equal(d("8")))
	assert.True(t, c.Positions[0].USDValue.Equal(d("80")))
}
