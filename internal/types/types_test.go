package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestChainFamilyValid(t *testing.T) {
	assert.True(t, FamilyCosmos.Valid())
	assert.False(t, ChainFamily("bitcoin").Valid())
}

func TestFetchResultFlattening(t *testing.T) {
	r := FetchResult{
		Source: FamilyCosmos,
		Chains: []ChainResult{
			{Chain: ChainInfo{ChainID: "osmosis-1"}, Data: []TokenRecord{{Symbol: "OSMO"}},
				Positions: []PositionRecord{{TokenNames: "OSMO"}}},
			{Chain: ChainInfo{ChainID: "juno-1"}, Data: []TokenRecord{}, Error: "503"},
			{Chain: ChainInfo{ChainID: "cosmoshub-4"}, Data: []TokenRecord{{Symbol: "ATOM"}}},
		},
	}

	assert.Len(t, r.Tokens(), 2)
	assert.Len(t, r.Positions(), 1)
	assert.Equal(t, []string{"juno-1"}, r.FailedChains())
	assert.Equal(t, []string{"osmosis-1", "cosmoshub-4"}, r.SucceededChains())
	assert.False(t, r.Complete())
}

func TestFetchResultProtocols(t *testing.T) {
	r := FetchResult{
		Source:    FamilyEVM,
		Chains:    []ChainResult{{Chain: ChainInfo{ChainID: "eth"}, Data: []TokenRecord{{Symbol: "ETH"}}}},
		Protocols: []PositionRecord{{ProtocolName: "Aave V3", TokenNames: "USDC"}},
	}
	assert.Len(t, r.Positions(), 1)
	assert.True(t, r.Complete())

	r.PositionsError = "timeout"
	assert.False(t, r.Complete())
}

func TestFailedChainPositionsAreIgnored(t *testing.T) {
	r := FetchResult{
		Chains: []ChainResult{
			{Chain: ChainInfo{ChainID: "juno-1"}, Error: "503", Positions: []PositionRecord{{TokenNames: "JUNO"}}},
		},
	}
	assert.Empty(t, r.Positions())
}

func TestPartialChainIsNotReplaceable(t *testing.T) {
	r := FetchResult{
		Chains: []ChainResult{
			{Chain: ChainInfo{ChainID: "solana"}, Data: []TokenRecord{{Symbol: "SOL"}}, Partial: true},
			{Chain: ChainInfo{ChainID: "juno-1"}, Error: "503"},
			{Chain: ChainInfo{ChainID: "osmosis-1"}, Data: []TokenRecord{{Symbol: "OSMO"}}},
		},
	}
	assert.Len(t, r.Tokens(), 2)
	assert.Equal(t, []string{"solana", "osmosis-1"}, r.SucceededChains())
	assert.Equal(t, []string{"osmosis-1"}, r.ReplaceableChains())
	assert.False(t, r.Complete())
}

func TestTokenRecordValue(t *testing.T) {
	tok := TokenRecord{ChainID: "eth", Symbol: "TKN", Amount: decimal.RequireFromString("2.5"), PriceUSD: decimal.NewFromInt(10)}
	assert.True(t, tok.USDValue().Equal(decimal.NewFromInt(25)))
	assert.Equal(t, TokenKey{ChainID: "eth", Symbol: "TKN"}, tok.Key())
}
