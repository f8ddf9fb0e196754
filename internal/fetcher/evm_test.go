package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-aggregator/internal/adapter"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/types"
)

type fakeDeBank struct {
	tokens       []adapter.DeBankToken
	protocols    []adapter.DeBankProtocol
	tokensErr    error
	protocolsErr error
	calledWith   string
}

func (f *fakeDeBank) AllTokens(_ context.Context, address string) ([]adapter.DeBankToken, error) {
	f.calledWith = address
	return f.tokens, f.tokensErr
}

func (f *fakeDeBank) AllComplexProtocols(context.Context, string) ([]adapter.DeBankProtocol, error) {
	return f.protocols, f.protocolsErr
}

func (f *fakeDeBank) Chains(context.Context) ([]adapter.DeBankChain, error) {
	return []adapter.DeBankChain{{ID: "eth", Name: "Ethereum", LogoURL: "https://static/eth.png", NativeTokenID: "eth"}}, nil
}

const evmAddress = "0x742d35cc6634c0532925a3b844bc454e4438f44e"

func evmWallet() *models.Wallet {
	return &models.Wallet{ID: "w1", Address: evmAddress, ChainFamily: types.FamilyEVM, Tag: "main"}
}

func TestEVMFetcher_GroupsByChain(t *testing.T) {
	api := &fakeDeBank{tokens: []adapter.DeBankToken{
		{Chain: "eth", Name: "Ether", Symbol: "ETH", Decimals: 18, Price: d("3000"), Amount: d("1.5"), RawAmount: d("1500000000000000000"), IsCore: true},
		{Chain: "arb", Name: "USD Coin", Symbol: "USDC.e", OptimizedSymbol: "USDC", Decimals: 6, Price: d("1"), Amount: d("20"), RawAmount: d("20000000")},
		{Chain: "eth", Name: "Dai", Symbol: "DAI", Decimals: 18, Price: d("1"), Amount: d("5"), RawAmount: d("5000000000000000000")},
	}}
	f := NewEVMFetcher(api)
	require.NoError(t, f.Prepare(context.Background()))

	res := f.Fetch(context.Background(), evmWallet())
	require.Empty(t, res.Error)
	require.Len(t, res.Chains, 2)

	assert.Equal(t, "eth", res.Chains[0].Chain.ChainID)
	assert.Equal(t, "Ethereum", res.Chains[0].Chain.Name)
	assert.Len(t, res.Chains[0].Data, 2)

	assert.Equal(t, "arb", res.Chains[1].Chain.Name, "unknown chains are named by id")
	assert.Equal(t, "USDC", res.Chains[1].Data[0].Symbol)
	assert.Equal(t, "20000000", res.Chains[1].Data[0].RawAmount)

	// checksummed before calling upstream
	assert.Equal(t, common.HexToAddress(evmAddress).Hex(), api.calledWith)
}

func TestEVMFetcher_InvalidAddress(t *testing.T) {
	f := NewEVMFetcher(&fakeDeBank{})
	w := evmWallet()
	w.Address = "0x1234"

	res := f.Fetch(context.Background(), w)
	assert.Contains(t, res.Error, "INVALID_ADDRESS_FORMAT")
	assert.NotEmpty(t, res.PositionsError)
	assert.Empty(t, res.Chains)
}

func TestEVMFetcher_PartialFailure(t *testing.T) {
	api := &fakeDeBank{
		tokens:       []adapter.DeBankToken{{Chain: "eth", Symbol: "ETH", Amount: d("1"), Price: d("2")}},
		protocolsErr: errors.New("debank: 503"),
	}
	res := NewEVMFetcher(api).Fetch(context.Background(), evmWallet())

	assert.Empty(t, res.Error)
	assert.Len(t, res.Tokens(), 1)
	assert.Equal(t, "debank: 503", res.PositionsError)
	assert.Empty(t, res.Protocols)

	api = &fakeDeBank{tokensErr: errors.New("timeout")}
	res = NewEVMFetcher(api).Fetch(context.Background(), evmWallet())
	assert.Equal(t, "timeout", res.Error)
	assert.Empty(t, res.PositionsError)
}

func TestEVMFetcher_Protocols(t *testing.T) {
	item := adapter.DeBankPortfolioItem{Name: "Lending"}
	item.Stats.AssetUSDValue = d("1500")
	item.Detail.SupplyTokenList = []adapter.DeBankPortfolioToken{{Symbol: "USDC", Amount: d("1000"), Price: d("1")}}
	item.Detail.RewardTokenList = []adapter.DeBankPortfolioToken{{Symbol: "AAVE", Amount: d("5"), Price: d("100")}}

	dust := adapter.DeBankPortfolioItem{Name: "Rewards"}
	dust.Stats.AssetUSDValue = d("0.01")
	dust.Detail.RewardTokenList = []adapter.DeBankPortfolioToken{{Symbol: "GHO", Amount: d("0.01"), Price: d("1")}}

	api := &fakeDeBank{protocols: []adapter.DeBankProtocol{{
		ID: "aave3", Chain: "eth", Name: "Aave V3", LogoURL: "https://static/aave.png",
		PortfolioItemList: []adapter.DeBankPortfolioItem{item, dust},
	}}}

	res := NewEVMFetcher(api).Fetch(context.Background(), evmWallet())
	require.Len(t, res.Protocols, 1)
	p := res.Protocols[0]
	assert.Equal(t, "Aave V3", p.ProtocolName)
	assert.Equal(t, "Lending", p.PositionType)
	assert.Equal(t, "USDC+AAVE", p.TokenNames)
	assert.True(t, p.USDValue.Equal(d("1500")))
	assert.Equal(t, "w1", p.WalletID)
	assert.Equal(t, "main", p.WalletTag)
}
