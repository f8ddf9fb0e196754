package adapter

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"
)

// DeBankToken is one entry of the all_token_list response
type DeBankToken struct {
	ID              string          `json:"id"`
	Chain           string          `json:"chain"`
	Name            string          `json:"name"`
	Symbol          string          `json:"symbol"`
	OptimizedSymbol string          `json:"optimized_symbol"`
	Decimals        int32           `json:"decimals"`
	LogoURL         string          `json:"logo_url"`
	Price           decimal.Decimal `json:"price"`
	Price24hChange  decimal.Decimal `json:"price_24h_change"`
	IsCore          bool            `json:"is_core"`
	IsVerified      bool            `json:"is_verified"`
	Amount          decimal.Decimal `json:"amount"`
	RawAmount       decimal.Decimal `json:"raw_amount"`
}

// DeBankPortfolioToken is a token inside a protocol portfolio item
type DeBankPortfolioToken struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

// DeBankPortfolioItem is one position inside a protocol
type DeBankPortfolioItem struct {
	Name  string `json:"name"`
	Stats struct {
		AssetUSDValue decimal.Decimal `json:"asset_usd_value"`
		DebtUSDValue  decimal.Decimal `json:"debt_usd_value"`
		NetUSDValue   decimal.Decimal `json:"net_usd_value"`
	} `json:"stats"`
	Detail struct {
		SupplyTokenList []DeBankPortfolioToken `json:"supply_token_list"`
		RewardTokenList []DeBankPortfolioToken `json:"reward_token_list"`
		TokenList       []DeBankPortfolioToken `json:"token_list"`
	} `json:"detail"`
}

// DeBankProtocol is one entry of the all_complex_protocol_list response
type DeBankProtocol struct {
	ID                string                `json:"id"`
	Chain             string                `json:"chain"`
	Name              string                `json:"name"`
	LogoURL           string                `json:"logo_url"`
	PortfolioItemList []DeBankPortfolioItem `json:"portfolio_item_list"`
}

// DeBankChain is one entry of the chain list
type DeBankChain struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	LogoURL       string `json:"logo_url"`
	NativeTokenID string `json:"native_token_id"`
}

// DeBankClient reads EVM holdings from the DeBank pro API
type DeBankClient struct {
	http *HTTPClient
}

// NewDeBankClient creates a client authenticated with the AccessKey header
func NewDeBankClient(baseURL, apiKey string, opts HTTPOptions) *DeBankClient {
	if opts.Headers == nil {
		opts.Headers = map[string]string{}
	}
	opts.Headers["AccessKey"] = apiKey
	return &DeBankClient{http: NewHTTPClient("debank", baseURL, opts)}
}

// AllTokens returns every non-dust token the address holds across EVM chains
func (c *DeBankClient) AllTokens(ctx context.Context, address string) ([]DeBankToken, error) {
	var out []DeBankToken
	q := url.Values{"id": {address}, "is_all": {"false"}}
	if err := c.http.GetJSON(ctx, "/v1/user/all_token_list", q, &out); err != nil {
		return nil, NewAdapterError("debank", "AllTokens", err, map[string]interface{}{"address": address})
	}
	return out, nil
}

// AllComplexProtocols returns the address's DeFi positions across EVM chains
func (c *DeBankClient) AllComplexProtocols(ctx context.Context, address string) ([]DeBankProtocol, error) {
	var out []DeBankProtocol
	q := url.Values{"id": {address}}
	if err := c.http.GetJSON(ctx, "/v1/user/all_complex_protocol_list", q, &out); err != nil {
		return nil, NewAdapterError("debank", "AllComplexProtocols", err, map[string]interface{}{"address": address})
	}
	return out, nil
}

// Chains returns chain metadata
func (c *DeBankClient) Chains(ctx context.Context) ([]DeBankChain, error) {
	var out []DeBankChain
	if err := c.http.GetJSON(ctx, "/v1/chain/list", nil, &out); err != nil {
		return nil, NewAdapterError("debank", "Chains", err, nil)
	}
	return out, nil
}
