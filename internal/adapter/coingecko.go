package adapter

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// CoinGeckoQuote is one coin of the simple/price response.
// Usd24hChange is a percentage as returned upstream.
type CoinGeckoQuote struct {
	USD           *decimal.Decimal `json:"usd"`
	USDMarketCap  *decimal.Decimal `json:"usd_market_cap"`
	USD24hVol     *decimal.Decimal `json:"usd_24h_vol"`
	USD24hChange  *decimal.Decimal `json:"usd_24h_change"`
	LastUpdatedAt *int64           `json:"last_updated_at"`
}

// CoinGeckoClient reads USD quotes from CoinGecko
type CoinGeckoClient struct {
	http *HTTPClient
}

// NewCoinGeckoClient creates a client; apiKey may be empty for the public tier
func NewCoinGeckoClient(baseURL, apiKey string, opts HTTPOptions) *CoinGeckoClient {
	if apiKey != "" {
		if opts.Headers == nil {
			opts.Headers = map[string]string{}
		}
		opts.Headers["x-cg-demo-api-key"] = apiKey
	}
	return &CoinGeckoClient{http: NewHTTPClient("coingecko", baseURL, opts)}
}

// SimplePrice returns quotes keyed by coin id. Unknown ids are absent.
func (c *CoinGeckoClient) SimplePrice(ctx context.Context, ids []string) (map[string]CoinGeckoQuote, error) {
	q := url.Values{
		"ids":                     {strings.Join(ids, ",")},
		"vs_currencies":           {"usd"},
		"include_market_cap":      {"true"},
		"include_24hr_vol":        {"true"},
		"include_24hr_change":     {"true"},
		"include_last_updated_at": {"true"},
	}
	out := make(map[string]CoinGeckoQuote)
	if err := c.http.GetJSON(ctx, "/simple/price", q, &out); err != nil {
		return nil, NewAdapterError("coingecko", "SimplePrice", err, map[string]interface{}{"ids": ids})
	}
	return out, nil
}
