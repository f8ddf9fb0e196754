package adapter

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Binance fiat transaction types
const (
	BinanceFiatDeposit  = 0
	BinanceFiatWithdraw = 1
)

// BinanceFiatOrder is one fiat deposit or withdrawal
type BinanceFiatOrder struct {
	OrderNo         string          `json:"orderNo"`
	FiatCurrency    string          `json:"fiatCurrency"`
	IndicatedAmount decimal.Decimal `json:"indicatedAmount"`
	Amount          decimal.Decimal `json:"amount"`
	TotalFee        decimal.Decimal `json:"totalFee"`
	Method          string          `json:"method"`
	Status          string          `json:"status"`
	CreateTime      int64           `json:"createTime"`
	UpdateTime      int64           `json:"updateTime"`
}

// BinanceClient reads fiat order history with HMAC-signed requests
type BinanceClient struct {
	http      *HTTPClient
	apiKey    string
	apiSecret string
	now       func() time.Time
}

// NewBinanceClient creates a Binance client
func NewBinanceClient(baseURL, apiKey, apiSecret string, opts HTTPOptions) *BinanceClient {
	return &BinanceClient{
		http:      NewHTTPClient("binance", baseURL, opts),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		now:       time.Now,
	}
}

// Configured reports whether credentials are present
func (c *BinanceClient) Configured() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

func (c *BinanceClient) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// FiatOrders returns fiat orders of the given type created since begin
func (c *BinanceClient) FiatOrders(ctx context.Context, transactionType int, begin time.Time) ([]BinanceFiatOrder, error) {
	if !c.Configured() {
		return nil, NewAdapterError("binance", "FiatOrders", ErrNotConfigured, nil)
	}

	q := url.Values{}
	q.Set("transactionType", strconv.Itoa(transactionType))
	q.Set("beginTime", strconv.FormatInt(begin.UnixMilli(), 10))
	q.Set("rows", "500")
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	query := q.Encode()
	query += "&signature=" + c.sign(query)

	var resp struct {
		Code    string             `json:"code"`
		Message string             `json:"message"`
		Data    []BinanceFiatOrder `json:"data"`
	}
	headers := map[string]string{"X-MBX-APIKEY": c.apiKey}
	if err := c.http.GetRawQuery(ctx, "/sapi/v1/fiat/orders", query, headers, &resp); err != nil {
		return nil, NewAdapterError("binance", "FiatOrders", err, map[string]interface{}{"transactionType": transactionType})
	}
	return resp.Data, nil
}
