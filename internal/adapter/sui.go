package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	SuiCoinType              = "0x2::sui::SUI"
	SuiStakingRequestEvent   = "0x3::validator::StakingRequestEvent"
	SuiUnstakingRequestEvent = "0x3::validator::UnstakingRequestEvent"
)

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SuiEvent is one entry of suix_queryEvents
type SuiEvent struct {
	ID struct {
		TxDigest string `json:"txDigest"`
		EventSeq string `json:"eventSeq"`
	} `json:"id"`
	Type        string `json:"type"`
	TimestampMs string `json:"timestampMs"`
	ParsedJSON  struct {
		Amount          decimal.Decimal `json:"amount"`
		PrincipalAmount decimal.Decimal `json:"principal_amount"`
		StakerAddress   string          `json:"staker_address"`
	} `json:"parsedJson"`
}

// SuiClient talks to a Sui full node over JSON-RPC
type SuiClient struct {
	http *HTTPClient
}

// NewSuiClient creates a Sui JSON-RPC client
func NewSuiClient(rpcURL string, opts HTTPOptions) *SuiClient {
	return &SuiClient{http: NewHTTPClient("sui", rpcURL, opts)}
}

func (c *SuiClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	var resp jsonRPCResponse
	req := jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	if err := c.http.PostJSON(ctx, "", req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return json.Unmarshal(resp.Result, out)
}

// Balance returns the total SUI balance in MIST
func (c *SuiClient) Balance(ctx context.Context, owner string) (decimal.Decimal, error) {
	var result struct {
		TotalBalance decimal.Decimal `json:"totalBalance"`
	}
	if err := c.call(ctx, "suix_getBalance", []interface{}{owner, SuiCoinType}, &result); err != nil {
		return decimal.Zero, NewAdapterError("sui", "Balance", err, map[string]interface{}{"owner": owner})
	}
	return result.TotalBalance, nil
}

// StakingEvents returns every staking and unstaking request sent by owner.
// Pages are followed until the node reports no further page.
func (c *SuiClient) StakingEvents(ctx context.Context, owner string) ([]SuiEvent, error) {
	var events []SuiEvent
	var cursor interface{}
	for page := 0; page < 100; page++ {
		var result struct {
			Data        []SuiEvent      `json:"data"`
			NextCursor  json.RawMessage `json:"nextCursor"`
			HasNextPage bool            `json:"hasNextPage"`
		}
		params := []interface{}{map[string]string{"Sender": owner}, cursor, 50, false}
		if err := c.call(ctx, "suix_queryEvents", params, &result); err != nil {
			return nil, NewAdapterError("sui", "StakingEvents", err, map[string]interface{}{"owner": owner})
		}
		for _, ev := range result.Data {
			if ev.Type == SuiStakingRequestEvent || ev.Type == SuiUnstakingRequestEvent {
				events = append(events, ev)
			}
		}
		if !result.HasNextPage || len(result.NextCursor) == 0 {
			break
		}
		cursor = result.NextCursor
	}
	return events, nil
}
