package adapter

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const aptosCoinType = "0x1::aptos_coin::AptosCoin"

// AptosStakeActivity is one delegated staking activity from the indexer
type AptosStakeActivity struct {
	Amount             decimal.Decimal `json:"amount"`
	EventIndex         int64           `json:"event_index"`
	EventType          string          `json:"event_type"`
	PoolAddress        string          `json:"pool_address"`
	TransactionVersion int64           `json:"transaction_version"`
}

// AptosClient reads balances from a full node and staking history from the indexer
type AptosClient struct {
	node    *HTTPClient
	indexer *HTTPClient
}

// NewAptosClient creates an Aptos client
func NewAptosClient(nodeURL, indexerURL string, opts HTTPOptions) *AptosClient {
	return &AptosClient{
		node:    NewHTTPClient("aptos", nodeURL, opts),
		indexer: NewHTTPClient("aptos-indexer", indexerURL, opts),
	}
}

// Balance returns the APT balance in octas via the coin::balance view function
func (c *AptosClient) Balance(ctx context.Context, owner string) (decimal.Decimal, error) {
	body := map[string]interface{}{
		"function":       "0x1::coin::balance",
		"type_arguments": []string{aptosCoinType},
		"arguments":      []string{owner},
	}
	var out []decimal.Decimal
	if err := c.node.PostJSON(ctx, "/view", body, &out); err != nil {
		return decimal.Zero, NewAdapterError("aptos", "Balance", err, map[string]interface{}{"owner": owner})
	}
	if len(out) == 0 {
		return decimal.Zero, NewAdapterError("aptos", "Balance", fmt.Errorf("empty view result"), nil)
	}
	return out[0], nil
}

const aptosStakeQuery = `query DelegatorActivities($addr: String) {
  delegated_staking_activities(where: {delegator_address: {_eq: $addr}}) {
    amount
    event_index
    event_type
    pool_address
    transaction_version
  }
}`

// StakeActivities returns the delegator's staking activities in upstream order
func (c *AptosClient) StakeActivities(ctx context.Context, delegator string) ([]AptosStakeActivity, error) {
	body := map[string]interface{}{
		"query":     aptosStakeQuery,
		"variables": map[string]string{"addr": delegator},
	}
	var resp struct {
		Data struct {
			Activities []AptosStakeActivity `json:"delegated_staking_activities"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := c.indexer.PostJSON(ctx, "", body, &resp); err != nil {
		return nil, NewAdapterError("aptos", "StakeActivities", err, map[string]interface{}{"delegator": delegator})
	}
	if len(resp.Errors) > 0 {
		return nil, NewAdapterError("aptos", "StakeActivities", fmt.Errorf("graphql: %s", resp.Errors[0].Message), nil)
	}
	return resp.Data.Activities, nil
}
