package adapter

import (
	"context"

	"github.com/shopspring/decimal"
)

// CosmosCoin is a bank module coin
type CosmosCoin struct {
	Denom  string          `json:"denom"`
	Amount decimal.Decimal `json:"amount"`
}

// CosmosDelegation is one delegation_responses entry
type CosmosDelegation struct {
	Delegation struct {
		DelegatorAddress string `json:"delegator_address"`
		ValidatorAddress string `json:"validator_address"`
	} `json:"delegation"`
	Balance CosmosCoin `json:"balance"`
}

// CosmosClient reads one Cosmos-SDK chain through its LCD REST endpoint
type CosmosClient struct {
	chain string
	http  *HTTPClient
}

// NewCosmosClient creates a client for one chain
func NewCosmosClient(chain, restURL string, opts HTTPOptions) *CosmosClient {
	return &CosmosClient{chain: chain, http: NewHTTPClient("cosmos:"+chain, restURL, opts)}
}

// Balances returns the bank balances of address
func (c *CosmosClient) Balances(ctx context.Context, address string) ([]CosmosCoin, error) {
	var resp struct {
		Balances []CosmosCoin `json:"balances"`
	}
	if err := c.http.GetJSON(ctx, "/cosmos/bank/v1beta1/balances/"+address, nil, &resp); err != nil {
		return nil, NewAdapterError("cosmos:"+c.chain, "Balances", err, map[string]interface{}{"address": address})
	}
	return resp.Balances, nil
}

// Delegations returns the staking delegations of address
func (c *CosmosClient) Delegations(ctx context.Context, address string) ([]CosmosDelegation, error) {
	var resp struct {
		DelegationResponses []CosmosDelegation `json:"delegation_responses"`
	}
	if err := c.http.GetJSON(ctx, "/cosmos/staking/v1beta1/delegations/"+address, nil, &resp); err != nil {
		return nil, NewAdapterError("cosmos:"+c.chain, "Delegations", err, map[string]interface{}{"address": address})
	}
	return resp.DelegationResponses, nil
}
