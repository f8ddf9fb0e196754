package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// SPLBalance is the balance of one mint summed over the owner's token accounts
type SPLBalance struct {
	Mint      string
	RawAmount decimal.Decimal
	Decimals  int32
}

// SolanaListedToken is an entry of the verified token list
type SolanaListedToken struct {
	Address    string `json:"address"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Decimals   int32  `json:"decimals"`
	LogoURI    string `json:"logoURI"`
	Extensions struct {
		CoingeckoID string `json:"coingeckoId"`
	} `json:"extensions"`
}

// SolanaClient reads native and SPL balances through solana-go and the
// verified token list over plain HTTP.
type SolanaClient struct {
	rpc       *rpc.Client
	tokenList *HTTPClient
}

// NewSolanaClient creates a Solana client
func NewSolanaClient(rpcURL, tokenListURL string, opts HTTPOptions) *SolanaClient {
	return &SolanaClient{
		rpc:       rpc.New(rpcURL),
		tokenList: NewHTTPClient("solana-token-list", tokenListURL, opts),
	}
}

// NativeBalance returns the owner's balance in lamports
func (c *SolanaClient) NativeBalance(ctx context.Context, owner string) (uint64, error) {
	pk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, NewAdapterError("solana", "NativeBalance", fmt.Errorf("%w: %v", ErrInvalidAddress, err), nil)
	}
	res, err := c.rpc.GetBalance(ctx, pk, rpc.CommitmentFinalized)
	if err != nil {
		return 0, NewAdapterError("solana", "NativeBalance", err, map[string]interface{}{"owner": owner})
	}
	return res.Value, nil
}

type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			TokenAmount struct {
				Amount   string `json:"amount"`
				Decimals int32  `json:"decimals"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

// TokenBalances enumerates the owner's SPL token accounts, summed per mint.
// Zero balances are skipped.
func (c *SolanaClient) TokenBalances(ctx context.Context, owner string) ([]SPLBalance, error) {
	pk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, NewAdapterError("solana", "TokenBalances", fmt.Errorf("%w: %v", ErrInvalidAddress, err), nil)
	}

	programID := solana.TokenProgramID
	accts, err := c.rpc.GetTokenAccountsByOwner(ctx, pk,
		&rpc.GetTokenAccountsConfig{ProgramId: &programID},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingJSONParsed},
	)
	if err != nil {
		return nil, NewAdapterError("solana", "TokenBalances", err, map[string]interface{}{"owner": owner})
	}

	byMint := make(map[string]*SPLBalance)
	var order []string
	for _, acct := range accts.Value {
		if acct == nil || acct.Account.Data == nil {
			continue
		}
		raw := acct.Account.Data.GetRawJSON()
		if raw == nil {
			continue
		}
		var parsed parsedTokenAccount
		if err := json.Unmarshal(raw, &parsed); err != nil {
			continue
		}
		info := parsed.Parsed.Info
		amount, err := decimal.NewFromString(info.TokenAmount.Amount)
		if info.Mint == "" || err != nil || amount.IsZero() {
			continue
		}
		if b, ok := byMint[info.Mint]; ok {
			b.RawAmount = b.RawAmount.Add(amount)
			continue
		}
		byMint[info.Mint] = &SPLBalance{Mint: info.Mint, RawAmount: amount, Decimals: info.TokenAmount.Decimals}
		order = append(order, info.Mint)
	}

	out := make([]SPLBalance, 0, len(order))
	for _, mint := range order {
		out = append(out, *byMint[mint])
	}
	return out, nil
}

// VerifiedTokens fetches the verified token list
func (c *SolanaClient) VerifiedTokens(ctx context.Context) ([]SolanaListedToken, error) {
	var out []SolanaListedToken
	if err := c.tokenList.GetJSON(ctx, "", nil, &out); err != nil {
		return nil, NewAdapterError("solana", "VerifiedTokens", err, nil)
	}
	return out, nil
}
