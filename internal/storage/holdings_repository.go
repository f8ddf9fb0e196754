package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/types"
)

// HoldingRow is one non-zero wallet-token link joined with its token and wallet
type HoldingRow struct {
	WalletID string
	Tag      string
	Token    types.TokenRecord
}

// HoldingsRepository upserts chains, tokens, wallet links and positions by
// their natural keys and reads them back for the API.
type HoldingsRepository struct {
	db *PostgresDB
}

// NewHoldingsRepository creates a new holdings repository
func NewHoldingsRepository(db *PostgresDB) *HoldingsRepository {
	return &HoldingsRepository{db: db}
}

// UpsertChain inserts or updates a chain by chain_id. A name equal to the id
// means metadata was unavailable and keeps the stored name.
func (r *HoldingsRepository) UpsertChain(ctx context.Context, chain types.ChainInfo) error {
	query := `
		INSERT INTO chains (chain_id, name, family, logo_url, native_symbol, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (chain_id) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> EXCLUDED.chain_id THEN EXCLUDED.name ELSE chains.name END,
			family = EXCLUDED.family,
			logo_url = CASE WHEN EXCLUDED.logo_url <> '' THEN EXCLUDED.logo_url ELSE chains.logo_url END,
			native_symbol = CASE WHEN EXCLUDED.native_symbol <> '' THEN EXCLUDED.native_symbol ELSE chains.native_symbol END,
			updated_at = NOW()
	`
	_, err := r.db.Pool().Exec(ctx, query, chain.ChainID, chain.Name, string(chain.Family), chain.LogoRef, chain.NativeSymbol)
	if err != nil {
		return apperrors.NewDatabaseError("upsert chain", err)
	}
	return nil
}

// UpsertToken inserts or updates a token by (chain_id, symbol) and returns its id.
// Concurrent writers for the same key resolve last-write-wins.
func (r *HoldingsRepository) UpsertToken(ctx context.Context, tok types.TokenRecord) (int64, error) {
	query := `
		INSERT INTO tokens (chain_id, name, symbol, decimals, logo_url, price_usd, price_24h_change, is_core, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, NOW())
		ON CONFLICT (chain_id, symbol) DO UPDATE SET
			name = EXCLUDED.name,
			decimals = EXCLUDED.decimals,
			logo_url = EXCLUDED.logo_url,
			price_usd = EXCLUDED.price_usd,
			price_24h_change = EXCLUDED.price_24h_change,
			is_core = EXCLUDED.is_core,
			updated_at = NOW()
		RETURNING id
	`
	var id int64
	err := r.db.Pool().QueryRow(ctx, query,
		tok.ChainID,
		tok.Name,
		tok.Symbol,
		tok.Decimals,
		tok.LogoRef,
		tok.PriceUSD.String(),
		tok.Price24hChange.String(),
		tok.IsCore,
	).Scan(&id)
	if err != nil {
		return 0, apperrors.NewDatabaseError("upsert token", err)
	}
	return id, nil
}

// UpsertWalletToken inserts or updates a link by (wallet_id, token_id)
func (r *HoldingsRepository) UpsertWalletToken(ctx context.Context, link models.WalletToken) error {
	query := `
		INSERT INTO wallet_tokens (wallet_id, token_id, amount, raw_amount, usd_value, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5::numeric, NOW())
		ON CONFLICT (wallet_id, token_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			raw_amount = EXCLUDED.raw_amount,
			usd_value = EXCLUDED.usd_value,
			updated_at = NOW()
	`
	_, err := r.db.Pool().Exec(ctx, query, link.WalletID, link.TokenID, link.Amount.String(), link.RawAmount, link.USDValue.String())
	if err != nil {
		return apperrors.NewDatabaseError("upsert wallet token", err)
	}
	return nil
}

// ZeroStaleWalletTokens zeroes the wallet's links that were not refreshed in
// this cycle. chainIDs limits the sweep to those chains; nil sweeps every chain.
func (r *HoldingsRepository) ZeroStaleWalletTokens(ctx context.Context, walletID string, chainIDs []string, keep []int64) (int64, error) {
	if keep == nil {
		keep = []int64{}
	}
	query := `
		UPDATE wallet_tokens wt
		SET amount = 0, raw_amount = '0', usd_value = 0, updated_at = NOW()
		FROM tokens t
		WHERE wt.token_id = t.id
			AND wt.wallet_id = $1
			AND wt.amount <> 0
			AND NOT (wt.token_id = ANY($2))
			AND ($3::text[] IS NULL OR t.chain_id = ANY($3))
	`
	tag, err := r.db.Pool().Exec(ctx, query, walletID, keep, chainIDs)
	if err != nil {
		return 0, apperrors.NewDatabaseError("zero stale wallet tokens", err)
	}
	return tag.RowsAffected(), nil
}

// PositionKey returns the storage key of a position inside one wallet
func PositionKey(protocol, chainID, positionType, tokenNames string) string {
	return strings.Join([]string{protocol, chainID, positionType, tokenNames}, "\x1f")
}

// UpsertPosition inserts or updates a position by its natural key
func (r *HoldingsRepository) UpsertPosition(ctx context.Context, p models.Position) error {
	query := `
		INSERT INTO positions (wallet_id, protocol_name, chain_id, position_type, token_names,
			amount, price_usd, usd_value, logo_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, NOW())
		ON CONFLICT (wallet_id, protocol_name, chain_id, position_type, token_names) DO UPDATE SET
			amount = EXCLUDED.amount,
			price_usd = EXCLUDED.price_usd,
			usd_value = EXCLUDED.usd_value,
			logo_url = EXCLUDED.logo_url,
			updated_at = NOW()
	`
	_, err := r.db.Pool().Exec(ctx, query,
		p.WalletID,
		p.ProtocolName,
		p.ChainID,
		p.PositionType,
		p.TokenNames,
		p.Amount.String(),
		p.PriceUSD.String(),
		p.USDValue.String(),
		p.LogoRef,
	)
	if err != nil {
		return apperrors.NewDatabaseError("upsert position", err)
	}
	return nil
}

// ZeroStalePositions zeroes the wallet's positions whose key is not in keep.
// keep holds PositionKey values; chainIDs behaves as in ZeroStaleWalletTokens.
func (r *HoldingsRepository) ZeroStalePositions(ctx context.Context, walletID string, chainIDs []string, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	query := `
		UPDATE positions
		SET amount = 0, usd_value = 0, updated_at = NOW()
		WHERE wallet_id = $1
			AND usd_value <> 0
			AND NOT (concat_ws(E'\x1f', protocol_name, chain_id, position_type, token_names) = ANY($2))
			AND ($3::text[] IS NULL OR chain_id = ANY($3))
	`
	tag, err := r.db.Pool().Exec(ctx, query, walletID, keep, chainIDs)
	if err != nil {
		return 0, apperrors.NewDatabaseError("zero stale positions", err)
	}
	return tag.RowsAffected(), nil
}

// filterClause builds the shared WHERE clause of the holdings reads
func filterClause(f models.HoldingFilter, chainCol, nameCol string, args []interface{}) (string, []interface{}) {
	var conds []string
	if f.ChainID != "" {
		args = append(args, f.ChainID)
		conds = append(conds, fmt.Sprintf("%s = $%d", chainCol, len(args)))
	}
	if f.WalletID != "" {
		args = append(args, f.WalletID)
		conds = append(conds, fmt.Sprintf("w.id::text = $%d", len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		conds = append(conds, fmt.Sprintf("%s ILIKE $%d", nameCol, len(args)))
	}
	if f.VisibleOnly {
		conds = append(conds, "w.visible")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " AND " + strings.Join(conds, " AND "), args
}

// ListHoldings returns every non-zero link matching the filter
func (r *HoldingsRepository) ListHoldings(ctx context.Context, f models.HoldingFilter) ([]HoldingRow, error) {
	where, args := filterClause(f, "t.chain_id", "(t.symbol || ' ' || t.name)", nil)
	query := `
		SELECT w.id::text, w.tag, t.chain_id, t.name, t.symbol, t.decimals, t.logo_url,
			t.price_usd::text, t.price_24h_change::text, t.is_core, wt.amount::text, wt.raw_amount
		FROM wallet_tokens wt
		JOIN tokens t ON t.id = wt.token_id
		JOIN wallets w ON w.id = wt.wallet_id
		WHERE wt.amount > 0` + where + `
		ORDER BY t.chain_id, t.symbol, w.created_at`

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list holdings", err)
	}
	defer rows.Close()

	var out []HoldingRow
	for rows.Next() {
		var h HoldingRow
		var price, change, amount string
		if err := rows.Scan(&h.WalletID, &h.Tag, &h.Token.ChainID, &h.Token.Name, &h.Token.Symbol, &h.Token.Decimals,
			&h.Token.LogoRef, &price, &change, &h.Token.IsCore, &amount, &h.Token.RawAmount); err != nil {
			return nil, apperrors.NewDatabaseError("scan holding", err)
		}
		if h.Token.PriceUSD, err = parseNumeric(price); err != nil {
			return nil, err
		}
		if h.Token.Price24hChange, err = parseNumeric(change); err != nil {
			return nil, err
		}
		if h.Token.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list holdings", err)
	}
	return out, nil
}

// ListPositions returns every non-zero position matching the filter
func (r *HoldingsRepository) ListPositions(ctx context.Context, f models.HoldingFilter) ([]types.PositionRecord, error) {
	where, args := filterClause(f, "p.chain_id", "p.token_names", nil)
	query := `
		SELECT w.id::text, w.tag, p.protocol_name, p.chain_id, p.position_type, p.token_names,
			p.amount::text, p.price_usd::text, p.usd_value::text, p.logo_url
		FROM positions p
		JOIN wallets w ON w.id = p.wallet_id
		WHERE p.usd_value <> 0` + where + `
		ORDER BY p.protocol_name, w.created_at`

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list positions", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

func scanPositions(rows pgx.Rows) ([]types.PositionRecord, error) {
	var out []types.PositionRecord
	for rows.Next() {
		var p types.PositionRecord
		var amount, price, usd string
		if err := rows.Scan(&p.WalletID, &p.WalletTag, &p.ProtocolName, &p.ChainID, &p.PositionType, &p.TokenNames,
			&amount, &price, &usd, &p.LogoRef); err != nil {
			return nil, apperrors.NewDatabaseError("scan position", err)
		}
		var err error
		if p.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		if p.PriceUSD, err = parseNumeric(price); err != nil {
			return nil, err
		}
		if p.USDValue, err = parseNumeric(usd); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list positions", err)
	}
	return out, nil
}
