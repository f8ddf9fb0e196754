package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/types"
)

// WalletRepository handles wallet persistence
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

const walletColumns = `id::text, address, chain_family, tag, visible, created_at, updated_at`

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	var family string
	if err := row.Scan(&w.ID, &w.Address, &family, &w.Tag, &w.Visible, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.ChainFamily = types.ChainFamily(family)
	return &w, nil
}

// Create inserts a wallet and assigns its id
func (r *WalletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	if !wallet.ChainFamily.Valid() {
		return apperrors.NewInvalidParameterError("chain_family", fmt.Sprintf("unknown chain family %q", wallet.ChainFamily))
	}
	wallet.Address = strings.TrimSpace(wallet.Address)
	if wallet.Address == "" {
		return apperrors.NewInvalidParameterError("address", "address is required")
	}

	now := time.Now().UTC()
	wallet.ID = uuid.New().String()
	wallet.CreatedAt = now
	wallet.UpdatedAt = now

	query := `
		INSERT INTO wallets (id, address, chain_family, tag, visible, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		wallet.ID,
		wallet.Address,
		string(wallet.ChainFamily),
		wallet.Tag,
		wallet.Visible,
		wallet.CreatedAt,
		wallet.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewInvalidParameterError("address", "wallet already exists")
		}
		return apperrors.NewDatabaseError("create wallet", err)
	}
	return nil
}

// Get returns a wallet by id
func (r *WalletRepository) Get(ctx context.Context, id string) (*models.Wallet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewNotFoundError("wallet", id)
	}
	w, err := scanWallet(r.db.Pool().QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("wallet", id)
		}
		return nil, apperrors.NewDatabaseError("get wallet", err)
	}
	return w, nil
}

// List returns all wallets, optionally restricted to one family
func (r *WalletRepository) List(ctx context.Context, family types.ChainFamily) ([]*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE ($1 = '' OR chain_family = $1) ORDER BY created_at, id`
	rows, err := r.db.Pool().Query(ctx, query, string(family))
	if err != nil {
		return nil, apperrors.NewDatabaseError("list wallets", err)
	}
	defer rows.Close()

	var out []*models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan wallet", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list wallets", err)
	}
	return out, nil
}

// Update applies the mutable fields of upd
func (r *WalletRepository) Update(ctx context.Context, id string, upd models.WalletUpdate) (*models.Wallet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewNotFoundError("wallet", id)
	}
	query := `
		UPDATE wallets
		SET tag = COALESCE($2, tag),
			visible = COALESCE($3, visible),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + walletColumns
	w, err := scanWallet(r.db.Pool().QueryRow(ctx, query, id, upd.Tag, upd.Visible))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("wallet", id)
		}
		return nil, apperrors.NewDatabaseError("update wallet", err)
	}
	return w, nil
}

// Delete removes a wallet; its links and positions cascade
func (r *WalletRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewNotFoundError("wallet", id)
	}
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM wallets WHERE id = $1`, id)
	if err != nil {
		return apperrors.NewDatabaseError("delete wallet", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("wallet", id)
	}
	return nil
}
