package service

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"

	"github.com/wallet-aggregator/internal/derive"
	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/types"
)

// CreateWalletInput represents input for registering a wallet
type CreateWalletInput struct {
	Address     string            `json:"address"`
	ChainFamily types.ChainFamily `json:"chain_family"`
	Tag         string            `json:"tag"`
	Visible     *bool             `json:"visible,omitempty"`
}

// WalletService manages registered wallets
type WalletService struct {
	store       WalletStore
	invalidator Invalidator
}

// NewWalletService creates a new wallet service
func NewWalletService(store WalletStore) *WalletService {
	return &WalletService{store: store}
}

// Create validates and stores a wallet. EVM addresses are stored checksummed;
// Cosmos addresses must decode as bech32 and Solana addresses as base58 keys.
func (s *WalletService) Create(ctx context.Context, in CreateWalletInput) (*models.Wallet, error) {
	addr := strings.TrimSpace(in.Address)
	family := types.ChainFamily(strings.ToLower(string(in.ChainFamily)))

	switch family {
	case types.FamilyEVM:
		if !common.IsHexAddress(addr) {
			return nil, apperrors.NewInvalidAddressFormatError(addr, nil)
		}
		addr = common.HexToAddress(addr).Hex()
	case types.FamilyCosmos:
		if _, _, err := derive.Payload(addr); err != nil {
			return nil, err
		}
	case types.FamilySolana:
		if _, err := solana.PublicKeyFromBase58(addr); err != nil {
			return nil, apperrors.NewInvalidAddressFormatError(addr, err)
		}
	}

	w := &models.Wallet{
		Address:     addr,
		ChainFamily: family,
		Tag:         strings.TrimSpace(in.Tag),
		Visible:     in.Visible == nil || *in.Visible,
	}
	if err := s.store.Create(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// List returns all wallets
func (s *WalletService) List(ctx context.Context) ([]*models.Wallet, error) {
	return s.store.List(ctx, "")
}

// SetInvalidator registers the read views to drop when a wallet changes
func (s *WalletService) SetInvalidator(i Invalidator) {
	s.invalidator = i
}

func (s *WalletService) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

// Update changes the tag or visibility of a wallet. The address cannot change.
func (s *WalletService) Update(ctx context.Context, id string, upd models.WalletUpdate) (*models.Wallet, error) {
	if upd.Tag != nil {
		tag := strings.TrimSpace(*upd.Tag)
		upd.Tag = &tag
	}
	w, err := s.store.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return w, nil
}

// Delete removes a wallet with its holdings
func (s *WalletService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}
