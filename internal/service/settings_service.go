package service

import (
	"context"

	"github.com/shopspring/decimal"

	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/logging"
)

// SettingHideSmallBalances is the small-balance threshold in USD
const SettingHideSmallBalances = "hidesmallbalances"

// SettingsService reads and writes settings with default fallback
type SettingsService struct {
	store            SettingsStore
	defaultThreshold decimal.Decimal
}

// NewSettingsService creates a new settings service
func NewSettingsService(store SettingsStore, defaultThreshold decimal.Decimal) *SettingsService {
	return &SettingsService{store: store, defaultThreshold: defaultThreshold}
}

// SmallBalanceThreshold returns the stored threshold, or the default when
// it is absent or unreadable
func (s *SettingsService) SmallBalanceThreshold(ctx context.Context) (decimal.Decimal, error) {
	raw, ok, err := s.store.Get(ctx, SettingHideSmallBalances)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return s.defaultThreshold, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		logging.FromContext(ctx).WithField("value", raw).Warn("Stored small balance threshold is not a number, using default")
		return s.defaultThreshold, nil
	}
	return v, nil
}

// SetSmallBalanceThreshold stores a non-negative threshold
func (s *SettingsService) SetSmallBalanceThreshold(ctx context.Context, v decimal.Decimal) error {
	if v.IsNegative() {
		return apperrors.NewInvalidParameterError("value", "threshold must not be negative")
	}
	return s.store.Set(ctx, SettingHideSmallBalances, v.String())
}
