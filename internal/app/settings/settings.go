// Package settings serves the process-wide commission and exchange-rate
// configuration as explicit snapshots.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/logger"
	"github.com/devkekops/skipay/internal/app/storage"
)

const DefaultTimeout = 2 * time.Second

func Defaults() entity.Settings {
	return entity.Settings{
		CommissionRate:       decimal.NewFromFloat(9.0),
		UsdToUahRate:         decimal.NewFromFloat(41.5),
		DepositWalletAddress: "TB4K5h9QwFGSYR2LLJS9ejmt9EjHWurvi1",
	}
}

// Provider hands out the current settings snapshot. Implementations must not
// fail: a snapshot is always produced, falling back to Defaults.
type Provider interface {
	Current(ctx context.Context) entity.Settings
}

type StoreProvider struct {
	store   storage.SettingsStore
	timeout time.Duration
}

func NewStoreProvider(store storage.SettingsStore, timeout time.Duration) *StoreProvider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &StoreProvider{store: store, timeout: timeout}
}

// Current reads the stored settings with a bounded wait. Missing or
// unreadable settings yield Defaults.
func (p *StoreProvider) Current(ctx context.Context) entity.Settings {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	s, err := p.store.GetSettings(ctx)
	if err != nil {
		if !errors.Is(err, entity.ErrNotFound) {
			logger.Logger.Warn().Err(err).Msg("settings lookup failed, using defaults")
		}
		return Defaults()
	}

	def := Defaults()
	if !s.UsdToUahRate.IsPositive() {
		s.UsdToUahRate = def.UsdToUahRate
	}
	if s.CommissionRate.IsNegative() {
		s.CommissionRate = def.CommissionRate
	}
	if s.DepositWalletAddress == "" {
		s.DepositWalletAddress = def.DepositWalletAddress
	}
	return s
}

func (p *StoreProvider) Update(ctx context.Context, s entity.Settings) error {
	if s.CommissionRate.IsNegative() || !s.UsdToUahRate.IsPositive() {
		return fmt.Errorf("commission must be non-negative and rate positive: %w", entity.ErrInvalidInput)
	}
	if s.DepositWalletAddress == "" {
		s.DepositWalletAddress = Defaults().DepositWalletAddress
	}
	if err := p.store.PutSettings(ctx, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	logger.Logger.Info().
		Str("commission_rate", s.CommissionRate.String()).
		Str("usd_to_uah_rate", s.UsdToUahRate.String()).
		Msg("settings updated")
	return nil
}
