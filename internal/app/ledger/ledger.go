// Package ledger owns trader USDT balances and the work-mode flag that
// depends on them. No other package writes those fields.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/logger"
	"github.com/devkekops/skipay/internal/app/metrics"
	"github.com/devkekops/skipay/internal/app/storage"
)

var (
	// MinWorkingBalance is the USDT balance a trader needs to be in work mode.
	MinWorkingBalance = decimal.NewFromInt(50)
	// TraderMarkup is charged to the trader's balance on top of what the user receives.
	TraderMarkup = decimal.NewFromFloat(0.04)
)

const (
	ReasonLowBalance   = "low_balance"
	ReasonUnresponsive = "unresponsive"
	ReasonManual       = "manual"
)

// Deduction is what settling usdtRequested costs the trader.
func Deduction(usdtRequested decimal.Decimal) decimal.Decimal {
	return usdtRequested.Mul(decimal.NewFromInt(1).Add(TraderMarkup))
}

// Eligible reports whether t may take a request that will cost usdtNeeded.
func Eligible(t entity.Trader, usdtNeeded decimal.Decimal) bool {
	return !t.IsBlocked && t.IsWorking && t.UsdtBalance.GreaterThanOrEqual(decimal.Max(MinWorkingBalance, usdtNeeded))
}

type SettleOutcome struct {
	Deducted     decimal.Decimal
	Balance      decimal.Decimal
	AutoDisabled bool
}

type Ledger struct {
	traders storage.Traders
}

func New(traders storage.Traders) *Ledger {
	return &Ledger{traders: traders}
}

func (l *Ledger) EnableWork(ctx context.Context, traderID string) (entity.Trader, error) {
	return l.traders.UpdateTrader(ctx, traderID, enable)
}

func (l *Ledger) DisableWork(ctx context.Context, traderID, reason string) (entity.Trader, error) {
	var wasWorking bool
	t, err := l.traders.UpdateTrader(ctx, traderID, func(t *entity.Trader) error {
		wasWorking = t.IsWorking
		t.IsWorking = false
		return nil
	})
	if err != nil {
		return t, err
	}
	if wasWorking && reason != ReasonManual {
		metrics.TradersDisabled.WithLabelValues(reason).Inc()
		logger.Logger.Warn().Str("trader_id", traderID).Str("reason", reason).Msg("trader disabled")
	}
	return t, nil
}

// ToggleWork flips work mode in one update, so the balance gate is checked
// against the same record that gets written.
func (l *Ledger) ToggleWork(ctx context.Context, traderID string) (entity.Trader, error) {
	return l.traders.UpdateTrader(ctx, traderID, func(t *entity.Trader) error {
		if t.IsWorking {
			t.IsWorking = false
			return nil
		}
		return enable(t)
	})
}

func enable(t *entity.Trader) error {
	if t.UsdtBalance.LessThan(MinWorkingBalance) {
		return fmt.Errorf("minimum balance required: %s USDT, current balance: %s USDT: %w",
			MinWorkingBalance.StringFixed(entity.MoneyPlaces), t.UsdtBalance.StringFixed(entity.MoneyPlaces),
			entity.ErrInsufficientBalance)
	}
	t.IsWorking = true
	return nil
}

// Settle debits usdtRequested plus the markup. A balance left under the
// working minimum switches work mode off in the same update.
func (l *Ledger) Settle(ctx context.Context, traderID string, usdtRequested decimal.Decimal) (SettleOutcome, error) {
	deduction := Deduction(usdtRequested)
	var out SettleOutcome

	t, err := l.traders.UpdateTrader(ctx, traderID, func(t *entity.Trader) error {
		if t.UsdtBalance.LessThan(deduction) {
			return fmt.Errorf("need %s USDT, have %s: %w", deduction, t.UsdtBalance, entity.ErrInsufficientBalance)
		}
		t.UsdtBalance = t.UsdtBalance.Sub(deduction)
		if t.UsdtBalance.LessThan(MinWorkingBalance) {
			t.IsWorking = false
			out.AutoDisabled = true
		}
		return nil
	})
	if err != nil {
		return out, err
	}

	out.Deducted = deduction
	out.Balance = t.UsdtBalance
	if out.AutoDisabled {
		metrics.TradersDisabled.WithLabelValues(ReasonLowBalance).Inc()
		logger.Logger.Warn().Str("trader_id", traderID).Str("balance", t.UsdtBalance.String()).
			Msg("trader balance under working minimum, work mode disabled")
	}
	return out, nil
}

// Credit is an administrative top-up. It never touches work mode.
func (l *Ledger) Credit(ctx context.Context, traderID string, amount decimal.Decimal) (entity.Trader, error) {
	if !amount.IsPositive() {
		return entity.Trader{}, entity.ErrInvalidAmount
	}
	t, err := l.traders.UpdateTrader(ctx, traderID, func(t *entity.Trader) error {
		t.UsdtBalance = t.UsdtBalance.Add(amount)
		return nil
	})
	if err != nil {
		return t, err
	}
	logger.Logger.Info().Str("trader_id", traderID).Str("amount", amount.String()).
		Str("balance", t.UsdtBalance.String()).Msg("trader balance credited")
	return t, nil
}

func (l *Ledger) ToggleBlocked(ctx context.Context, traderID string) (entity.Trader, error) {
	return l.traders.UpdateTrader(ctx, traderID, func(t *entity.Trader) error {
		t.IsBlocked = !t.IsBlocked
		return nil
	})
}
