// Package settlement drives a Transaction through its lifecycle:
//
//	pending -> user_confirmed -> completed
//	pending -> cancelled
//	user_confirmed -> expired
//
// completed, cancelled and expired are terminal. Transaction status is only
// written here.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/capacity"
	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/ledger"
	"github.com/devkekops/skipay/internal/app/logger"
	"github.com/devkekops/skipay/internal/app/metrics"
	"github.com/devkekops/skipay/internal/app/settings"
	"github.com/devkekops/skipay/internal/app/storage"
)

type Confirmation struct {
	Transaction  entity.Transaction
	UsdtSent     decimal.Decimal
	UsdtDeducted decimal.Decimal
	UahReceived  decimal.Decimal
	Rate         decimal.Decimal
	Balance      decimal.Decimal
	AutoDisabled bool
}

type Machine struct {
	txs      storage.Transactions
	ledger   *ledger.Ledger
	capacity *capacity.Tracker
	settings settings.Provider
	now      func() time.Time
}

func New(txs storage.Transactions, l *ledger.Ledger, tracker *capacity.Tracker, provider settings.Provider) *Machine {
	return &Machine{
		txs:      txs,
		ledger:   l,
		capacity: tracker,
		settings: provider,
		now:      time.Now,
	}
}

func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

func invalidState(t *entity.Transaction, want entity.TransactionStatus) error {
	return fmt.Errorf("transaction %s is %s, want %s: %w", t.ID, t.Status, want, entity.ErrInvalidState)
}

// UserConfirm records that the user has paid to the card.
func (m *Machine) UserConfirm(ctx context.Context, userID, txID string) (entity.Transaction, error) {
	now := m.now()
	return m.txs.UpdateTransaction(ctx, txID, func(t *entity.Transaction) error {
		if t.UserID != userID {
			return fmt.Errorf("transaction %s: %w", txID, entity.ErrNotFound)
		}
		if t.Status != entity.TxPending {
			return invalidState(t, entity.TxPending)
		}
		t.Status = entity.TxUserConfirmed
		t.UserConfirmedAt = entity.TimestampPtr(now)
		return nil
	})
}

// UserCancel withdraws a request the user has not paid yet.
func (m *Machine) UserCancel(ctx context.Context, userID, txID string) (entity.Transaction, error) {
	t, err := m.txs.UpdateTransaction(ctx, txID, func(t *entity.Transaction) error {
		if t.UserID != userID {
			return fmt.Errorf("transaction %s: %w", txID, entity.ErrNotFound)
		}
		if t.Status != entity.TxPending {
			return invalidState(t, entity.TxPending)
		}
		t.Status = entity.TxCancelled
		return nil
	})
	if err != nil {
		return t, err
	}
	m.release(ctx, t)
	return t, nil
}

// TraderConfirm completes a user-confirmed transaction and settles it
// against the trader's balance. The transaction is claimed first so that two
// concurrent confirmations cannot both debit; a failed debit puts the claim
// back, even when ctx has been cancelled in between.
func (m *Machine) TraderConfirm(ctx context.Context, traderID, txID string) (Confirmation, error) {
	now := m.now()
	claimed, err := m.txs.UpdateTransaction(ctx, txID, func(t *entity.Transaction) error {
		if t.TraderID != traderID {
			return fmt.Errorf("transaction %s: %w", txID, entity.ErrNotFound)
		}
		if t.Status != entity.TxUserConfirmed {
			return invalidState(t, entity.TxUserConfirmed)
		}
		if !t.UsdtRequested.IsPositive() {
			return fmt.Errorf("transaction %s has no USDT amount: %w", txID, entity.ErrInvalidState)
		}
		t.Status = entity.TxCompleted
		t.UsdtAmount = t.UsdtRequested
		t.CompletedAt = entity.TimestampPtr(now)
		return nil
	})
	if err != nil {
		metrics.Settlements.WithLabelValues(outcome(err)).Inc()
		return Confirmation{}, err
	}

	settled, err := m.ledger.Settle(ctx, traderID, claimed.UsdtRequested)
	if err != nil {
		m.unclaim(ctx, claimed)
		metrics.Settlements.WithLabelValues(outcome(err)).Inc()
		return Confirmation{}, err
	}

	metrics.Settlements.WithLabelValues("completed").Inc()
	logger.Logger.Info().
		Str("transaction_id", claimed.ID).
		Str("trader_id", traderID).
		Str("usdt_sent", claimed.UsdtAmount.String()).
		Str("usdt_deducted", settled.Deducted.String()).
		Bool("auto_disabled", settled.AutoDisabled).
		Msg("transaction completed")

	return Confirmation{
		Transaction:  claimed,
		UsdtSent:     claimed.UsdtAmount,
		UsdtDeducted: settled.Deducted,
		UahReceived:  claimed.Amount,
		Rate:         m.settings.Current(ctx).UsdToUahRate,
		Balance:      settled.Balance,
		AutoDisabled: settled.AutoDisabled,
	}, nil
}

func (m *Machine) unclaim(ctx context.Context, claimed entity.Transaction) {
	ctx, cancel := storage.Detached(ctx)
	defer cancel()
	_, err := m.txs.UpdateTransaction(ctx, claimed.ID, func(t *entity.Transaction) error {
		if t.Status != entity.TxCompleted {
			return invalidState(t, entity.TxCompleted)
		}
		t.Status = entity.TxUserConfirmed
		t.UsdtAmount = decimal.Zero
		t.CompletedAt = nil
		return nil
	})
	if err != nil {
		logger.Logger.Error().Err(err).Str("transaction_id", claimed.ID).Msg("failed to revert unsettled transaction")
	}
}

// Expire retires a user-confirmed transaction the trader never completed.
// It reports false when the transaction is not due or was already moved on.
func (m *Machine) Expire(ctx context.Context, txID string, now time.Time) (bool, error) {
	return m.retire(ctx, txID, now, entity.TxUserConfirmed, entity.TxExpired)
}

// CancelStale retires a pending transaction the user never paid.
func (m *Machine) CancelStale(ctx context.Context, txID string, now time.Time) (bool, error) {
	return m.retire(ctx, txID, now, entity.TxPending, entity.TxCancelled)
}

var errNotDue = errors.New("not due")

func (m *Machine) retire(ctx context.Context, txID string, now time.Time, from, to entity.TransactionStatus) (bool, error) {
	t, err := m.txs.UpdateTransaction(ctx, txID, func(t *entity.Transaction) error {
		if t.Status != from {
			return invalidState(t, from)
		}
		if !now.After(t.ExpiresAt.Time) {
			return errNotDue
		}
		t.Status = to
		return nil
	})
	if errors.Is(err, errNotDue) || errors.Is(err, entity.ErrInvalidState) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	metrics.Swept.WithLabelValues(string(to)).Inc()
	m.release(ctx, t)
	return true, nil
}

// release gives the card capacity of a retired transaction back. The status
// change is already stored, so it runs detached from ctx.
func (m *Machine) release(ctx context.Context, t entity.Transaction) {
	ctx, cancel := storage.Detached(ctx)
	defer cancel()
	if err := m.capacity.Release(ctx, t.CardID, t.AmountToPay); err != nil {
		logger.Logger.Error().Err(err).Str("transaction_id", t.ID).Msg("capacity not released")
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, entity.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, entity.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, entity.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
