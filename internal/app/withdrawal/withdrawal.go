package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/logger"
	"github.com/devkekops/skipay/internal/app/storage"
)

type Store interface {
	storage.Transactions
	storage.Withdrawals
}

type Service struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Available is completed USDT minus withdrawals that are pending or approved.
func (s *Service) Available(ctx context.Context, userID string) (decimal.Decimal, error) {
	completed, err := s.store.ListTransactions(ctx, storage.TxFilter{
		UserID:   userID,
		Statuses: []entity.TransactionStatus{entity.TxCompleted},
	})
	if err != nil {
		return decimal.Zero, err
	}
	withdrawals, err := s.store.ListWithdrawals(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return available(completed, withdrawals), nil
}

func available(completed []entity.Transaction, withdrawals []entity.Withdrawal) decimal.Decimal {
	total := decimal.Zero
	for _, t := range completed {
		total = total.Add(t.UsdtAmount)
	}
	for _, w := range withdrawals {
		if w.Status == entity.WithdrawalPending || w.Status == entity.WithdrawalApproved {
			total = total.Sub(w.Amount)
		}
	}
	return total
}

func (s *Service) Request(ctx context.Context, userID string, amount decimal.Decimal, wallet string) (entity.Withdrawal, error) {
	if !amount.IsPositive() {
		return entity.Withdrawal{}, entity.ErrInvalidAmount
	}
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return entity.Withdrawal{}, fmt.Errorf("wallet address is required: %w", entity.ErrInvalidInput)
	}

	w := entity.Withdrawal{
		UserID:        userID,
		Amount:        amount,
		WalletAddress: wallet,
		Status:        entity.WithdrawalPending,
		CreatedAt:     entity.NewTimestamp(s.now()),
	}
	err := s.store.CreateWithdrawalIf(ctx, &w, func(completed []entity.Transaction, existing []entity.Withdrawal) error {
		if left := available(completed, existing); amount.GreaterThan(left) {
			return fmt.Errorf("available: %s USDT: %w",
				left.StringFixed(entity.MoneyPlaces), entity.ErrInsufficientBalance)
		}
		return nil
	})
	if errors.Is(err, entity.ErrInsufficientBalance) {
		return entity.Withdrawal{}, err
	}
	if err != nil {
		return entity.Withdrawal{}, fmt.Errorf("create withdrawal: %w", err)
	}
	logger.Logger.Info().Str("withdrawal_id", w.ID).Str("user_id", userID).Str("amount", amount.String()).Msg("withdrawal requested")
	return w, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]entity.Withdrawal, error) {
	return s.store.ListWithdrawals(ctx, userID)
}

func (s *Service) Approve(ctx context.Context, id string) (entity.Withdrawal, error) {
	return s.decide(ctx, id, entity.WithdrawalApproved)
}

func (s *Service) Reject(ctx context.Context, id string) (entity.Withdrawal, error) {
	return s.decide(ctx, id, entity.WithdrawalRejected)
}

func (s *Service) decide(ctx context.Context, id string, to entity.WithdrawalStatus) (entity.Withdrawal, error) {
	now := s.now()
	w, err := s.store.UpdateWithdrawal(ctx, id, func(w *entity.Withdrawal) error {
		if w.Status != entity.WithdrawalPending {
			return fmt.Errorf("withdrawal %s already %s: %w", id, w.Status, entity.ErrInvalidState)
		}
		w.Status = to
		w.ProcessedAt = entity.TimestampPtr(now)
		return nil
	})
	if err != nil {
		return w, err
	}
	logger.Logger.Info().Str("withdrawal_id", id).Str("status", string(to)).Msg("withdrawal processed")
	return w, nil
}
