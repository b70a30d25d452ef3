package stats

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/capacity"
	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/ledger"
	"github.com/devkekops/skipay/internal/app/settings"
	"github.com/devkekops/skipay/internal/app/storage"
)

type TraderStats struct {
	Balance               decimal.Decimal `json:"balance"`
	CompletedTransactions int             `json:"completed_transactions"`
	PendingTransactions   int             `json:"pending_transactions"`
	CardsCount            int             `json:"cards_count"`
	TodayUahReceived      decimal.Decimal `json:"today_uah_received"`
	TodayProfit           decimal.Decimal `json:"today_profit"`
	TotalProfit           decimal.Decimal `json:"total_profit"`
}

type AdminStats struct {
	TotalTraders          int `json:"total_traders"`
	TotalUsers            int `json:"total_users"`
	TotalTransactions     int `json:"total_transactions"`
	CompletedTransactions int `json:"completed_transactions"`
}

type UserStats struct {
	CompletedTransactions int `json:"completed_transactions"`
	PendingTransactions   int `json:"pending_transactions"`
}

type Store interface {
	storage.Users
	storage.Traders
	storage.Cards
	storage.Transactions
}

type Service struct {
	store    Store
	settings settings.Provider
	now      func() time.Time
}

func New(store Store, provider settings.Provider) *Service {
	return &Service{store: store, settings: provider, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Profit is what the trader keeps: the UAH received minus the UAH value of
// the USDT they paid out including markup.
func Profit(t entity.Transaction, rate decimal.Decimal) decimal.Decimal {
	return t.Amount.Sub(ledger.Deduction(t.UsdtRequested).Mul(rate))
}

func (s *Service) Trader(ctx context.Context, trader entity.Trader) (TraderStats, error) {
	txs, err := s.store.ListTransactions(ctx, storage.TxFilter{TraderID: trader.ID})
	if err != nil {
		return TraderStats{}, err
	}
	cards, err := s.store.ListCardsByTrader(ctx, trader.ID)
	if err != nil {
		return TraderStats{}, err
	}

	rate := s.settings.Current(ctx).UsdToUahRate
	now := s.now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	out := TraderStats{
		Balance:          trader.UsdtBalance,
		CardsCount:       len(capacity.Live(cards)),
		TodayUahReceived: decimal.Zero,
		TodayProfit:      decimal.Zero,
		TotalProfit:      decimal.Zero,
	}
	for _, t := range txs {
		switch t.Status {
		case entity.TxUserConfirmed:
			out.PendingTransactions++
		case entity.TxCompleted:
			out.CompletedTransactions++
			profit := Profit(t, rate)
			out.TotalProfit = out.TotalProfit.Add(profit)
			if t.CompletedAt != nil && !t.CompletedAt.Before(todayStart) {
				out.TodayUahReceived = out.TodayUahReceived.Add(t.Amount)
				out.TodayProfit = out.TodayProfit.Add(profit)
			}
		}
	}
	out.TodayUahReceived = entity.RoundMoney(out.TodayUahReceived)
	out.TodayProfit = entity.RoundMoney(out.TodayProfit)
	out.TotalProfit = entity.RoundMoney(out.TotalProfit)
	return out, nil
}

func (s *Service) Admin(ctx context.Context) (AdminStats, error) {
	traders, err := s.store.ListTraders(ctx)
	if err != nil {
		return AdminStats{}, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return AdminStats{}, err
	}
	txs, err := s.store.ListTransactions(ctx, storage.TxFilter{})
	if err != nil {
		return AdminStats{}, err
	}

	out := AdminStats{TotalTraders: len(traders), TotalTransactions: len(txs)}
	for _, u := range users {
		if u.Role == entity.RoleUser {
			out.TotalUsers++
		}
	}
	for _, t := range txs {
		if t.Status == entity.TxCompleted {
			out.CompletedTransactions++
		}
	}
	return out, nil
}

func (s *Service) User(ctx context.Context, userID string) (UserStats, error) {
	txs, err := s.store.ListTransactions(ctx, storage.TxFilter{UserID: userID})
	if err != nil {
		return UserStats{}, err
	}
	var out UserStats
	for _, t := range txs {
		switch t.Status {
		case entity.TxCompleted:
			out.CompletedTransactions++
		case entity.TxPending, entity.TxUserConfirmed:
			out.PendingTransactions++
		}
	}
	return out, nil
}
