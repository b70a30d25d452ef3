// Package matching routes a card request to the first eligible trader card.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// TransactionTTL is how long a trader has to finish a transaction.
const TransactionTTL = 30 * time.Minute

type Store interface {
	storage.Cards
	storage.Traders
	storage.Transactions
}

type Request struct {
	UserID   string
	Amount   decimal.Decimal
	Currency string
}

type Allocation struct {
	Transaction entity.Transaction
	Card        entity.Card
	Quote       Quote
}

type Engine struct {
	store    Store
	capacity *capacity.Tracker
	settings settings.Provider
	now      func() time.Time
}

func New(store Store, tracker *capacity.Tracker, provider settings.Provider) *Engine {
	return &Engine{
		store:    store,
		capacity: tracker,
		settings: provider,
		now:      time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// RequestCard scans active cards in creation order and takes the first one
// whose trader can cover the request and whose remaining limit covers the
// amount to pay. Capacity is reserved before the transaction is written and
// given back if the write fails.
func (e *Engine) RequestCard(ctx context.Context, req Request) (Allocation, error) {
	if !req.Amount.IsPositive() {
		metrics.Allocations.WithLabelValues("invalid_amount").Inc()
		return Allocation{}, entity.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = capacity.DefaultCurrency
	}

	quote := NewQuote(req.Amount, e.settings.Current(ctx))
	usdtRequested := quote.UsdtRequested()
	usdtNeeded := ledger.Deduction(usdtRequested)

	cards, err := e.store.ListActiveCards(ctx, currency)
	if err != nil {
		return Allocation{}, fmt.Errorf("list cards: %w", err)
	}
	if len(cards) == 0 {
		metrics.Allocations.WithLabelValues("no_cards").Inc()
		return Allocation{}, entity.ErrNoCardsAvailable
	}

	traders := make(map[string]*entity.Trader)
	for _, card := range cards {
		trader, ok := traders[card.TraderID]
		if !ok {
			t, err := e.store.GetTrader(ctx, card.TraderID)
			if err != nil && !errors.Is(err, entity.ErrNotFound) {
				return Allocation{}, fmt.Errorf("load trader %s: %w", card.TraderID, err)
			}
			if err == nil {
				trader = &t
			}
			traders[card.TraderID] = trader
		}
		if trader == nil || !ledger.Eligible(*trader, usdtNeeded) {
			continue
		}
		if capacity.Remaining(card).LessThan(quote.AmountToPay) {
			continue
		}

		reserved, err := e.capacity.Reserve(ctx, card.ID, quote.AmountToPay)
		if errors.Is(err, entity.ErrCapacityExceeded) {
			// another request got there first
			continue
		}
		if err != nil {
			return Allocation{}, fmt.Errorf("reserve card %s: %w", card.ID, err)
		}

		tx, err := e.createTransaction(ctx, req.UserID, currency, reserved, quote, usdtRequested)
		if err != nil {
			e.unreserve(ctx, reserved.ID, quote.AmountToPay)
			return Allocation{}, err
		}

		metrics.Allocations.WithLabelValues("allocated").Inc()
		logger.Logger.Info().
			Str("transaction_id", tx.ID).
			Str("user_id", req.UserID).
			Str("trader_id", tx.TraderID).
			Str("card_id", tx.CardID).
			Str("amount_to_pay", quote.AmountToPay.String()).
			Str("usdt_requested", usdtRequested.String()).
			Msg("card allocated")
		return Allocation{Transaction: tx, Card: reserved, Quote: quote}, nil
	}

	metrics.Allocations.WithLabelValues("no_eligible_trader").Inc()
	return Allocation{}, entity.ErrNoEligibleTrader
}

// unreserve hands back capacity whose transaction was never written. It runs
// detached from ctx, which may be the reason the write failed.
func (e *Engine) unreserve(ctx context.Context, cardID string, amount decimal.Decimal) {
	ctx, cancel := storage.Detached(ctx)
	defer cancel()
	if err := e.capacity.Release(ctx, cardID, amount); err != nil {
		logger.Logger.Error().Err(err).Str("card_id", cardID).Msg("compensating release failed")
	}
}

func (e *Engine) createTransaction(ctx context.Context, userID, currency string, card entity.Card, q Quote, usdtRequested decimal.Decimal) (entity.Transaction, error) {
	now := e.now()
	tx := entity.Transaction{
		UserID:        userID,
		TraderID:      card.TraderID,
		CardID:        card.ID,
		Amount:        q.Amount,
		AmountToPay:   q.AmountToPay,
		UsdtRequested: usdtRequested,
		UsdtAmount:    decimal.Zero,
		Currency:      currency,
		Status:        entity.TxPending,
		CreatedAt:     entity.NewTimestamp(now),
		ExpiresAt:     entity.NewTimestamp(now.Add(TransactionTTL)),
	}
	if err := e.store.CreateTransaction(ctx, &tx); err != nil {
		return entity.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return tx, nil
}
