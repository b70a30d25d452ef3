package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/capacity"
	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/settings"
	"github.com/devkekops/skipay/internal/app/storage"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   storage.Repository
	tracker *capacity.Tracker
	engine  *Engine
}

func newFixture() *fixture {
	return newFixtureOn(storage.NewMemStore())
}

func newFixtureOn(store storage.Repository) *fixture {
	tracker := capacity.New(store)
	engine := New(store, tracker, settings.NewStoreProvider(store, 0)).
		WithClock(func() time.Time { return now })
	return &fixture{store: store, tracker: tracker, engine: engine}
}

func (f *fixture) trader(t *testing.T, userID, balance string, working bool) entity.Trader {
	t.Helper()
	tr := entity.Trader{
		UserID:      userID,
		Name:        userID,
		UsdtAddress: "T-" + userID,
		UsdtBalance: decimal.RequireFromString(balance),
		IsWorking:   working,
	}
	if err := f.store.CreateTrader(context.Background(), &tr); err != nil {
		t.Fatalf("CreateTrader failed: %v", err)
	}
	return tr
}

func (f *fixture) card(t *testing.T, traderID, number, limit string) entity.Card {
	t.Helper()
	c, err := f.tracker.AddCard(context.Background(), traderID, capacity.NewCard{
		CardNumber: number,
		BankName:   "Mono",
		HolderName: "Holder",
		Limit:      decimal.RequireFromString(limit),
	})
	if err != nil {
		t.Fatalf("AddCard failed: %v", err)
	}
	return c
}

func request(amount string) Request {
	return Request{UserID: "buyer", Amount: decimal.RequireFromString(amount), Currency: "UAH"}
}

func TestNewQuote(t *testing.T) {
	tests := []struct {
		amount     string
		toPay      string
		usdt       string
		requested  string
		commission string
	}{
		{"100", "109", "2.40963855", "2.41", "9"},
		{"4150", "4523.5", "100", "100", "373.5"},
		{"0.01", "0.01", "0.00024096", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			q := NewQuote(decimal.RequireFromString(tt.amount), settings.Defaults())
			if !q.AmountToPay.Equal(decimal.RequireFromString(tt.toPay)) {
				t.Errorf("AmountToPay = %s, want %s", q.AmountToPay, tt.toPay)
			}
			if !q.UsdtToReceive.Equal(decimal.RequireFromString(tt.usdt)) {
				t.Errorf("UsdtToReceive = %s, want %s", q.UsdtToReceive, tt.usdt)
			}
			if !q.UsdtRequested().Equal(decimal.RequireFromString(tt.requested)) {
				t.Errorf("UsdtRequested = %s, want %s", q.UsdtRequested(), tt.requested)
			}
			if !q.CommissionAmount.Equal(decimal.RequireFromString(tt.commission)) {
				t.Errorf("CommissionAmount = %s, want %s", q.CommissionAmount, tt.commission)
			}
		})
	}
}

func TestRequestCard(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		f := newFixture()
		for _, amount := range []string{"0", "-5"} {
			if _, err := f.engine.RequestCard(ctx, request(amount)); !errors.Is(err, entity.ErrInvalidAmount) {
				t.Errorf("amount %s: err = %v, want ErrInvalidAmount", amount, err)
			}
		}
	})

	t.Run("no cards", func(t *testing.T) {
		f := newFixture()
		if _, err := f.engine.RequestCard(ctx, request("100")); !errors.Is(err, entity.ErrNoCardsAvailable) {
			t.Errorf("err = %v, want ErrNoCardsAvailable", err)
		}
	})

	t.Run("paused cards and other currencies are not available", func(t *testing.T) {
		f := newFixture()
		tr := f.trader(t, "t1", "500", true)
		c := f.card(t, tr.ID, "1111", "1000")
		paused := entity.CardPaused
		if _, err := f.tracker.Update(ctx, tr.ID, c.ID, capacity.CardUpdate{Status: &paused}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if _, err := f.engine.RequestCard(ctx, request("100")); !errors.Is(err, entity.ErrNoCardsAvailable) {
			t.Errorf("paused: err = %v, want ErrNoCardsAvailable", err)
		}

		f.card(t, tr.ID, "2222", "1000")
		req := request("100")
		req.Currency = "EUR"
		if _, err := f.engine.RequestCard(ctx, req); !errors.Is(err, entity.ErrNoCardsAvailable) {
			t.Errorf("EUR: err = %v, want ErrNoCardsAvailable", err)
		}
	})

	t.Run("no eligible trader", func(t *testing.T) {
		f := newFixture()
		idle := f.trader(t, "idle", "500", false)
		f.card(t, idle.ID, "1111", "1000")
		poor := f.trader(t, "poor", "49", true)
		f.card(t, poor.ID, "2222", "1000")

		if _, err := f.engine.RequestCard(ctx, request("100")); !errors.Is(err, entity.ErrNoEligibleTrader) {
			t.Errorf("err = %v, want ErrNoEligibleTrader", err)
		}
	})

	t.Run("trader must cover the marked up amount", func(t *testing.T) {
		f := newFixture()
		tr := f.trader(t, "t1", "100", true)
		f.card(t, tr.ID, "1111", "10000")

		// 4150 UAH is 100 USDT, which costs the trader 104.
		if _, err := f.engine.RequestCard(ctx, request("4150")); !errors.Is(err, entity.ErrNoEligibleTrader) {
			t.Errorf("err = %v, want ErrNoEligibleTrader", err)
		}
	})

	t.Run("capacity is checked against the amount to pay", func(t *testing.T) {
		f := newFixture()
		tr := f.trader(t, "t1", "500", true)
		c := f.card(t, tr.ID, "1111", "1000")
		if _, err := f.tracker.Reserve(ctx, c.ID, decimal.NewFromInt(950)); err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}

		// 50 UAH costs 54.50 with commission.
		if _, err := f.engine.RequestCard(ctx, request("50")); !errors.Is(err, entity.ErrNoEligibleTrader) {
			t.Errorf("err = %v, want ErrNoEligibleTrader", err)
		}
		a, err := f.engine.RequestCard(ctx, request("45"))
		if err != nil {
			t.Fatalf("RequestCard(45) failed: %v", err)
		}
		if !a.Card.CurrentUsage.Equal(decimal.RequireFromString("999.05")) {
			t.Errorf("usage = %s, want 999.05", a.Card.CurrentUsage)
		}
	})

	t.Run("first fit in card creation order", func(t *testing.T) {
		f := newFixture()
		small := f.trader(t, "small", "500", true)
		f.card(t, small.ID, "1111", "100")
		first := f.trader(t, "first", "500", true)
		want := f.card(t, first.ID, "2222", "1000")
		second := f.trader(t, "second", "500", true)
		f.card(t, second.ID, "3333", "1000")

		for i := 0; i < 3; i++ {
			a, err := f.engine.RequestCard(ctx, request("100"))
			if err != nil {
				t.Fatalf("RequestCard failed: %v", err)
			}
			if a.Card.ID != want.ID || a.Transaction.TraderID != first.ID {
				t.Fatalf("request %d went to card %s, want %s", i, a.Card.CardNumber, want.CardNumber)
			}
		}
	})

	t.Run("creates a pending transaction and reserves capacity", func(t *testing.T) {
		f := newFixture()
		tr := f.trader(t, "t1", "500", true)
		c := f.card(t, tr.ID, "1111", "1000")

		a, err := f.engine.RequestCard(ctx, Request{UserID: "buyer", Amount: decimal.NewFromInt(100), Currency: "uah"})
		if err != nil {
			t.Fatalf("RequestCard failed: %v", err)
		}
		tx, err := f.store.GetTransaction(ctx, a.Transaction.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if tx.Status != entity.TxPending || tx.UserID != "buyer" || tx.CardID != c.ID || tx.Currency != "UAH" {
			t.Errorf("transaction = %+v", tx)
		}
		if !tx.UsdtRequested.Equal(decimal.RequireFromString("2.41")) || !tx.UsdtAmount.IsZero() {
			t.Errorf("usdt requested %s amount %s, want 2.41 and 0", tx.UsdtRequested, tx.UsdtAmount)
		}
		if !tx.ExpiresAt.Equal(now.Add(TransactionTTL)) {
			t.Errorf("ExpiresAt = %v, want %v", tx.ExpiresAt, now.Add(TransactionTTL))
		}
		card, _ := f.store.GetCard(ctx, c.ID)
		if !card.CurrentUsage.Equal(decimal.NewFromInt(109)) {
			t.Errorf("usage = %s, want 109", card.CurrentUsage)
		}
		trader, _ := f.store.GetTrader(ctx, tr.ID)
		if !trader.UsdtBalance.Equal(decimal.NewFromInt(500)) {
			t.Errorf("balance moved at allocation: %s", trader.UsdtBalance)
		}
	})

	t.Run("blocked trader is skipped", func(t *testing.T) {
		f := newFixture()
		blocked := f.trader(t, "blocked", "500", true)
		f.card(t, blocked.ID, "1111", "1000")
		if _, err := f.store.UpdateTrader(ctx, blocked.ID, func(t *entity.Trader) error {
			t.IsBlocked = true
			return nil
		}); err != nil {
			t.Fatalf("UpdateTrader failed: %v", err)
		}
		ok := f.trader(t, "ok", "500", true)
		want := f.card(t, ok.ID, "2222", "1000")

		a, err := f.engine.RequestCard(ctx, request("100"))
		if err != nil {
			t.Fatalf("RequestCard failed: %v", err)
		}
		if a.Card.ID != want.ID {
			t.Errorf("allocated card %s, want %s", a.Card.CardNumber, want.CardNumber)
		}
	})
}
