package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/storage"
)

func newTrader(t *testing.T, store *storage.MemStore, balance string, working bool) entity.Trader {
	t.Helper()
	tr := entity.Trader{
		UserID:      "user-" + balance,
		Name:        "Trader",
		UsdtAddress: "T-addr",
		UsdtBalance: decimal.RequireFromString(balance),
		IsWorking:   working,
	}
	if err := store.CreateTrader(context.Background(), &tr); err != nil {
		t.Fatalf("CreateTrader failed: %v", err)
	}
	return tr
}

func TestDeduction(t *testing.T) {
	got := Deduction(decimal.NewFromInt(100))
	if !got.Equal(decimal.NewFromInt(104)) {
		t.Errorf("Deduction(100) = %s, want 104", got)
	}
}

func TestEligible(t *testing.T) {
	need := decimal.RequireFromString("104")
	tests := []struct {
		name   string
		trader entity.Trader
		want   bool
	}{
		{"working with enough", entity.Trader{UsdtBalance: decimal.NewFromInt(200), IsWorking: true}, true},
		{"exactly the need", entity.Trader{UsdtBalance: need, IsWorking: true}, true},
		{"not working", entity.Trader{UsdtBalance: decimal.NewFromInt(200)}, false},
		{"blocked", entity.Trader{UsdtBalance: decimal.NewFromInt(200), IsWorking: true, IsBlocked: true}, false},
		{"short of the need", entity.Trader{UsdtBalance: decimal.NewFromInt(100), IsWorking: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eligible(tt.trader, need); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("minimum balance applies to small requests", func(t *testing.T) {
		tr := entity.Trader{UsdtBalance: decimal.NewFromInt(49), IsWorking: true}
		if Eligible(tr, decimal.NewFromInt(1)) {
			t.Error("trader under the working minimum should not be eligible")
		}
	})
}

func TestSettle(t *testing.T) {
	ctx := context.Background()

	t.Run("debits with markup and disables under the minimum", func(t *testing.T) {
		store := storage.NewMemStore()
		tr := newTrader(t, store, "120", true)

		out, err := New(store).Settle(ctx, tr.ID, decimal.NewFromInt(100))
		if err != nil {
			t.Fatalf("Settle failed: %v", err)
		}
		if !out.Deducted.Equal(decimal.NewFromInt(104)) {
			t.Errorf("Deducted = %s, want 104", out.Deducted)
		}
		if !out.Balance.Equal(decimal.NewFromInt(16)) {
			t.Errorf("Balance = %s, want 16", out.Balance)
		}
		if !out.AutoDisabled {
			t.Error("expected AutoDisabled")
		}

		got, _ := store.GetTrader(ctx, tr.ID)
		if got.IsWorking {
			t.Error("trader still working after falling under the minimum")
		}
	})

	t.Run("keeps working above the minimum", func(t *testing.T) {
		store := storage.NewMemStore()
		tr := newTrader(t, store, "500", true)

		out, err := New(store).Settle(ctx, tr.ID, decimal.NewFromInt(100))
		if err != nil {
			t.Fatalf("Settle failed: %v", err)
		}
		if out.AutoDisabled {
			t.Error("unexpected AutoDisabled")
		}
		got, _ := store.GetTrader(ctx, tr.ID)
		if !got.IsWorking || !got.UsdtBalance.Equal(decimal.NewFromInt(396)) {
			t.Errorf("trader = working %v balance %s, want working 396", got.IsWorking, got.UsdtBalance)
		}
	})

	t.Run("rejects a debit larger than the balance", func(t *testing.T) {
		store := storage.NewMemStore()
		tr := newTrader(t, store, "100", true)

		_, err := New(store).Settle(ctx, tr.ID, decimal.NewFromInt(100))
		if !errors.Is(err, entity.ErrInsufficientBalance) {
			t.Fatalf("err = %v, want ErrInsufficientBalance", err)
		}
		got, _ := store.GetTrader(ctx, tr.ID)
		if !got.UsdtBalance.Equal(decimal.NewFromInt(100)) || !got.IsWorking {
			t.Errorf("trader changed on a rejected debit: %+v", got)
		}
	})
}

func TestEnableWork(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	l := New(store)

	short := newTrader(t, store, "49.99", false)
	if _, err := l.EnableWork(ctx, short.ID); !errors.Is(err, entity.ErrInsufficientBalance) {
		t.Errorf("EnableWork at 49.99: err = %v, want ErrInsufficientBalance", err)
	}

	enough := newTrader(t, store, "50", false)
	got, err := l.EnableWork(ctx, enough.ID)
	if err != nil {
		t.Fatalf("EnableWork at 50 failed: %v", err)
	}
	if !got.IsWorking {
		t.Error("trader not working after EnableWork")
	}
}

func TestToggleWork(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	l := New(store)
	tr := newTrader(t, store, "60", false)

	got, err := l.ToggleWork(ctx, tr.ID)
	if err != nil || !got.IsWorking {
		t.Fatalf("first toggle: working %v, err %v", got.IsWorking, err)
	}
	got, err = l.ToggleWork(ctx, tr.ID)
	if err != nil || got.IsWorking {
		t.Fatalf("second toggle: working %v, err %v", got.IsWorking, err)
	}
}

func TestCredit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	l := New(store)
	tr := newTrader(t, store, "10", false)

	if _, err := l.Credit(ctx, tr.ID, decimal.Zero); !errors.Is(err, entity.ErrInvalidAmount) {
		t.Errorf("Credit(0): err = %v, want ErrInvalidAmount", err)
	}

	got, err := l.Credit(ctx, tr.ID, decimal.NewFromInt(90))
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if !got.UsdtBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100", got.UsdtBalance)
	}
	if got.IsWorking {
		t.Error("Credit must not enable work mode")
	}
}

func TestDisableWork(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	tr := newTrader(t, store, "100", true)

	got, err := New(store).DisableWork(ctx, tr.ID, ReasonUnresponsive)
	if err != nil {
		t.Fatalf("DisableWork failed: %v", err)
	}
	if got.IsWorking {
		t.Error("trader still working")
	}
	if _, err := New(store).DisableWork(ctx, "missing", ReasonManual); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("unknown trader: err = %v, want ErrNotFound", err)
	}
}
