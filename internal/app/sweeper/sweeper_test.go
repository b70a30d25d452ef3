package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/capacity"
	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/ledger"
	"github.com/devkekops/skipay/internal/app/matching"
	"github.com/devkekops/skipay/internal/app/settings"
	"github.com/devkekops/skipay/internal/app/settlement"
	"github.com/devkekops/skipay/internal/app/storage"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store   *storage.MemStore
	engine  *matching.Engine
	machine *settlement.Machine
	sweeper *Sweeper
	clock   *clock
}

func newFixture(t *testing.T, start time.Time, interval time.Duration) *fixture {
	t.Helper()
	store := storage.NewMemStore()
	provider := settings.NewStoreProvider(store, 0)
	tracker := capacity.New(store)
	l := ledger.New(store)
	c := &clock{t: start}
	machine := settlement.New(store, l, tracker, provider).WithClock(c.Now)

	return &fixture{
		store:   store,
		engine:  matching.New(store, tracker, provider).WithClock(c.Now),
		machine: machine,
		sweeper: New(store, machine, l, interval).WithClock(c.Now),
		clock:   c,
	}
}

func (f *fixture) traderWithCard(t *testing.T, userID string) (entity.Trader, entity.Card) {
	t.Helper()
	ctx := context.Background()
	tr := entity.Trader{UserID: userID, Name: userID, UsdtAddress: "T", UsdtBalance: decimal.NewFromInt(500), IsWorking: true}
	if err := f.store.CreateTrader(ctx, &tr); err != nil {
		t.Fatalf("CreateTrader failed: %v", err)
	}
	c, err := capacity.New(f.store).AddCard(ctx, tr.ID, capacity.NewCard{
		CardNumber: userID + "-card", BankName: "Mono", HolderName: "H", Limit: decimal.NewFromInt(1000)})
	if err != nil {
		t.Fatalf("AddCard failed: %v", err)
	}
	return tr, c
}

func (f *fixture) allocate(t *testing.T, userID string) entity.Transaction {
	t.Helper()
	a, err := f.engine.RequestCard(context.Background(), matching.Request{
		UserID: userID, Amount: decimal.NewFromInt(100), Currency: "UAH"})
	if err != nil {
		t.Fatalf("RequestCard failed: %v", err)
	}
	return a.Transaction
}

func TestSweepTrader(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 0)
	tr, card := f.traderWithCard(t, "t1")

	stale := f.allocate(t, "buyer-1")
	if _, err := f.machine.UserConfirm(ctx, "buyer-1", stale.ID); err != nil {
		t.Fatalf("UserConfirm failed: %v", err)
	}
	unpaid := f.allocate(t, "buyer-2")

	f.clock.Advance(10 * time.Minute)
	fresh := f.allocate(t, "buyer-3")
	if _, err := f.machine.UserConfirm(ctx, "buyer-3", fresh.ID); err != nil {
		t.Fatalf("UserConfirm failed: %v", err)
	}

	res, err := f.sweeper.SweepTrader(ctx, tr.ID)
	if err != nil {
		t.Fatalf("SweepTrader failed: %v", err)
	}
	if res.Expired != 0 || res.Cancelled != 0 || len(res.Disabled) != 0 {
		t.Fatalf("nothing is due yet, got %+v", res)
	}

	f.clock.Advance(21 * time.Minute)
	res, err = f.sweeper.SweepTrader(ctx, tr.ID)
	if err != nil {
		t.Fatalf("SweepTrader failed: %v", err)
	}
	if res.Expired != 1 || res.Cancelled != 1 || len(res.Disabled) != 1 || res.Disabled[0] != tr.ID {
		t.Fatalf("result = %+v, want one expired, one cancelled, trader disabled", res)
	}

	statuses := map[string]entity.TransactionStatus{
		stale.ID:  entity.TxExpired,
		unpaid.ID: entity.TxCancelled,
		fresh.ID:  entity.TxUserConfirmed,
	}
	for id, want := range statuses {
		got, _ := f.store.GetTransaction(ctx, id)
		if got.Status != want {
			t.Errorf("transaction %s is %s, want %s", id, got.Status, want)
		}
	}

	trader, _ := f.store.GetTrader(ctx, tr.ID)
	if trader.IsWorking {
		t.Error("unresponsive trader still working")
	}
	if !trader.UsdtBalance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("balance = %s, expiry must not move funds", trader.UsdtBalance)
	}
	c, _ := f.store.GetCard(ctx, card.ID)
	if !c.CurrentUsage.Equal(decimal.NewFromInt(109)) {
		t.Errorf("usage = %s, want only the fresh reservation left", c.CurrentUsage)
	}

	res, err = f.sweeper.SweepTrader(ctx, tr.ID)
	if err != nil {
		t.Fatalf("SweepTrader failed: %v", err)
	}
	if res.Expired != 0 || res.Cancelled != 0 || len(res.Disabled) != 0 {
		t.Errorf("second sweep = %+v, want nothing", res)
	}
}

func TestSweepTraderLeavesOthersAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 0)
	first, _ := f.traderWithCard(t, "t1")

	tx := f.allocate(t, "buyer")
	if _, err := f.machine.UserConfirm(ctx, "buyer", tx.ID); err != nil {
		t.Fatalf("UserConfirm failed: %v", err)
	}
	f.clock.Advance(time.Hour)

	res, err := f.sweeper.SweepTrader(ctx, "someone-else")
	if err != nil {
		t.Fatalf("SweepTrader failed: %v", err)
	}
	if res.Expired != 0 {
		t.Errorf("swept another trader's transaction: %+v", res)
	}

	res, err = f.sweeper.SweepAll(ctx)
	if err != nil {
		t.Fatalf("SweepAll failed: %v", err)
	}
	if res.Expired != 1 || len(res.Disabled) != 1 || res.Disabled[0] != first.ID {
		t.Errorf("SweepAll = %+v", res)
	}
}

var errTransient = errors.New("transient db error")

type flakyTransactions struct {
	storage.Transactions
	failID   string
	failures int
}

func (f *flakyTransactions) UpdateTransaction(ctx context.Context, id string, fn storage.UpdateFunc[entity.Transaction]) (entity.Transaction, error) {
	if id == f.failID && f.failures > 0 {
		f.failures--
		return entity.Transaction{}, errTransient
	}
	return f.Transactions.UpdateTransaction(ctx, id, fn)
}

func TestSweepKeepsGoingAfterError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 0)
	a, _ := f.traderWithCard(t, "t1")
	tx1 := f.allocate(t, "buyer-1")
	if tx1.TraderID != a.ID {
		t.Fatalf("first request went to %s, want %s", tx1.TraderID, a.ID)
	}

	b, _ := f.traderWithCard(t, "t2")
	setWorking := func(id string, working bool) {
		if _, err := f.store.UpdateTrader(ctx, id, func(t *entity.Trader) error {
			t.IsWorking = working
			return nil
		}); err != nil {
			t.Fatalf("UpdateTrader failed: %v", err)
		}
	}
	setWorking(a.ID, false)
	tx2 := f.allocate(t, "buyer-2")
	setWorking(a.ID, true)
	if tx2.TraderID != b.ID {
		t.Fatalf("second request went to %s, want %s", tx2.TraderID, b.ID)
	}

	for _, tx := range []entity.Transaction{tx1, tx2} {
		if _, err := f.machine.UserConfirm(ctx, tx.UserID, tx.ID); err != nil {
			t.Fatalf("UserConfirm failed: %v", err)
		}
	}
	f.clock.Advance(time.Hour)

	flaky := &flakyTransactions{Transactions: f.store, failID: tx2.ID, failures: 1}
	l := ledger.New(f.store)
	machine := settlement.New(flaky, l, capacity.New(f.store), settings.NewStoreProvider(f.store, 0)).WithClock(f.clock.Now)
	sw := New(flaky, machine, l, 0).WithClock(f.clock.Now)

	res, err := sw.SweepAll(ctx)
	if !errors.Is(err, errTransient) {
		t.Fatalf("first sweep: err = %v, want the transient error", err)
	}
	if res.Expired != 1 || len(res.Disabled) != 1 || res.Disabled[0] != a.ID {
		t.Errorf("first sweep = %+v, want tx1 expired and trader %s disabled", res, a.ID)
	}
	if got, _ := f.store.GetTrader(ctx, a.ID); got.IsWorking {
		t.Error("trader of the expired transaction still working after a failed sweep")
	}
	if got, _ := f.store.GetTransaction(ctx, tx2.ID); got.Status != entity.TxUserConfirmed {
		t.Errorf("tx2 is %s, want user_confirmed after the failed update", got.Status)
	}

	res, err = sw.SweepAll(ctx)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if res.Expired != 1 || len(res.Disabled) != 1 || res.Disabled[0] != b.ID {
		t.Errorf("second sweep = %+v, want tx2 expired and trader %s disabled", res, b.ID)
	}
	if got, _ := f.store.GetTrader(ctx, b.ID); got.IsWorking {
		t.Error("trader of tx2 still working")
	}
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, time.Now().Add(-time.Hour), 5*time.Millisecond)
	f.traderWithCard(t, "t1")
	tx := f.allocate(t, "buyer")
	f.clock.Advance(time.Hour)

	done := make(chan struct{})
	go func() {
		f.sweeper.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		got, _ := f.store.GetTransaction(context.Background(), tx.ID)
		if got.Status == entity.TxCancelled {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("transaction still %s after periodic sweeps", got.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
