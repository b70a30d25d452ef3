package matching

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/capacity"
	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/settings"
	"github.com/devkekops/skipay/internal/app/storage"
)

func backends() map[string]func(t *testing.T) storage.Repository {
	return map[string]func(t *testing.T) storage.Repository{
		"memory": func(*testing.T) storage.Repository { return storage.NewMemStore() },
		"sqlite": func(t *testing.T) storage.Repository {
			store, err := storage.Open("sqlite://" + filepath.Join(t.TempDir(), "matching.db"))
			if err != nil {
				t.Fatalf("Open sqlite failed: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

func TestConcurrentRequestCard(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixtureOn(open(t))
			tr := f.trader(t, "t1", "10000", true)
			// 100 UAH costs 109 to pay, so 1000 covers nine requests
			c := f.card(t, tr.ID, "1111", "1000")

			const requests = 20
			var (
				wg sync.WaitGroup
				mu sync.Mutex
				ok int
			)
			for i := 0; i < requests; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := f.engine.RequestCard(ctx, Request{
						UserID: fmt.Sprintf("buyer-%d", i), Amount: decimal.NewFromInt(100), Currency: "UAH"})
					if err != nil && !errors.Is(err, entity.ErrNoEligibleTrader) {
						t.Errorf("RequestCard failed: %v", err)
					}
					if err == nil {
						mu.Lock()
						ok++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()

			if ok != 9 {
				t.Errorf("%d of %d requests allocated, want 9", ok, requests)
			}
			got, err := f.store.GetCard(ctx, c.ID)
			if err != nil {
				t.Fatalf("GetCard failed: %v", err)
			}
			if !got.CurrentUsage.Equal(decimal.NewFromInt(981)) || got.CurrentUsage.GreaterThan(got.Limit) {
				t.Errorf("usage = %s of %s, want 981", got.CurrentUsage, got.Limit)
			}
			txs, err := f.store.ListTransactions(ctx, storage.TxFilter{})
			if err != nil {
				t.Fatalf("ListTransactions failed: %v", err)
			}
			if len(txs) != ok {
				t.Errorf("%d transactions for %d allocations", len(txs), ok)
			}
		})
	}
}

// hangupOnInsert cancels the request context while the transaction is
// written, the way a disconnecting client would. Every card write honours
// ctx so the in-memory store behaves like a database here.
type hangupOnInsert struct {
	storage.Repository
	cancel context.CancelFunc
}

func (h hangupOnInsert) CreateTransaction(ctx context.Context, _ *entity.Transaction) error {
	h.cancel()
	return fmt.Errorf("insert transaction: %w", ctx.Err())
}

func (h hangupOnInsert) UpdateCard(ctx context.Context, id string, fn storage.UpdateFunc[entity.Card]) (entity.Card, error) {
	if err := ctx.Err(); err != nil {
		return entity.Card{}, err
	}
	return h.Repository.UpdateCard(ctx, id, fn)
}

func TestRequestCardReleasesWhenWriteFails(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			f := newFixtureOn(open(t))
			tr := f.trader(t, "t1", "500", true)
			c := f.card(t, tr.ID, "1111", "1000")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			store := hangupOnInsert{Repository: f.store, cancel: cancel}
			engine := New(store, capacity.New(store), settings.NewStoreProvider(f.store, 0)).
				WithClock(func() time.Time { return now })

			_, err := engine.RequestCard(ctx, request("100"))
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("err = %v, want context.Canceled", err)
			}

			got, err := f.store.GetCard(context.Background(), c.ID)
			if err != nil {
				t.Fatalf("GetCard failed: %v", err)
			}
			if !got.CurrentUsage.IsZero() {
				t.Errorf("usage = %s after a failed write, want 0", got.CurrentUsage)
			}
			txs, _ := f.store.ListTransactions(context.Background(), storage.TxFilter{})
			if len(txs) != 0 {
				t.Errorf("%d transactions stored, want none", len(txs))
			}
		})
	}
}
