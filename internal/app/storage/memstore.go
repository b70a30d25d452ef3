package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/devkekops/skipay/internal/app/entity"
)

type table[T any] struct {
	rows  map[string]*T
	order []string
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]*T)}
}

func (tb *table[T]) insert(id string, v T) {
	tb.rows[id] = &v
	tb.order = append(tb.order, id)
}

func (tb *table[T]) get(kind, id string) (T, error) {
	v, ok := tb.rows[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", kind, id, entity.ErrNotFound)
	}
	return *v, nil
}

func (tb *table[T]) update(kind, id string, fn UpdateFunc[T]) (T, error) {
	var zero T
	cur, ok := tb.rows[id]
	if !ok {
		return zero, fmt.Errorf("%s %s: %w", kind, id, entity.ErrNotFound)
	}
	next := *cur
	if err := fn(&next); err != nil {
		return zero, err
	}
	*cur = next
	return next, nil
}

func (tb *table[T]) list(keep func(*T) bool) []T {
	var out []T
	for _, id := range tb.order {
		if v := tb.rows[id]; keep == nil || keep(v) {
			out = append(out, *v)
		}
	}
	return out
}

// MemStore keeps every record in process memory. All operations are
// serialized by a single lock, which makes each update a compare-and-set.
type MemStore struct {
	mu           sync.Mutex
	users        *table[entity.User]
	traders      *table[entity.Trader]
	cards        *table[entity.Card]
	transactions *table[entity.Transaction]
	withdrawals  *table[entity.Withdrawal]
	settings     *entity.Settings
}

var _ Repository = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		users:        newTable[entity.User](),
		traders:      newTable[entity.Trader](),
		cards:        newTable[entity.Card](),
		transactions: newTable[entity.Transaction](),
		withdrawals:  newTable[entity.Withdrawal](),
	}
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) Close() error { return nil }

func (s *MemStore) CreateUser(_ context.Context, u *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users.rows {
		if existing.Login == u.Login {
			return fmt.Errorf("user %s: %w", u.Login, entity.ErrLoginTaken)
		}
	}
	fillID(&u.ID, &u.CreatedAt)
	s.users.insert(u.ID, *u)
	return nil
}

func (s *MemStore) GetUser(_ context.Context, id string) (entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users.get("user", id)
}

func (s *MemStore) GetUserByLogin(_ context.Context, login string) (entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := s.users.list(func(u *entity.User) bool { return u.Login == login })
	if len(found) == 0 {
		return entity.User{}, fmt.Errorf("user %s: %w", login, entity.ErrNotFound)
	}
	return found[0], nil
}

func (s *MemStore) ListUsers(context.Context) ([]entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users.list(nil), nil
}

func (s *MemStore) UpdateUser(_ context.Context, id string, fn UpdateFunc[entity.User]) (entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users.update("user", id, fn)
}

func (s *MemStore) CreateTrader(_ context.Context, t *entity.Trader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.traders.rows {
		if existing.UserID == t.UserID {
			return fmt.Errorf("trader for user %s: %w", t.UserID, entity.ErrAlreadyTrader)
		}
	}
	fillID(&t.ID, &t.CreatedAt)
	s.traders.insert(t.ID, *t)
	return nil
}

func (s *MemStore) GetTrader(_ context.Context, id string) (entity.Trader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traders.get("trader", id)
}

func (s *MemStore) GetTraderByUser(_ context.Context, userID string) (entity.Trader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := s.traders.list(func(t *entity.Trader) bool { return t.UserID == userID })
	if len(found) == 0 {
		return entity.Trader{}, fmt.Errorf("trader for user %s: %w", userID, entity.ErrNotFound)
	}
	return found[0], nil
}

func (s *MemStore) ListTraders(context.Context) ([]entity.Trader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traders.list(nil), nil
}

func (s *MemStore) UpdateTrader(_ context.Context, id string, fn UpdateFunc[entity.Trader]) (entity.Trader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traders.update("trader", id, fn)
}

func (s *MemStore) CreateCard(_ context.Context, c *entity.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fillID(&c.ID, &c.CreatedAt)
	s.cards.insert(c.ID, *c)
	return nil
}

func (s *MemStore) GetCard(_ context.Context, id string) (entity.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cards.get("card", id)
}

func (s *MemStore) ListCardsByTrader(_ context.Context, traderID string) ([]entity.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cards.list(func(c *entity.Card) bool { return c.TraderID == traderID }), nil
}

func (s *MemStore) ListActiveCards(_ context.Context, currency string) ([]entity.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cards.list(func(c *entity.Card) bool {
		return c.Status == entity.CardActive && c.Currency == currency
	}), nil
}

func (s *MemStore) UpdateCard(_ context.Context, id string, fn UpdateFunc[entity.Card]) (entity.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cards.update("card", id, fn)
}

func (s *MemStore) CreateTransaction(_ context.Context, t *entity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fillID(&t.ID, &t.CreatedAt)
	s.transactions.insert(t.ID, *t)
	return nil
}

func (s *MemStore) GetTransaction(_ context.Context, id string) (entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions.get("transaction", id)
}

func (s *MemStore) ListTransactions(_ context.Context, f TxFilter) ([]entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions.list(f.match), nil
}

func (s *MemStore) UpdateTransaction(_ context.Context, id string, fn UpdateFunc[entity.Transaction]) (entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions.update("transaction", id, fn)
}

func (s *MemStore) CreateWithdrawal(_ context.Context, w *entity.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fillID(&w.ID, &w.CreatedAt)
	s.withdrawals.insert(w.ID, *w)
	return nil
}

func (s *MemStore) CreateWithdrawalIf(_ context.Context, w *entity.Withdrawal, check WithdrawalCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := TxFilter{UserID: w.UserID, Statuses: []entity.TransactionStatus{entity.TxCompleted}}
	existing := s.withdrawals.list(func(x *entity.Withdrawal) bool { return x.UserID == w.UserID })
	if err := check(s.transactions.list(done.match), existing); err != nil {
		return err
	}
	fillID(&w.ID, &w.CreatedAt)
	s.withdrawals.insert(w.ID, *w)
	return nil
}

func (s *MemStore) GetWithdrawal(_ context.Context, id string) (entity.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdrawals.get("withdrawal", id)
}

func (s *MemStore) ListWithdrawals(_ context.Context, userID string) ([]entity.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdrawals.list(func(w *entity.Withdrawal) bool {
		return userID == "" || w.UserID == userID
	}), nil
}

func (s *MemStore) UpdateWithdrawal(_ context.Context, id string, fn UpdateFunc[entity.Withdrawal]) (entity.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdrawals.update("withdrawal", id, fn)
}

func (s *MemStore) GetSettings(context.Context) (entity.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return entity.Settings{}, fmt.Errorf("settings: %w", entity.ErrNotFound)
	}
	return *s.settings, nil
}

func (s *MemStore) PutSettings(_ context.Context, settings entity.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	return nil
}
