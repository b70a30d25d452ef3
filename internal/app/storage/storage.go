package storage

import (
	"context"
	"strings"
	"time"

	"github.com/devkekops/skipay/internal/app/entity"
)

// UpdateFunc mutates a record copy inside the store's per-record critical
// section. Returning an error aborts the update and nothing is written.
// UpdateFunc must not call back into the store.
type UpdateFunc[T any] func(*T) error

// CompensationTimeout bounds a write that undoes half of a multi-record
// operation.
const CompensationTimeout = 5 * time.Second

// Detached derives a context for compensating writes. It keeps ctx values but
// not its cancellation, so a client that hangs up mid-operation cannot leave
// the first record changed and the undo skipped.
func Detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), CompensationTimeout)
}

// WithdrawalCheck inspects a user's completed transactions and existing
// withdrawals before a new withdrawal is inserted. A non-nil error aborts
// the insert.
type WithdrawalCheck func(completed []entity.Transaction, existing []entity.Withdrawal) error

type TxFilter struct {
	UserID   string
	TraderID string
	Statuses []entity.TransactionStatus
}

func (f TxFilter) match(t *entity.Transaction) bool {
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.TraderID != "" && t.TraderID != f.TraderID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

type Users interface {
	CreateUser(ctx context.Context, u *entity.User) error
	GetUser(ctx context.Context, id string) (entity.User, error)
	GetUserByLogin(ctx context.Context, login string) (entity.User, error)
	ListUsers(ctx context.Context) ([]entity.User, error)
	UpdateUser(ctx context.Context, id string, fn UpdateFunc[entity.User]) (entity.User, error)
}

type Traders interface {
	CreateTrader(ctx context.Context, t *entity.Trader) error
	GetTrader(ctx context.Context, id string) (entity.Trader, error)
	GetTraderByUser(ctx context.Context, userID string) (entity.Trader, error)
	ListTraders(ctx context.Context) ([]entity.Trader, error)
	UpdateTrader(ctx context.Context, id string, fn UpdateFunc[entity.Trader]) (entity.Trader, error)
}

// Cards lists return records in creation order.
type Cards interface {
	CreateCard(ctx context.Context, c *entity.Card) error
	GetCard(ctx context.Context, id string) (entity.Card, error)
	ListCardsByTrader(ctx context.Context, traderID string) ([]entity.Card, error)
	ListActiveCards(ctx context.Context, currency string) ([]entity.Card, error)
	UpdateCard(ctx context.Context, id string, fn UpdateFunc[entity.Card]) (entity.Card, error)
}

type Transactions interface {
	CreateTransaction(ctx context.Context, t *entity.Transaction) error
	GetTransaction(ctx context.Context, id string) (entity.Transaction, error)
	ListTransactions(ctx context.Context, f TxFilter) ([]entity.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, fn UpdateFunc[entity.Transaction]) (entity.Transaction, error)
}

type Withdrawals interface {
	CreateWithdrawal(ctx context.Context, w *entity.Withdrawal) error
	// CreateWithdrawalIf runs check and the insert as one unit per user, so
	// concurrent requests by the same user see each other's withdrawals.
	CreateWithdrawalIf(ctx context.Context, w *entity.Withdrawal, check WithdrawalCheck) error
	GetWithdrawal(ctx context.Context, id string) (entity.Withdrawal, error)
	// ListWithdrawals returns all withdrawals when userID is empty.
	ListWithdrawals(ctx context.Context, userID string) ([]entity.Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, id string, fn UpdateFunc[entity.Withdrawal]) (entity.Withdrawal, error)
}

type SettingsStore interface {
	// GetSettings returns entity.ErrNotFound until settings are first saved.
	GetSettings(ctx context.Context) (entity.Settings, error)
	PutSettings(ctx context.Context, s entity.Settings) error
}

type Repository interface {
	Users
	Traders
	Cards
	Transactions
	Withdrawals
	SettingsStore
	Ping(ctx context.Context) error
	Close() error
}

const sqlitePrefix = "sqlite://"

// Open picks the backend from the URI: empty for in-memory, sqlite://path for
// an embedded database, anything else is handed to pgx.
func Open(databaseURI string) (Repository, error) {
	switch {
	case databaseURI == "":
		return NewMemStore(), nil
	case strings.HasPrefix(databaseURI, sqlitePrefix):
		return NewRepoDB(driverSQLite, strings.TrimPrefix(databaseURI, sqlitePrefix))
	default:
		return NewRepoDB(driverPgx, databaseURI)
	}
}
