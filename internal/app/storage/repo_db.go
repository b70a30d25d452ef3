package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/logger"
)

const (
	driverPgx    = "pgx"
	driverSQLite = "sqlite"
)

// Timestamps are stored as fixed-width ISO-8601 text so the schema is the
// same for both drivers.
var schema = `
CREATE TABLE IF NOT EXISTS users(
	id				TEXT PRIMARY KEY,
	login			TEXT NOT NULL UNIQUE,
	password_hash	TEXT NOT NULL,
	role			TEXT NOT NULL,
	is_blocked		BOOLEAN NOT NULL DEFAULT FALSE,
	created_at		TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS traders(
	id				TEXT PRIMARY KEY,
	user_id			TEXT NOT NULL UNIQUE,
	name			TEXT NOT NULL,
	nickname		TEXT NOT NULL,
	usdt_address	TEXT NOT NULL,
	phone			TEXT NOT NULL,
	usdt_balance	NUMERIC(20,8) NOT NULL DEFAULT 0,
	is_working		BOOLEAN NOT NULL DEFAULT FALSE,
	is_blocked		BOOLEAN NOT NULL DEFAULT FALSE,
	created_at		TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cards(
	id				TEXT PRIMARY KEY,
	trader_id		TEXT NOT NULL,
	card_number		TEXT NOT NULL,
	bank_name		TEXT NOT NULL,
	holder_name		TEXT NOT NULL,
	card_name		TEXT NOT NULL DEFAULT '',
	spending_limit	NUMERIC(20,2) NOT NULL,
	current_usage	NUMERIC(20,2) NOT NULL DEFAULT 0,
	status			TEXT NOT NULL,
	currency		TEXT NOT NULL,
	created_at		TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions(
	id					TEXT PRIMARY KEY,
	user_id				TEXT NOT NULL,
	trader_id			TEXT NOT NULL,
	card_id				TEXT NOT NULL,
	amount				NUMERIC(20,2) NOT NULL,
	amount_to_pay		NUMERIC(20,2) NOT NULL,
	usdt_requested		NUMERIC(20,8) NOT NULL,
	usdt_amount			NUMERIC(20,8) NOT NULL DEFAULT 0,
	currency			TEXT NOT NULL,
	status				TEXT NOT NULL,
	created_at			TEXT NOT NULL,
	user_confirmed_at	TEXT,
	completed_at		TEXT,
	expires_at			TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS withdrawals(
	id				TEXT PRIMARY KEY,
	user_id			TEXT NOT NULL,
	amount			NUMERIC(20,8) NOT NULL,
	wallet_address	TEXT NOT NULL,
	status			TEXT NOT NULL,
	created_at		TEXT NOT NULL,
	processed_at	TEXT
);

CREATE TABLE IF NOT EXISTS settings(
	id						INTEGER PRIMARY KEY,
	commission_rate			NUMERIC(10,4) NOT NULL,
	usd_to_uah_rate			NUMERIC(20,8) NOT NULL,
	deposit_wallet_address	TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_trader ON cards(trader_id);
CREATE INDEX IF NOT EXISTS idx_cards_status_currency ON cards(status, currency);
CREATE INDEX IF NOT EXISTS idx_transactions_trader ON transactions(trader_id, status);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals(user_id);`

const (
	queryInsertUser = `INSERT INTO users (id, login, password_hash, role, is_blocked, created_at)
		VALUES (:id, :login, :password_hash, :role, :is_blocked, :created_at)`
	queryUpdateUser = `UPDATE users SET password_hash = :password_hash, role = :role, is_blocked = :is_blocked
		WHERE id = :id`

	queryInsertTrader = `INSERT INTO traders (id, user_id, name, nickname, usdt_address, phone, usdt_balance, is_working, is_blocked, created_at)
		VALUES (:id, :user_id, :name, :nickname, :usdt_address, :phone, :usdt_balance, :is_working, :is_blocked, :created_at)`
	queryUpdateTrader = `UPDATE traders SET name = :name, nickname = :nickname, usdt_address = :usdt_address, phone = :phone,
		usdt_balance = :usdt_balance, is_working = :is_working, is_blocked = :is_blocked
		WHERE id = :id`

	queryInsertCard = `INSERT INTO cards (id, trader_id, card_number, bank_name, holder_name, card_name, spending_limit, current_usage, status, currency, created_at)
		VALUES (:id, :trader_id, :card_number, :bank_name, :holder_name, :card_name, :spending_limit, :current_usage, :status, :currency, :created_at)`
	queryUpdateCard = `UPDATE cards SET card_name = :card_name, spending_limit = :spending_limit, current_usage = :current_usage, status = :status
		WHERE id = :id`

	queryInsertTransaction = `INSERT INTO transactions (id, user_id, trader_id, card_id, amount, amount_to_pay, usdt_requested, usdt_amount,
		currency, status, created_at, user_confirmed_at, completed_at, expires_at)
		VALUES (:id, :user_id, :trader_id, :card_id, :amount, :amount_to_pay, :usdt_requested, :usdt_amount,
		:currency, :status, :created_at, :user_confirmed_at, :completed_at, :expires_at)`
	queryUpdateTransaction = `UPDATE transactions SET usdt_amount = :usdt_amount, status = :status,
		user_confirmed_at = :user_confirmed_at, completed_at = :completed_at
		WHERE id = :id`

	queryInsertWithdrawal = `INSERT INTO withdrawals (id, user_id, amount, wallet_address, status, created_at, processed_at)
		VALUES (:id, :user_id, :amount, :wallet_address, :status, :created_at, :processed_at)`
	queryUpdateWithdrawal = `UPDATE withdrawals SET status = :status, processed_at = :processed_at WHERE id = :id`

	queryGetSettings    = `SELECT commission_rate, usd_to_uah_rate, deposit_wallet_address FROM settings WHERE id = 1`
	queryDeleteSettings = `DELETE FROM settings WHERE id = 1`
	queryInsertSettings = `INSERT INTO settings (id, commission_rate, usd_to_uah_rate, deposit_wallet_address)
		VALUES (1, :commission_rate, :usd_to_uah_rate, :deposit_wallet_address)`
)

func init() {
	sqlx.BindDriver(driverSQLite, sqlx.QUESTION)
}

// RepoDB is the sqlx-backed Repository. Updates run as read-modify-write inside
// a database transaction; on Postgres the row is locked with FOR UPDATE, on
// SQLite the single connection serializes writers.
type RepoDB struct {
	db        *sqlx.DB
	forUpdate string
	// lockUser takes a transaction-scoped lock keyed by user id.
	lockUser string
}

var _ Repository = (*RepoDB)(nil)

func NewRepoDB(driverName, dataSource string) (*RepoDB, error) {
	db, err := sqlx.Connect(driverName, dataSource)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driverName, err)
	}

	r := &RepoDB{db: db}
	if driverName == driverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		r.forUpdate = " FOR UPDATE"
		r.lockUser = "SELECT pg_advisory_xact_lock(hashtext(?))"
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return r, nil
}

func (r *RepoDB) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *RepoDB) Close() error {
	return r.db.Close()
}

func (r *RepoDB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func(tx *sqlx.Tx) {
		err := tx.Rollback()
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			logger.Logger.Error().Err(err).Msg("rollback")
		}
	}(tx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, entity.ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// get loads one row by id, locking it when running inside an update.
func get[T any](ctx context.Context, q sqlx.QueryerContext, r *RepoDB, dest *T, table, kind, id string, lock bool) error {
	query := "SELECT * FROM " + table + " WHERE id = ?"
	if lock {
		query += r.forUpdate
	}
	if err := sqlx.GetContext(ctx, q, dest, r.db.Rebind(query), id); err != nil {
		return notFound(err, kind, id)
	}
	return nil
}

func update[T any](ctx context.Context, r *RepoDB, table, kind, id, updateQuery string, fn UpdateFunc[T]) (T, error) {
	var row T
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := get(ctx, tx, r, &row, table, kind, id, true); err != nil {
			return err
		}
		if err := fn(&row); err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, updateQuery, row); err != nil {
			return fmt.Errorf("update %s %s: %w", kind, id, err)
		}
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return row, nil
}

func (r *RepoDB) CreateUser(ctx context.Context, u *entity.User) error {
	fillID(&u.ID, &u.CreatedAt)
	if _, err := r.db.NamedExecContext(ctx, queryInsertUser, u); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Login, entity.ErrLoginTaken)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *RepoDB) GetUser(ctx context.Context, id string) (entity.User, error) {
	var u entity.User
	err := get(ctx, r.db, r, &u, "users", "user", id, false)
	return u, err
}

func (r *RepoDB) GetUserByLogin(ctx context.Context, login string) (entity.User, error) {
	var u entity.User
	err := r.db.GetContext(ctx, &u, r.db.Rebind("SELECT * FROM users WHERE login = ?"), login)
	if err != nil {
		return u, notFound(err, "user", login)
	}
	return u, nil
}

func (r *RepoDB) ListUsers(ctx context.Context) ([]entity.User, error) {
	var users []entity.User
	if err := r.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY created_at, id"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *RepoDB) UpdateUser(ctx context.Context, id string, fn UpdateFunc[entity.User]) (entity.User, error) {
	return update(ctx, r, "users", "user", id, queryUpdateUser, fn)
}

func (r *RepoDB) CreateTrader(ctx context.Context, t *entity.Trader) error {
	fillID(&t.ID, &t.CreatedAt)
	if _, err := r.db.NamedExecContext(ctx, queryInsertTrader, t); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("trader for user %s: %w", t.UserID, entity.ErrAlreadyTrader)
		}
		return fmt.Errorf("insert trader: %w", err)
	}
	return nil
}

func (r *RepoDB) GetTrader(ctx context.Context, id string) (entity.Trader, error) {
	var t entity.Trader
	err := get(ctx, r.db, r, &t, "traders", "trader", id, false)
	return t, err
}

func (r *RepoDB) GetTraderByUser(ctx context.Context, userID string) (entity.Trader, error) {
	var t entity.Trader
	err := r.db.GetContext(ctx, &t, r.db.Rebind("SELECT * FROM traders WHERE user_id = ?"), userID)
	if err != nil {
		return t, notFound(err, "trader for user", userID)
	}
	return t, nil
}

func (r *RepoDB) ListTraders(ctx context.Context) ([]entity.Trader, error) {
	var traders []entity.Trader
	if err := r.db.SelectContext(ctx, &traders, "SELECT * FROM traders ORDER BY created_at, id"); err != nil {
		return nil, fmt.Errorf("list traders: %w", err)
	}
	return traders, nil
}

func (r *RepoDB) UpdateTrader(ctx context.Context, id string, fn UpdateFunc[entity.Trader]) (entity.Trader, error) {
	return update(ctx, r, "traders", "trader", id, queryUpdateTrader, fn)
}

func (r *RepoDB) CreateCard(ctx context.Context, c *entity.Card) error {
	fillID(&c.ID, &c.CreatedAt)
	if _, err := r.db.NamedExecContext(ctx, queryInsertCard, c); err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (r *RepoDB) GetCard(ctx context.Context, id string) (entity.Card, error) {
	var c entity.Card
	err := get(ctx, r.db, r, &c, "cards", "card", id, false)
	return c, err
}

func (r *RepoDB) ListCardsByTrader(ctx context.Context, traderID string) ([]entity.Card, error) {
	var cards []entity.Card
	query := r.db.Rebind("SELECT * FROM cards WHERE trader_id = ? ORDER BY created_at, id")
	if err := r.db.SelectContext(ctx, &cards, query, traderID); err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

func (r *RepoDB) ListActiveCards(ctx context.Context, currency string) ([]entity.Card, error) {
	var cards []entity.Card
	query := r.db.Rebind("SELECT * FROM cards WHERE status = ? AND currency = ? ORDER BY created_at, id")
	if err := r.db.SelectContext(ctx, &cards, query, entity.CardActive, currency); err != nil {
		return nil, fmt.Errorf("list active cards: %w", err)
	}
	return cards, nil
}

func (r *RepoDB) UpdateCard(ctx context.Context, id string, fn UpdateFunc[entity.Card]) (entity.Card, error) {
	return update(ctx, r, "cards", "card", id, queryUpdateCard, fn)
}

func (r *RepoDB) CreateTransaction(ctx context.Context, t *entity.Transaction) error {
	fillID(&t.ID, &t.CreatedAt)
	if _, err := r.db.NamedExecContext(ctx, queryInsertTransaction, t); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *RepoDB) GetTransaction(ctx context.Context, id string) (entity.Transaction, error) {
	var t entity.Transaction
	err := get(ctx, r.db, r, &t, "transactions", "transaction", id, false)
	return t, err
}

func (r *RepoDB) ListTransactions(ctx context.Context, f TxFilter) ([]entity.Transaction, error) {
	query := "SELECT * FROM transactions WHERE 1 = 1"
	var args []interface{}
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.TraderID != "" {
		query += " AND trader_id = ?"
		args = append(args, f.TraderID)
	}
	if len(f.Statuses) > 0 {
		in, inArgs, err := sqlx.In(" AND status IN (?)", f.Statuses)
		if err != nil {
			return nil, fmt.Errorf("build status filter: %w", err)
		}
		query += in
		args = append(args, inArgs...)
	}
	query += " ORDER BY created_at, id"

	var txs []entity.Transaction
	if err := r.db.SelectContext(ctx, &txs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (r *RepoDB) UpdateTransaction(ctx context.Context, id string, fn UpdateFunc[entity.Transaction]) (entity.Transaction, error) {
	return update(ctx, r, "transactions", "transaction", id, queryUpdateTransaction, fn)
}

func (r *RepoDB) CreateWithdrawal(ctx context.Context, w *entity.Withdrawal) error {
	fillID(&w.ID, &w.CreatedAt)
	if _, err := r.db.NamedExecContext(ctx, queryInsertWithdrawal, w); err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

func (r *RepoDB) CreateWithdrawalIf(ctx context.Context, w *entity.Withdrawal, check WithdrawalCheck) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if r.lockUser != "" {
			if _, err := tx.ExecContext(ctx, tx.Rebind(r.lockUser), w.UserID); err != nil {
				return fmt.Errorf("lock user %s: %w", w.UserID, err)
			}
		}

		var completed []entity.Transaction
		query := tx.Rebind("SELECT * FROM transactions WHERE user_id = ? AND status = ? ORDER BY created_at, id")
		if err := tx.SelectContext(ctx, &completed, query, w.UserID, entity.TxCompleted); err != nil {
			return fmt.Errorf("list completed transactions: %w", err)
		}
		var existing []entity.Withdrawal
		query = tx.Rebind("SELECT * FROM withdrawals WHERE user_id = ? ORDER BY created_at, id")
		if err := tx.SelectContext(ctx, &existing, query, w.UserID); err != nil {
			return fmt.Errorf("list withdrawals: %w", err)
		}
		if err := check(completed, existing); err != nil {
			return err
		}

		fillID(&w.ID, &w.CreatedAt)
		if _, err := tx.NamedExecContext(ctx, queryInsertWithdrawal, w); err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}
		return nil
	})
}

func (r *RepoDB) GetWithdrawal(ctx context.Context, id string) (entity.Withdrawal, error) {
	var w entity.Withdrawal
	err := get(ctx, r.db, r, &w, "withdrawals", "withdrawal", id, false)
	return w, err
}

func (r *RepoDB) ListWithdrawals(ctx context.Context, userID string) ([]entity.Withdrawal, error) {
	var withdrawals []entity.Withdrawal
	var err error
	if userID == "" {
		err = r.db.SelectContext(ctx, &withdrawals, "SELECT * FROM withdrawals ORDER BY created_at, id")
	} else {
		query := r.db.Rebind("SELECT * FROM withdrawals WHERE user_id = ? ORDER BY created_at, id")
		err = r.db.SelectContext(ctx, &withdrawals, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	return withdrawals, nil
}

func (r *RepoDB) UpdateWithdrawal(ctx context.Context, id string, fn UpdateFunc[entity.Withdrawal]) (entity.Withdrawal, error) {
	return update(ctx, r, "withdrawals", "withdrawal", id, queryUpdateWithdrawal, fn)
}

func (r *RepoDB) GetSettings(ctx context.Context) (entity.Settings, error) {
	var s entity.Settings
	if err := r.db.GetContext(ctx, &s, queryGetSettings); err != nil {
		return s, notFound(err, "settings", "1")
	}
	return s, nil
}

func (r *RepoDB) PutSettings(ctx context.Context, s entity.Settings) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, queryDeleteSettings); err != nil {
			return fmt.Errorf("clear settings: %w", err)
		}
		if _, err := tx.NamedExecContext(ctx, queryInsertSettings, s); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		return nil
	})
}

