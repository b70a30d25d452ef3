package entity

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the precision amounts are persisted with, for UAH and USDT alike.
const MoneyPlaces = 2

type Role string

const (
	RoleUser   Role = "user"
	RoleTrader Role = "trader"
	RoleAdmin  Role = "admin"
)

type CardStatus string

const (
	CardActive CardStatus = "active"
	CardPaused CardStatus = "paused"
	// CardDeleted is terminal. Transactions keep pointing at the row.
	CardDeleted CardStatus = "deleted"
)

func (s CardStatus) Valid() bool {
	return s == CardActive || s == CardPaused
}

type TransactionStatus string

const (
	TxPending       TransactionStatus = "pending"
	TxUserConfirmed TransactionStatus = "user_confirmed"
	TxCompleted     TransactionStatus = "completed"
	TxCancelled     TransactionStatus = "cancelled"
	TxExpired       TransactionStatus = "expired"
)

func (s TransactionStatus) Terminal() bool {
	return s == TxCompleted || s == TxCancelled || s == TxExpired
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type User struct {
	ID           string    `json:"id" db:"id"`
	Login        string    `json:"login" db:"login"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	IsBlocked    bool      `json:"is_blocked" db:"is_blocked"`
	CreatedAt    Timestamp `json:"created_at" db:"created_at"`
}

type Trader struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Name        string          `json:"name" db:"name"`
	Nickname    string          `json:"nickname" db:"nickname"`
	UsdtAddress string          `json:"usdt_address" db:"usdt_address"`
	Phone       string          `json:"phone" db:"phone"`
	UsdtBalance decimal.Decimal `json:"usdt_balance" db:"usdt_balance"`
	IsWorking   bool            `json:"is_working" db:"is_working"`
	IsBlocked   bool            `json:"is_blocked" db:"is_blocked"`
	CreatedAt   Timestamp       `json:"created_at" db:"created_at"`
}

type Card struct {
	ID           string          `json:"id" db:"id"`
	TraderID     string          `json:"trader_id" db:"trader_id"`
	CardNumber   string          `json:"card_number" db:"card_number"`
	BankName     string          `json:"bank_name" db:"bank_name"`
	HolderName   string          `json:"holder_name" db:"holder_name"`
	CardName     string          `json:"card_name,omitempty" db:"card_name"`
	Limit        decimal.Decimal `json:"limit" db:"spending_limit"`
	CurrentUsage decimal.Decimal `json:"current_usage" db:"current_usage"`
	Status       CardStatus      `json:"status" db:"status"`
	Currency     string          `json:"currency" db:"currency"`
	CreatedAt    Timestamp       `json:"created_at" db:"created_at"`
}

// Transaction is never deleted. Amount is the UAH principal without commission,
// AmountToPay is what was reserved on the card.
type Transaction struct {
	ID              string            `json:"id" db:"id"`
	UserID          string            `json:"user_id" db:"user_id"`
	TraderID        string            `json:"trader_id" db:"trader_id"`
	CardID          string            `json:"card_id" db:"card_id"`
	Amount          decimal.Decimal   `json:"amount" db:"amount"`
	AmountToPay     decimal.Decimal   `json:"amount_to_pay" db:"amount_to_pay"`
	UsdtRequested   decimal.Decimal   `json:"usdt_requested" db:"usdt_requested"`
	UsdtAmount      decimal.Decimal   `json:"usdt_amount" db:"usdt_amount"`
	Currency        string            `json:"currency" db:"currency"`
	Status          TransactionStatus `json:"status" db:"status"`
	CreatedAt       Timestamp         `json:"created_at" db:"created_at"`
	UserConfirmedAt *Timestamp        `json:"user_confirmed_at,omitempty" db:"user_confirmed_at"`
	CompletedAt     *Timestamp        `json:"completed_at,omitempty" db:"completed_at"`
	ExpiresAt       Timestamp         `json:"expires_at" db:"expires_at"`
}

type Withdrawal struct {
	ID            string           `json:"id" db:"id"`
	UserID        string           `json:"user_id" db:"user_id"`
	Amount        decimal.Decimal  `json:"amount" db:"amount"`
	WalletAddress string           `json:"wallet_address" db:"wallet_address"`
	Status        WithdrawalStatus `json:"status" db:"status"`
	CreatedAt     Timestamp        `json:"created_at" db:"created_at"`
	ProcessedAt   *Timestamp       `json:"processed_at,omitempty" db:"processed_at"`
}

type Settings struct {
	CommissionRate       decimal.Decimal `json:"commission_rate" db:"commission_rate"`
	UsdToUahRate         decimal.Decimal `json:"usd_to_uah_rate" db:"usd_to_uah_rate"`
	DepositWalletAddress string          `json:"deposit_wallet_address" db:"deposit_wallet_address"`
}

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
