package matching

import (
	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/entity"
)

const usdtPrecision = 8

var hundred = decimal.NewFromInt(100)

// Quote is the price of a request under one settings snapshot.
type Quote struct {
	Amount           decimal.Decimal `json:"amount"`
	AmountToPay      decimal.Decimal `json:"amount_to_pay"`
	UsdtToReceive    decimal.Decimal `json:"usdt_amount"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
}

// NewQuote prices amount, the UAH principal the user wants credited without
// commission. The user pays amount plus commission and receives amount/rate USDT.
func NewQuote(amount decimal.Decimal, s entity.Settings) Quote {
	amount = entity.RoundMoney(amount)
	toPay := entity.RoundMoney(amount.Mul(decimal.NewFromInt(1).Add(s.CommissionRate.Div(hundred))))
	return Quote{
		Amount:           amount,
		AmountToPay:      toPay,
		UsdtToReceive:    amount.DivRound(s.UsdToUahRate, usdtPrecision),
		CommissionRate:   s.CommissionRate,
		CommissionAmount: toPay.Sub(amount),
		ExchangeRate:     s.UsdToUahRate,
	}
}

// UsdtRequested is the USDT amount persisted on the transaction and later
// settled against the trader.
func (q Quote) UsdtRequested() decimal.Decimal {
	return entity.RoundMoney(q.UsdtToReceive)
}
