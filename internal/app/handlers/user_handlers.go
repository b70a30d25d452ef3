package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/matching"
	"github.com/devkekops/skipay/internal/app/storage"
)

type cardRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type cardPayload struct {
	BankName         string          `json:"bank_name"`
	CardNumber       string          `json:"card_number"`
	HolderName       string          `json:"holder_name"`
	CardName         string          `json:"card_name,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	AmountToPay      decimal.Decimal `json:"amount_to_pay"`
	Currency         string          `json:"currency"`
	UsdtAmount       decimal.Decimal `json:"usdt_amount"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
}

type cardResponse struct {
	TransactionID string           `json:"transaction_id"`
	Card          cardPayload      `json:"card"`
	ExpiresAt     entity.Timestamp `json:"expires_at"`
}

func (bh *BaseHandler) requestCard() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var in cardRequest
		if err := decodeJSON(req, &in); err != nil {
			writeError(w, req, err)
			return
		}

		a, err := bh.Matching.RequestCard(req.Context(), matching.Request{
			UserID:   callerFrom(req.Context()).User.ID,
			Amount:   in.Amount,
			Currency: in.Currency,
		})
		if err != nil {
			writeError(w, req, err)
			return
		}

		writeJSON(w, http.StatusOK, cardResponse{
			TransactionID: a.Transaction.ID,
			Card: cardPayload{
				BankName:         a.Card.BankName,
				CardNumber:       a.Card.CardNumber,
				HolderName:       a.Card.HolderName,
				CardName:         a.Card.CardName,
				Amount:           a.Quote.Amount,
				AmountToPay:      a.Quote.AmountToPay,
				Currency:         a.Transaction.Currency,
				UsdtAmount:       a.Quote.UsdtRequested(),
				CommissionRate:   a.Quote.CommissionRate,
				CommissionAmount: a.Quote.CommissionAmount,
				ExchangeRate:     a.Quote.ExchangeRate,
			},
			ExpiresAt: a.Transaction.ExpiresAt,
		})
	}
}

func (bh *BaseHandler) userConfirm() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		_, err := bh.Settlement.UserConfirm(req.Context(), callerFrom(req.Context()).User.ID, chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Payment confirmed, waiting for trader"})
	}
}

func (bh *BaseHandler) userCancel() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		_, err := bh.Settlement.UserCancel(req.Context(), callerFrom(req.Context()).User.ID, chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Transaction cancelled"})
	}
}

// newestFirst reverses rows the store returned in creation order. The result
// is never nil so an empty list encodes as [].
func newestFirst[T any](rows []T) []T {
	out := make([]T, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r
	}
	return out
}

func (bh *BaseHandler) userTransactions() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		txs, err := bh.Repo.ListTransactions(req.Context(), storage.TxFilter{UserID: callerFrom(req.Context()).User.ID})
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, newestFirst(txs))
	}
}

type withdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"wallet_address"`
}

func (bh *BaseHandler) withdrawalRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var in withdrawalRequest
		if err := decodeJSON(req, &in); err != nil {
			writeError(w, req, err)
			return
		}

		wd, err := bh.Withdrawals.Request(req.Context(), callerFrom(req.Context()).User.ID, in.Amount, in.WalletAddress)
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, wd)
	}
}

func (bh *BaseHandler) userWithdrawals() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		list, err := bh.Withdrawals.List(req.Context(), callerFrom(req.Context()).User.ID)
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, newestFirst(list))
	}
}
