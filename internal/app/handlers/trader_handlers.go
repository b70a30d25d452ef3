package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/capacity"
	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/ledger"
	"github.com/devkekops/skipay/internal/app/logger"
	"github.com/devkekops/skipay/internal/app/storage"
)

type traderInfoResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Nickname    string          `json:"nickname"`
	UsdtAddress string          `json:"usdt_address"`
	UsdtBalance decimal.Decimal `json:"usdt_balance"`
	IsWorking   bool            `json:"is_working"`
	IsBlocked   bool            `json:"is_blocked"`
}

func (bh *BaseHandler) traderInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		t := callerFrom(req.Context()).Trader
		writeJSON(w, http.StatusOK, traderInfoResponse{
			ID:          t.ID,
			Name:        t.Name,
			Nickname:    t.Nickname,
			UsdtAddress: t.UsdtAddress,
			UsdtBalance: t.UsdtBalance,
			IsWorking:   t.IsWorking,
			IsBlocked:   t.IsBlocked,
		})
	}
}

type newCardRequest struct {
	CardNumber string          `json:"card_number"`
	BankName   string          `json:"bank_name"`
	HolderName string          `json:"holder_name"`
	CardName   string          `json:"card_name"`
	Limit      decimal.Decimal `json:"limit"`
	Currency   string          `json:"currency"`
}

func (bh *BaseHandler) addCard() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var in newCardRequest
		if err := decodeJSON(req, &in); err != nil {
			writeError(w, req, err)
			return
		}

		card, err := bh.Capacity.AddCard(req.Context(), callerFrom(req.Context()).Trader.ID, capacity.NewCard{
			CardNumber: in.CardNumber,
			BankName:   in.BankName,
			HolderName: in.HolderName,
			CardName:   in.CardName,
			Limit:      in.Limit,
			Currency:   in.Currency,
		})
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, card)
	}
}

func (bh *BaseHandler) traderCards() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		cards, err := bh.Capacity.Cards(req.Context(), callerFrom(req.Context()).Trader.ID)
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, cards)
	}
}

type cardUpdateRequest struct {
	Limit    *decimal.Decimal   `json:"limit"`
	Status   *entity.CardStatus `json:"status"`
	CardName *string            `json:"card_name"`
}

func (bh *BaseHandler) updateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var in cardUpdateRequest
		if err := decodeJSON(req, &in); err != nil {
			writeError(w, req, err)
			return
		}

		card, err := bh.Capacity.Update(req.Context(), callerFrom(req.Context()).Trader.ID, chi.URLParam(req, "id"),
			capacity.CardUpdate{Limit: in.Limit, Status: in.Status, CardName: in.CardName})
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}

func (bh *BaseHandler) deleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := bh.Capacity.Delete(req.Context(), callerFrom(req.Context()).Trader.ID, chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Card deleted successfully"})
	}
}

type cardBrief struct {
	CardNumber string `json:"card_number"`
	BankName   string `json:"bank_name"`
	CardName   string `json:"card_name,omitempty"`
}

type traderTransaction struct {
	entity.Transaction
	Card *cardBrief `json:"card,omitempty"`
}

func (bh *BaseHandler) traderTransactions() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		traderID := callerFrom(req.Context()).Trader.ID
		if _, err := bh.Sweeper.SweepTrader(req.Context(), traderID); err != nil {
			logger.Logger.Error().Err(err).Str("trader_id", traderID).Msg("lazy sweep failed")
		}

		txs, err := bh.Repo.ListTransactions(req.Context(), storage.TxFilter{TraderID: traderID})
		if err != nil {
			writeError(w, req, err)
			return
		}
		// deleted cards included, old transactions still point at them
		cards, err := bh.Repo.ListCardsByTrader(req.Context(), traderID)
		if err != nil {
			writeError(w, req, err)
			return
		}
		byID := make(map[string]cardBrief, len(cards))
		for _, c := range cards {
			byID[c.ID] = cardBrief{CardNumber: c.CardNumber, BankName: c.BankName, CardName: c.CardName}
		}

		out := make([]traderTransaction, 0, len(txs))
		for _, t := range newestFirst(txs) {
			tt := traderTransaction{Transaction: t}
			if c, ok := byID[t.CardID]; ok {
				tt.Card = &c
			}
			out = append(out, tt)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type toggleWorkResponse struct {
	IsWorking bool   `json:"is_working"`
	Message   string `json:"message"`
}

func (bh *BaseHandler) toggleWork() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		t, err := bh.Ledger.ToggleWork(req.Context(), callerFrom(req.Context()).Trader.ID)
		if err != nil {
			writeError(w, req, err)
			return
		}
		msg := "Work mode disabled"
		if t.IsWorking {
			msg = "Work mode enabled"
		}
		writeJSON(w, http.StatusOK, toggleWorkResponse{IsWorking: t.IsWorking, Message: msg})
	}
}

type traderConfirmResponse struct {
	Message                string          `json:"message"`
	UsdtSentToUser         decimal.Decimal `json:"usdt_sent_to_user"`
	UsdtDeductedFromTrader decimal.Decimal `json:"usdt_deducted_from_trader"`
	UahReceived            decimal.Decimal `json:"uah_received"`
	Rate                   decimal.Decimal `json:"rate"`
	Balance                decimal.Decimal `json:"balance"`
	Warning                string          `json:"warning,omitempty"`
}

func (bh *BaseHandler) traderConfirm() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		c, err := bh.Settlement.TraderConfirm(req.Context(), callerFrom(req.Context()).Trader.ID, chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, req, err)
			return
		}

		out := traderConfirmResponse{
			Message:                "Transaction completed",
			UsdtSentToUser:         c.UsdtSent,
			UsdtDeductedFromTrader: c.UsdtDeducted,
			UahReceived:            c.UahReceived,
			Rate:                   c.Rate,
			Balance:                c.Balance,
		}
		if c.AutoDisabled {
			out.Warning = fmt.Sprintf("balance %s USDT is below %s USDT, work mode disabled",
				c.Balance.StringFixed(entity.MoneyPlaces), ledger.MinWorkingBalance.StringFixed(entity.MoneyPlaces))
		}
		writeJSON(w, http.StatusOK, out)
	}
}
