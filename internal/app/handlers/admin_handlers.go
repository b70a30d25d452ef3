package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/storage"
	"github.com/devkekops/skipay/internal/app/withdrawal"
)

func (bh *BaseHandler) adminTraders() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		traders, err := bh.Repo.ListTraders(req.Context())
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, traders)
	}
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (bh *BaseHandler) addBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var in amountRequest
		if err := decodeJSON(req, &in); err != nil {
			writeError(w, req, err)
			return
		}

		t, err := bh.Ledger.Credit(req.Context(), chi.URLParam(req, "id"), in.Amount)
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func (bh *BaseHandler) toggleBlocked() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		t, err := bh.Ledger.ToggleBlocked(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func (bh *BaseHandler) resetUsage() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		c, err := bh.Capacity.ResetUsage(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func (bh *BaseHandler) adminTransactions() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		txs, err := bh.Repo.ListTransactions(req.Context(), storage.TxFilter{})
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, newestFirst(txs))
	}
}

func (bh *BaseHandler) getSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, bh.Settings.Current(req.Context()))
	}
}

func (bh *BaseHandler) putSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var in entity.Settings
		if err := decodeJSON(req, &in); err != nil {
			writeError(w, req, err)
			return
		}
		if err := bh.Settings.Update(req.Context(), in); err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, bh.Settings.Current(req.Context()))
	}
}

func (bh *BaseHandler) adminWithdrawals() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		list, err := bh.Withdrawals.List(req.Context(), "")
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (bh *BaseHandler) approveWithdrawal() http.HandlerFunc {
	return bh.decideWithdrawal((*withdrawal.Service).Approve)
}

func (bh *BaseHandler) rejectWithdrawal() http.HandlerFunc {
	return bh.decideWithdrawal((*withdrawal.Service).Reject)
}

func (bh *BaseHandler) decideWithdrawal(decide func(*withdrawal.Service, context.Context, string) (entity.Withdrawal, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		wd, err := decide(bh.Withdrawals, req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, wd)
	}
}
