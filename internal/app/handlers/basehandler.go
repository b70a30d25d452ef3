package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/devkekops/skipay/internal/app/auth"
	"github.com/devkekops/skipay/internal/app/capacity"
	"github.com/devkekops/skipay/internal/app/ledger"
	"github.com/devkekops/skipay/internal/app/matching"
	"github.com/devkekops/skipay/internal/app/metrics"
	"github.com/devkekops/skipay/internal/app/settings"
	"github.com/devkekops/skipay/internal/app/settlement"
	"github.com/devkekops/skipay/internal/app/stats"
	"github.com/devkekops/skipay/internal/app/storage"
	"github.com/devkekops/skipay/internal/app/sweeper"
	"github.com/devkekops/skipay/internal/app/withdrawal"
)

// Services is everything the HTTP layer talks to.
type Services struct {
	Repo        storage.Repository
	Auth        *auth.Service
	Settings    *settings.StoreProvider
	Ledger      *ledger.Ledger
	Capacity    *capacity.Tracker
	Matching    *matching.Engine
	Settlement  *settlement.Machine
	Sweeper     *sweeper.Sweeper
	Withdrawals *withdrawal.Service
	Stats       *stats.Service
}

type BaseHandler struct {
	*chi.Mux
	Services
}

func NewBaseHandler(svc Services) *BaseHandler {
	bh := &BaseHandler{
		Mux:      chi.NewMux(),
		Services: svc,
	}

	bh.Use(middleware.RequestID)
	bh.Use(middleware.RealIP)
	bh.Use(logHandle)
	bh.Use(middleware.Recoverer)

	bh.Use(middleware.Compress(5))
	bh.Use(gzipHandle)

	bh.Get("/ping", bh.ping())
	bh.Handle("/metrics", metrics.Handler())

	bh.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", bh.register())
		r.Post("/auth/login", bh.login())
		r.Get("/settings/public", bh.publicSettings())

		r.Group(func(r chi.Router) {
			r.Use(authHandle(bh.Auth))

			r.Get("/auth/me", bh.me())
			r.Get("/stats", bh.stats())

			r.Route("/user", func(r chi.Router) {
				r.Post("/request-card", bh.requestCard())
				r.Post("/confirm-payment/{id}", bh.userConfirm())
				r.Post("/cancel/{id}", bh.userCancel())
				r.Get("/transactions", bh.userTransactions())
				r.Post("/withdrawal-request", bh.withdrawalRequest())
				r.Get("/withdrawals", bh.userWithdrawals())
			})

			r.Route("/trader", func(r chi.Router) {
				r.Post("/register", bh.registerTrader())

				r.Group(func(r chi.Router) {
					r.Use(requireTrader)
					r.Get("/info", bh.traderInfo())
					r.Get("/cards", bh.traderCards())
					r.Post("/cards", bh.addCard())
					r.Put("/cards/{id}", bh.updateCard())
					r.Delete("/cards/{id}", bh.deleteCard())
					r.Get("/transactions", bh.traderTransactions())
					r.Post("/toggle-work", bh.toggleWork())
					r.Post("/confirm-payment/{id}", bh.traderConfirm())
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/traders", bh.adminTraders())
				r.Post("/traders/{id}/add-balance", bh.addBalance())
				r.Put("/traders/{id}/block", bh.toggleBlocked())
				r.Put("/cards/{id}/reset-usage", bh.resetUsage())
				r.Get("/transactions", bh.adminTransactions())
				r.Get("/settings", bh.getSettings())
				r.Put("/settings", bh.putSettings())
				r.Get("/withdrawals", bh.adminWithdrawals())
				r.Put("/withdrawals/{id}/approve", bh.approveWithdrawal())
				r.Put("/withdrawals/{id}/reject", bh.rejectWithdrawal())
			})
		})
	})

	return bh
}
