package handlers

import (
	"net/http"

	"github.com/devkekops/skipay/internal/app/auth"
	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/logger"
)

type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type meResponse struct {
	User   entity.User    `json:"user"`
	Role   entity.Role    `json:"role"`
	Trader *entity.Trader `json:"trader,omitempty"`
}

func (bh *BaseHandler) ping() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := bh.Repo.Ping(req.Context()); err != nil {
			writeError(w, req, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (bh *BaseHandler) register() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var creds Credentials
		if err := decodeJSON(req, &creds); err != nil {
			writeError(w, req, err)
			return
		}

		u, err := bh.Auth.Register(req.Context(), creds.Login, creds.Password)
		if err != nil {
			writeError(w, req, err)
			return
		}
		logger.Logger.Info().Str("user_id", u.ID).Str("login", u.Login).Msg("user registered")
		writeJSON(w, http.StatusCreated, u)
	}
}

func (bh *BaseHandler) login() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var creds Credentials
		if err := decodeJSON(req, &creds); err != nil {
			writeError(w, req, err)
			return
		}

		token, err := bh.Auth.Login(req.Context(), creds.Login, creds.Password)
		if err != nil {
			writeError(w, req, err)
			return
		}
		w.Header().Set("Authorization", "Bearer "+token)
		writeJSON(w, http.StatusOK, tokenResponse{Token: token})
	}
}

func (bh *BaseHandler) me() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		c := callerFrom(req.Context())
		writeJSON(w, http.StatusOK, meResponse{User: c.User, Role: c.Role(), Trader: c.Trader})
	}
}

type traderRegisterRequest struct {
	Name        string `json:"name"`
	Nickname    string `json:"nickname"`
	UsdtAddress string `json:"usdt_address"`
	Phone       string `json:"phone"`
}

func (bh *BaseHandler) registerTrader() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var in traderRegisterRequest
		if err := decodeJSON(req, &in); err != nil {
			writeError(w, req, err)
			return
		}

		t, err := bh.Auth.BecomeTrader(req.Context(), callerFrom(req.Context()).User, auth.TraderProfile{
			Name:        in.Name,
			Nickname:    in.Nickname,
			UsdtAddress: in.UsdtAddress,
			Phone:       in.Phone,
		})
		if err != nil {
			writeError(w, req, err)
			return
		}
		logger.Logger.Info().Str("trader_id", t.ID).Str("user_id", t.UserID).Msg("trader registered")
		writeJSON(w, http.StatusCreated, t)
	}
}

type publicSettingsResponse struct {
	DepositWalletAddress string `json:"deposit_wallet_address"`
}

func (bh *BaseHandler) publicSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		s := bh.Settings.Current(req.Context())
		writeJSON(w, http.StatusOK, publicSettingsResponse{DepositWalletAddress: s.DepositWalletAddress})
	}
}

func (bh *BaseHandler) stats() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		c := callerFrom(req.Context())
		var (
			out interface{}
			err error
		)
		switch {
		case c.IsAdmin():
			out, err = bh.Stats.Admin(req.Context())
		case c.IsTrader():
			out, err = bh.Stats.Trader(req.Context(), *c.Trader)
		default:
			out, err = bh.Stats.User(req.Context(), c.User.ID)
		}
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
