package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/devkekops/skipay/internal/app/auth"
	"github.com/devkekops/skipay/internal/app/entity"
)

type key string

const callerKey key = "caller"

func callerFrom(ctx context.Context) auth.Caller {
	c, _ := ctx.Value(callerKey).(auth.Caller)
	return c
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", auth.ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", auth.ErrInvalidToken
	}
	return parts[1], nil
}

func authHandle(svc *auth.Service) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, r, err)
				return
			}
			caller, err := svc.Resolve(r.Context(), token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), callerKey, caller)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireTrader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := callerFrom(r.Context())
		if c.Role() != entity.RoleTrader {
			writeError(w, r, entity.ErrForbidden)
			return
		}
		if c.Trader == nil {
			writeError(w, r, errNoTraderProfile)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func requireAdmin(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !callerFrom(r.Context()).IsAdmin() {
			writeError(w, r, entity.ErrForbidden)
			return
		}
		h.ServeHTTP(w, r)
	})
}
