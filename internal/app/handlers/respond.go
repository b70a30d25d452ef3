package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/devkekops/skipay/internal/app/auth"
	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/logger"
)

var errNoTraderProfile = fmt.Errorf("trader profile: %w", entity.ErrNotFound)

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, entity.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, entity.ErrNoCardsAvailable):
		return http.StatusNotFound, "no_cards_available"
	case errors.Is(err, entity.ErrNoEligibleTrader):
		return http.StatusBadRequest, "no_eligible_trader"
	case errors.Is(err, entity.ErrInsufficientBalance):
		return http.StatusBadRequest, "insufficient_balance"
	case errors.Is(err, entity.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, entity.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, entity.ErrInvalidInput):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, entity.ErrLoginTaken), errors.Is(err, entity.ErrAlreadyTrader):
		return http.StatusConflict, "conflict"
	case errors.Is(err, entity.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, entity.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Kind: kind, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Logger.Err(err).Msg("encode response")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %v: %w", err, entity.ErrInvalidInput)
	}
	return nil
}
