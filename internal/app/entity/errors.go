package entity

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrNoCardsAvailable    = errors.New("no available cards")
	ErrNoEligibleTrader    = errors.New("no working traders available, please try again later")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCapacityExceeded    = errors.New("card limit exceeded")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrNotFound            = errors.New("not found")

	ErrInvalidInput       = errors.New("invalid input")
	ErrLoginTaken         = errors.New("login already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadyTrader      = errors.New("trader profile already exists")
)
