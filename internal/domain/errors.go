package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
	ErrProviderFailure     = errors.New("provider request failed")
	ErrInvalidState        = errors.New("operation not allowed in current state")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidCurrency     = errors.New("unsupported currency")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrRefundExceeds       = errors.New("refund amount exceeds original payment")
	ErrDuplicateWebhook    = errors.New("webhook event already received")
	ErrEmailTaken          = errors.New("email already registered")
)
