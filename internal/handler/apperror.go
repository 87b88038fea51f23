package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrEmailTaken          = &AppError{http.StatusConflict, "EMAIL_TAKEN", "Email is already registered"}
	ErrUnsupportedProvider = &AppError{http.StatusBadRequest, "UNSUPPORTED_PROVIDER", "Payment provider is not supported"}
	ErrProviderFailure     = &AppError{http.StatusBadGateway, "PROVIDER_ERROR", "Payment provider request failed"}
	ErrInvalidState        = &AppError{http.StatusUnprocessableEntity, "INVALID_STATE", "Operation not allowed in the current payment state"}
	ErrInvalidSignature    = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature is invalid"}
	ErrInvalidAmount       = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidCurrency     = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrRefundExceeds       = &AppError{http.StatusUnprocessableEntity, "REFUND_EXCEEDS_AMOUNT", "Refund amount exceeds the original payment"}
)
