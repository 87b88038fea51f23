package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adrienlc/payhub-backend/internal/auth"
	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/service"
)

type paymentService interface {
	Process(ctx context.Context, req service.ProcessPaymentRequest) (*domain.Payment, error)
	Confirm(ctx context.Context, userID uuid.UUID, paymentUUID uuid.UUID, req service.ConfirmPaymentRequest) (*domain.Payment, error)
	Refund(ctx context.Context, userID uuid.UUID, paymentUUID uuid.UUID, amount *decimal.Decimal) (*domain.Payment, error)
	Sync(ctx context.Context, userID uuid.UUID, paymentUUID uuid.UUID) (*domain.Payment, error)
	Get(ctx context.Context, userID uuid.UUID, paymentUUID uuid.UUID) (*domain.Payment, []domain.Transaction, error)
	List(ctx context.Context, userID uuid.UUID, filter domain.PaymentFilter) ([]domain.Payment, error)
	Stats(ctx context.Context, userID uuid.UUID) (*domain.PaymentStats, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type processPaymentRequest struct {
	Provider        string            `json:"provider"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	PaymentMethodID *int64            `json:"payment_method_id"`
	Description     string            `json:"description"`
	Metadata        map[string]string `json:"metadata"`
	AutoConfirm     bool              `json:"auto_confirm"`
}

func (r processPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Provider == "" {
		errs = append(errs, FieldError{Field: "provider", Message: "required"})
	}
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.NormalizeCurrency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be USD, EUR, or GBP"})
	}

	return errs
}

type confirmPaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
	ReturnURL     string `json:"return_url"`
}

type refundPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type paymentDTO struct {
	ID            uuid.UUID            `json:"id"`
	Provider      domain.Provider      `json:"provider"`
	Status        domain.PaymentStatus `json:"status"`
	Type          domain.PaymentType   `json:"type"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      domain.Currency      `json:"currency"`
	Description   *string              `json:"description,omitempty"`
	Metadata      map[string]string    `json:"metadata,omitempty"`
	ProcessedAt   *time.Time           `json:"processed_at,omitempty"`
	FailedAt      *time.Time           `json:"failed_at,omitempty"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

type transactionDTO struct {
	ID          int64                    `json:"id"`
	Type        domain.TransactionType   `json:"type"`
	Amount      decimal.Decimal          `json:"amount"`
	Currency    domain.Currency          `json:"currency"`
	Status      domain.TransactionStatus `json:"status"`
	Reference   *string                  `json:"reference,omitempty"`
	ProcessedAt *time.Time               `json:"processed_at,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
}

type paymentDetailDTO struct {
	paymentDTO
	Transactions []transactionDTO `json:"transactions"`
}

func toPaymentDTO(p *domain.Payment) paymentDTO {
	return paymentDTO{
		ID:            p.UUID,
		Provider:      p.Provider,
		Status:        p.Status,
		Type:          p.Type,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Description:   p.Description,
		Metadata:      p.Metadata,
		ProcessedAt:   p.ProcessedAt,
		FailedAt:      p.FailedAt,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
	}
}

func toTransactionDTOs(transactions []domain.Transaction) []transactionDTO {
	dtos := make([]transactionDTO, 0, len(transactions))
	for _, t := range transactions {
		dtos = append(dtos, transactionDTO{
			ID:          t.ID,
			Type:        t.Type,
			Amount:      t.Amount,
			Currency:    t.Currency,
			Status:      t.Status,
			Reference:   t.Reference,
			ProcessedAt: t.ProcessedAt,
			CreatedAt:   t.CreatedAt,
		})
	}
	return dtos
}

func (h *PaymentHandler) Process(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req processPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	p, err := h.payments.Process(r.Context(), service.ProcessPaymentRequest{
		UserID:          userID,
		Provider:        domain.Provider(req.Provider),
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaymentMethodID: req.PaymentMethodID,
		Description:     req.Description,
		Metadata:        req.Metadata,
		AutoConfirm:     req.AutoConfirm,
	})
	if err != nil {
		// An auto-confirm failure still created the payment; surface the
		// provider error together with the payment's persisted state.
		if p != nil && errors.Is(err, domain.ErrProviderFailure) {
			RespondAppError(w, ErrProviderFailure, toPaymentDTO(p))
			return
		}
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	paymentUUID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	p, transactions, err := h.payments.Get(r.Context(), userID, paymentUUID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, paymentDetailDTO{
		paymentDTO:   toPaymentDTO(p),
		Transactions: toTransactionDTOs(transactions),
	})
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var filter domain.PaymentFilter
	query := r.URL.Query()
	if v := query.Get("status"); v != "" {
		status := domain.PaymentStatus(v)
		filter.Status = &status
	}
	if v := query.Get("provider"); v != "" {
		p := domain.Provider(v)
		filter.Provider = &p
	}
	if v := query.Get("type"); v != "" {
		t := domain.PaymentType(v)
		filter.Type = &t
	}

	payments, err := h.payments.List(r.Context(), userID, filter)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]paymentDTO, 0, len(payments))
	for i := range payments {
		dtos = append(dtos, toPaymentDTO(&payments[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	paymentUUID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req confirmPaymentRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondAppError(w, ErrInvalidRequest, nil)
			return
		}
	}

	p, err := h.payments.Confirm(r.Context(), userID, paymentUUID, service.ConfirmPaymentRequest{
		PaymentMethod: req.PaymentMethod,
		ReturnURL:     req.ReturnURL,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	paymentUUID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	p, err := h.payments.Sync(r.Context(), userID, paymentUUID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	paymentUUID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req refundPaymentRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondAppError(w, ErrInvalidRequest, nil)
			return
		}
	}

	refund, err := h.payments.Refund(r.Context(), userID, paymentUUID, req.Amount)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toPaymentDTO(refund))
}

type statsDTO struct {
	TotalPayments     int                        `json:"total_payments"`
	SucceededPayments int                        `json:"succeeded_payments"`
	FailedPayments    int                        `json:"failed_payments"`
	PendingPayments   int                        `json:"pending_payments"`
	TotalAmount       decimal.Decimal            `json:"total_amount"`
	TotalRefunded     decimal.Decimal            `json:"total_refunded"`
	AmountByProvider  map[string]decimal.Decimal `json:"amount_by_provider"`
}

func (h *PaymentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	stats, err := h.payments.Stats(r.Context(), userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	byProvider := make(map[string]decimal.Decimal, len(stats.AmountByProvider))
	for p, amount := range stats.AmountByProvider {
		byProvider[string(p)] = amount
	}

	RespondSuccess(w, http.StatusOK, statsDTO{
		TotalPayments:     stats.TotalPayments,
		SucceededPayments: stats.SucceededPayments,
		FailedPayments:    stats.FailedPayments,
		PendingPayments:   stats.PendingPayments,
		TotalAmount:       stats.TotalAmount,
		TotalRefunded:     stats.TotalRefunded,
		AmountByProvider:  byProvider,
	})
}
