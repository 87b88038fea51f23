package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/adrienlc/payhub-backend/internal/auth"
	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/service"
)

type paymentMethodService interface {
	Register(ctx context.Context, req service.RegisterMethodRequest) (*domain.PaymentMethod, error)
	List(ctx context.Context, userID uuid.UUID, p *domain.Provider) ([]domain.PaymentMethod, error)
	SetDefault(ctx context.Context, userID uuid.UUID, methodID int64) (*domain.PaymentMethod, error)
	Delete(ctx context.Context, userID uuid.UUID, methodID int64) error
}

type PaymentMethodHandler struct {
	methods paymentMethodService
}

func NewPaymentMethodHandler(methods paymentMethodService) *PaymentMethodHandler {
	return &PaymentMethodHandler{methods: methods}
}

type registerMethodRequest struct {
	Provider  string `json:"provider"`
	Token     string `json:"token"`
	Email     string `json:"email"`
	IsDefault bool   `json:"is_default"`
}

func (r registerMethodRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Provider == "" {
		errs = append(errs, FieldError{Field: "provider", Message: "required"})
	}
	if r.Token == "" {
		errs = append(errs, FieldError{Field: "token", Message: "required"})
	}
	return errs
}

type methodDTO struct {
	ID        int64                    `json:"id"`
	Provider  domain.Provider          `json:"provider"`
	Type      domain.PaymentMethodType `json:"type"`
	Metadata  map[string]string        `json:"metadata,omitempty"`
	IsDefault bool                     `json:"is_default"`
	ExpiresAt *time.Time               `json:"expires_at,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

func toMethodDTO(m *domain.PaymentMethod) methodDTO {
	return methodDTO{
		ID:        m.ID,
		Provider:  m.Provider,
		Type:      m.Type,
		Metadata:  m.Metadata,
		IsDefault: m.IsDefault,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}

func (h *PaymentMethodHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req registerMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	method, err := h.methods.Register(r.Context(), service.RegisterMethodRequest{
		UserID:    userID,
		Provider:  domain.Provider(req.Provider),
		Token:     req.Token,
		Email:     req.Email,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toMethodDTO(method))
}

func (h *PaymentMethodHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var providerFilter *domain.Provider
	if v := r.URL.Query().Get("provider"); v != "" {
		p := domain.Provider(v)
		providerFilter = &p
	}

	methods, err := h.methods.List(r.Context(), userID, providerFilter)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]methodDTO, 0, len(methods))
	for i := range methods {
		dtos = append(dtos, toMethodDTO(&methods[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *PaymentMethodHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	methodID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	method, err := h.methods.SetDefault(r.Context(), userID, methodID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toMethodDTO(method))
}

func (h *PaymentMethodHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	methodID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	if err := h.methods.Delete(r.Context(), userID, methodID); err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]bool{"deleted": true})
}
