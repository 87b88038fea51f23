package service

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/provider"
)

type userRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type paymentRepository interface {
	GetByUUID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByProviderPaymentID(ctx context.Context, p domain.Provider, providerPaymentID string) (*domain.Payment, error)
	List(ctx context.Context, userID uuid.UUID, filter domain.PaymentFilter) ([]domain.Payment, error)
	UpdateProviderResponse(ctx context.Context, id int64, providerResponse json.RawMessage) error
	MarkSucceeded(ctx context.Context, id int64, providerResponse json.RawMessage) error
	MarkFailed(ctx context.Context, id int64, reason string, providerResponse json.RawMessage) error
	MarkCanceled(ctx context.Context, id int64, providerResponse json.RawMessage) error
	Stats(ctx context.Context, userID uuid.UUID) (*domain.PaymentStats, error)
}

type paymentMethodRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.PaymentMethod, error)
	ListActive(ctx context.Context, userID uuid.UUID, p *domain.Provider) ([]domain.PaymentMethod, error)
	ClearDefault(ctx context.Context, tx *sql.Tx, userID uuid.UUID, p domain.Provider) error
	SetDefault(ctx context.Context, tx *sql.Tx, id int64) error
	MostRecentActive(ctx context.Context, tx *sql.Tx, userID uuid.UUID, p domain.Provider, excludeID int64) (*domain.PaymentMethod, error)
}

type transactionRepository interface {
	ListByPaymentID(ctx context.Context, paymentID int64) ([]domain.Transaction, error)
}

type webhookRepository interface {
	Create(ctx context.Context, w *domain.Webhook) error
	MarkProcessing(ctx context.Context, id int64) error
	MarkProcessed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
}

type gatewayResolver interface {
	Resolve(name domain.Provider) (provider.Gateway, error)
}
