package service_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/provider"
	"github.com/adrienlc/payhub-backend/internal/repository"
	"github.com/adrienlc/payhub-backend/internal/service"
)

// fakeGateway persists through the real repositories so the database state
// after each operation matches what the production gateways produce, while
// the provider side is scripted per test.
type fakeGateway struct {
	name         domain.Provider
	payments     *repository.PaymentRepository
	transactions *repository.TransactionRepository
	methods      *repository.PaymentMethodRepository

	createStatus domain.PaymentStatus
	confirmErr   error
}

func (g *fakeGateway) Name() domain.Provider { return g.name }

func (g *fakeGateway) CreateCustomer(_ context.Context, owner *domain.User) (string, error) {
	return "cus_" + owner.ID.String()[:8], nil
}

func (g *fakeGateway) CreatePaymentMethod(ctx context.Context, tx *sql.Tx, req provider.CreateMethodRequest) (*domain.PaymentMethod, error) {
	now := time.Now().UTC()
	method := &domain.PaymentMethod{
		UserID:             req.Owner.ID,
		Provider:           g.name,
		Type:               domain.PaymentMethodTypeCard,
		ProviderCustomerID: "cus_" + req.Owner.ID.String()[:8],
		ProviderMethodID:   req.Token,
		IsDefault:          req.IsDefault,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := g.methods.Create(ctx, tx, method); err != nil {
		return nil, err
	}
	return method, nil
}

func (g *fakeGateway) CreatePayment(ctx context.Context, tx *sql.Tx, req provider.CreatePaymentRequest) (*domain.Payment, error) {
	status := g.createStatus
	if status == "" {
		status = domain.PaymentStatusPending
	}

	now := time.Now().UTC()
	p := &domain.Payment{
		UUID:              uuid.New(),
		UserID:            req.Owner.ID,
		Provider:          g.name,
		ProviderPaymentID: "fake_" + uuid.NewString()[:8],
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            status,
		Type:              domain.PaymentTypePayment,
		Metadata:          req.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.Method != nil {
		p.PaymentMethodID = &req.Method.ID
	}
	if req.Description != "" {
		p.Description = &req.Description
	}
	if err := g.payments.Create(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (g *fakeGateway) ConfirmPayment(ctx context.Context, tx *sql.Tx, p *domain.Payment, _ provider.ConfirmationData) (*domain.Payment, error) {
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}

	now := time.Now().UTC()
	raw := json.RawMessage(`{"status":"confirmed"}`)
	if err := g.payments.UpdateProviderResult(ctx, tx, p.ID, domain.PaymentStatusSucceeded, raw, &now, nil, nil); err != nil {
		return nil, err
	}

	charge := &domain.Transaction{
		PaymentID:             p.ID,
		Type:                  domain.TransactionTypeCharge,
		Amount:                p.Amount,
		Currency:              p.Currency,
		Status:                domain.TransactionStatusSucceeded,
		ProviderTransactionID: p.ProviderPaymentID,
		ProcessedAt:           &now,
		CreatedAt:             now,
	}
	if err := g.transactions.Create(ctx, tx, charge); err != nil {
		return nil, err
	}

	p.Status = domain.PaymentStatusSucceeded
	p.ProcessedAt = &now
	return p, nil
}

func (g *fakeGateway) RefundPayment(ctx context.Context, tx *sql.Tx, p *domain.Payment, amount *decimal.Decimal) (*domain.Payment, error) {
	refundAmount := p.Amount
	if amount != nil {
		refundAmount = *amount
	}

	now := time.Now().UTC()
	description := "Refund for payment " + p.UUID.String()
	refund := &domain.Payment{
		UUID:              uuid.New(),
		UserID:            p.UserID,
		PaymentMethodID:   p.PaymentMethodID,
		Provider:          g.name,
		ProviderPaymentID: "refund_" + uuid.NewString()[:8],
		Amount:            refundAmount,
		Currency:          p.Currency,
		Status:            domain.PaymentStatusSucceeded,
		Type:              domain.PaymentTypeRefund,
		Description:       &description,
		ProcessedAt:       &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := g.payments.Create(ctx, tx, refund); err != nil {
		return nil, err
	}

	transaction := &domain.Transaction{
		PaymentID:             refund.ID,
		Type:                  domain.TransactionTypeRefund,
		Amount:                refundAmount,
		Currency:              p.Currency,
		Status:                domain.TransactionStatusSucceeded,
		ProviderTransactionID: refund.ProviderPaymentID,
		ProcessedAt:           &now,
		CreatedAt:             now,
	}
	if err := g.transactions.Create(ctx, tx, transaction); err != nil {
		return nil, err
	}
	return refund, nil
}

func (g *fakeGateway) RetrievePayment(_ context.Context, providerPaymentID string) (json.RawMessage, error) {
	return json.RawMessage(`{"id":"` + providerPaymentID + `"}`), nil
}

func (g *fakeGateway) DeletePaymentMethod(ctx context.Context, tx *sql.Tx, m *domain.PaymentMethod) error {
	if !m.IsActive {
		return nil
	}
	return g.methods.Deactivate(ctx, tx, m.ID)
}

func (g *fakeGateway) VerifyWebhook(_ []byte, signature string) error {
	if signature == "invalid" {
		return fmt.Errorf("VerifyWebhook: %w", domain.ErrInvalidSignature)
	}
	return nil
}

type fakeEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

func (g *fakeGateway) ParseWebhookEvent(payload []byte) (*provider.WebhookEvent, error) {
	var e fakeEvent
	if err := json.Unmarshal(payload, &e); err != nil || e.Type == "" {
		return nil, fmt.Errorf("ParseWebhookEvent: %w", domain.ErrInvalidRequest)
	}

	event := &provider.WebhookEvent{
		ProviderEventID:   e.ID,
		EventType:         e.Type,
		ProviderPaymentID: e.PaymentID,
		FailureReason:     e.Reason,
		Raw:               payload,
	}
	switch e.Type {
	case "payment.succeeded":
		event.Kind = provider.EventPaymentSucceeded
	case "payment.failed":
		event.Kind = provider.EventPaymentFailed
	case "payment.canceled":
		event.Kind = provider.EventPaymentCanceled
	default:
		event.Kind = provider.EventUnhandled
	}
	return event, nil
}

type testEnv struct {
	db           *sql.DB
	gateway      *fakeGateway
	registry     *provider.Registry
	payments     *service.PaymentService
	methods      *service.PaymentMethodService
	webhooks     *service.WebhookService
	paymentRepo  *repository.PaymentRepository
	methodRepo   *repository.PaymentMethodRepository
	webhookRepo  *repository.WebhookRepository
	transactions *repository.TransactionRepository
}

func newTestEnv(t *testing.T, db *sql.DB) *testEnv {
	t.Helper()

	paymentRepo := repository.NewPaymentRepository(db)
	methodRepo := repository.NewPaymentMethodRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)
	userRepo := repository.NewUserRepository(db)

	gateway := &fakeGateway{
		name:         domain.ProviderStripe,
		payments:     paymentRepo,
		transactions: transactionRepo,
		methods:      methodRepo,
	}
	registry := provider.NewRegistry(gateway)

	return &testEnv{
		db:           db,
		gateway:      gateway,
		registry:     registry,
		payments:     service.NewPaymentService(registry, paymentRepo, methodRepo, transactionRepo, userRepo, db),
		methods:      service.NewPaymentMethodService(registry, methodRepo, userRepo, db),
		webhooks:     service.NewWebhookService(registry, webhookRepo, paymentRepo),
		paymentRepo:  paymentRepo,
		methodRepo:   methodRepo,
		webhookRepo:  webhookRepo,
		transactions: transactionRepo,
	}
}

func amountOf(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse amount %s: %v", s, err)
	}
	return d
}
