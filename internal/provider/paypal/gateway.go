// Package paypal implements the wallet-processor gateway. Amounts cross the
// wire as two-decimal strings; payments are checkout orders captured on
// confirmation; there is no provider-side method object, so instruments are
// local wallet references.
package paypal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/provider"
)

type paymentStore interface {
	Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error
	UpdateProviderResult(ctx context.Context, tx *sql.Tx, id int64, status domain.PaymentStatus, providerResponse json.RawMessage, processedAt, failedAt *time.Time, failureReason *string) error
}

type transactionStore interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
}

type methodStore interface {
	Create(ctx context.Context, tx *sql.Tx, m *domain.PaymentMethod) error
	Deactivate(ctx context.Context, tx *sql.Tx, id int64) error
}

type Gateway struct {
	api           API
	payments      paymentStore
	transactions  transactionStore
	methods       methodStore
	webhookSecret string
}

// NewGateway builds the wallet gateway. An empty webhookSecret disables
// inbound event verification; see VerifyWebhook.
func NewGateway(api API, payments paymentStore, transactions transactionStore, methods methodStore, webhookSecret string) *Gateway {
	return &Gateway{
		api:           api,
		payments:      payments,
		transactions:  transactions,
		methods:       methods,
		webhookSecret: webhookSecret,
	}
}

func (g *Gateway) Name() domain.Provider {
	return domain.ProviderPayPal
}

// CreateCustomer has no wallet-side counterpart; the payer's email is the
// customer reference.
func (g *Gateway) CreateCustomer(_ context.Context, owner *domain.User) (string, error) {
	return owner.Email, nil
}

func (g *Gateway) CreatePaymentMethod(ctx context.Context, tx *sql.Tx, req provider.CreateMethodRequest) (*domain.PaymentMethod, error) {
	email := req.Email
	if email == "" {
		email = req.Owner.Email
	}

	now := time.Now().UTC()
	method := &domain.PaymentMethod{
		UserID:             req.Owner.ID,
		Provider:           domain.ProviderPayPal,
		Type:               domain.PaymentMethodTypeWalletAccount,
		ProviderCustomerID: email,
		ProviderMethodID:   req.Token,
		Metadata: map[string]string{
			"email":    email,
			"payer_id": req.Token,
		},
		IsDefault: req.IsDefault,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.methods.Create(ctx, tx, method); err != nil {
		return nil, fmt.Errorf("CreatePaymentMethod: %w", err)
	}
	return method, nil
}

func (g *Gateway) CreatePayment(ctx context.Context, tx *sql.Tx, req provider.CreatePaymentRequest) (*domain.Payment, error) {
	order, err := g.api.CreateOrder(ctx, OrderParams{
		ReferenceID: fmt.Sprintf("payment_%d", time.Now().UnixNano()),
		Value:       req.Amount.StringFixed(2),
		Currency:    string(req.Currency),
		Description: req.Description,
	})
	if err != nil {
		return nil, providerErr("CreatePayment", err)
	}

	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if approval := order.ApprovalLink(); approval != "" {
		metadata["approval_url"] = approval
	}

	now := time.Now().UTC()
	status := mapStatus(order.Status)
	customerID := req.Owner.Email
	payment := &domain.Payment{
		UUID:               uuid.New(),
		UserID:             req.Owner.ID,
		Provider:           domain.ProviderPayPal,
		ProviderPaymentID:  order.ID,
		ProviderCustomerID: &customerID,
		Amount:             req.Amount,
		Currency:           req.Currency,
		Status:             status,
		Type:               domain.PaymentTypePayment,
		Metadata:           metadata,
		ProviderResponse:   order.Raw,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.Method != nil {
		payment.PaymentMethodID = &req.Method.ID
	}
	if req.Description != "" {
		payment.Description = &req.Description
	}
	if status == domain.PaymentStatusSucceeded {
		payment.ProcessedAt = &now
	}
	if status == domain.PaymentStatusFailed {
		reason := "order status " + order.Status
		payment.FailedAt = &now
		payment.FailureReason = &reason
	}

	if err := g.payments.Create(ctx, tx, payment); err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}
	return payment, nil
}

func (g *Gateway) ConfirmPayment(ctx context.Context, tx *sql.Tx, p *domain.Payment, _ provider.ConfirmationData) (*domain.Payment, error) {
	order, err := g.api.CaptureOrder(ctx, p.ProviderPaymentID)
	if err != nil {
		return nil, providerErr("ConfirmPayment", err)
	}

	now := time.Now().UTC()
	status := mapStatus(order.Status)

	var processedAt, failedAt *time.Time
	var failureReason *string
	if status == domain.PaymentStatusSucceeded {
		processedAt = &now
	}
	if status == domain.PaymentStatusFailed {
		reason := "order status " + order.Status
		failedAt = &now
		failureReason = &reason
	}

	if err := g.payments.UpdateProviderResult(ctx, tx, p.ID, status, order.Raw, processedAt, failedAt, failureReason); err != nil {
		return nil, fmt.Errorf("ConfirmPayment: %w", err)
	}

	if status == domain.PaymentStatusSucceeded {
		transactionID := order.CaptureID()
		if transactionID == "" {
			transactionID = order.ID
		}
		charge := &domain.Transaction{
			PaymentID:             p.ID,
			Type:                  domain.TransactionTypeCharge,
			Amount:                p.Amount,
			Currency:              p.Currency,
			Status:                domain.TransactionStatusSucceeded,
			ProviderTransactionID: transactionID,
			ProviderResponse:      order.Raw,
			ProcessedAt:           &now,
			CreatedAt:             now,
		}
		if err := g.transactions.Create(ctx, tx, charge); err != nil {
			return nil, fmt.Errorf("ConfirmPayment: %w", err)
		}
	}

	p.Status = status
	p.ProviderResponse = order.Raw
	p.ProcessedAt = processedAt
	p.FailedAt = failedAt
	p.FailureReason = failureReason
	p.UpdatedAt = now
	return p, nil
}

func (g *Gateway) RefundPayment(ctx context.Context, tx *sql.Tx, p *domain.Payment, amount *decimal.Decimal) (*domain.Payment, error) {
	order, err := g.api.GetOrder(ctx, p.ProviderPaymentID)
	if err != nil {
		return nil, providerErr("RefundPayment", err)
	}
	captureID := order.CaptureID()
	if captureID == "" {
		return nil, providerErr("RefundPayment", fmt.Errorf("order %s has no capture", p.ProviderPaymentID))
	}

	refundAmount := p.Amount
	params := RefundParams{Note: "Refund for payment " + p.UUID.String()}
	if amount != nil {
		refundAmount = *amount
		params.Value = refundAmount.StringFixed(2)
		params.Currency = string(p.Currency)
	}

	refund, err := g.api.RefundCapture(ctx, captureID, params)
	if err != nil {
		return nil, providerErr("RefundPayment", err)
	}

	now := time.Now().UTC()
	status := mapStatus(refund.Status)
	description := "Refund for payment " + p.UUID.String()

	refundPayment := &domain.Payment{
		UUID:               uuid.New(),
		UserID:             p.UserID,
		PaymentMethodID:    p.PaymentMethodID,
		Provider:           domain.ProviderPayPal,
		ProviderPaymentID:  refund.ID,
		ProviderCustomerID: p.ProviderCustomerID,
		Amount:             refundAmount,
		Currency:           p.Currency,
		Status:             status,
		Type:               domain.PaymentTypeRefund,
		Description:        &description,
		ProviderResponse:   refund.Raw,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if status == domain.PaymentStatusSucceeded {
		refundPayment.ProcessedAt = &now
	}
	if status == domain.PaymentStatusFailed {
		reason := "refund status " + refund.Status
		refundPayment.FailedAt = &now
		refundPayment.FailureReason = &reason
	}

	if err := g.payments.Create(ctx, tx, refundPayment); err != nil {
		return nil, fmt.Errorf("RefundPayment: %w", err)
	}

	transaction := &domain.Transaction{
		PaymentID:             refundPayment.ID,
		Type:                  domain.TransactionTypeRefund,
		Amount:                refundAmount,
		Currency:              p.Currency,
		Status:                domain.TransactionStatusSucceeded,
		ProviderTransactionID: refund.ID,
		ProviderResponse:      refund.Raw,
		ProcessedAt:           &now,
		CreatedAt:             now,
	}
	if err := g.transactions.Create(ctx, tx, transaction); err != nil {
		return nil, fmt.Errorf("RefundPayment: %w", err)
	}

	return refundPayment, nil
}

func (g *Gateway) RetrievePayment(ctx context.Context, providerPaymentID string) (json.RawMessage, error) {
	order, err := g.api.GetOrder(ctx, providerPaymentID)
	if err != nil {
		return nil, providerErr("RetrievePayment", err)
	}
	return order.Raw, nil
}

// DeletePaymentMethod is purely local: the wallet holds no method object to
// detach.
func (g *Gateway) DeletePaymentMethod(ctx context.Context, tx *sql.Tx, m *domain.PaymentMethod) error {
	if !m.IsActive {
		return nil
	}
	if err := g.methods.Deactivate(ctx, tx, m.ID); err != nil {
		return fmt.Errorf("DeletePaymentMethod: %w", err)
	}
	return nil
}

// mapStatus translates the wallet's status vocabulary, case-insensitively.
// Unknown statuses stay pending, unlike the card processor, because the
// wallet introduces intermediate order states that are still in flight.
func mapStatus(providerStatus string) domain.PaymentStatus {
	switch strings.ToUpper(providerStatus) {
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return domain.PaymentStatusPending
	case "COMPLETED":
		return domain.PaymentStatusSucceeded
	case "CANCELLED":
		return domain.PaymentStatusCanceled
	case "FAILED":
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}

func providerErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrProviderFailure, err)
}
