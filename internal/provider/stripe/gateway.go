// Package stripe implements the card-processor gateway. Amounts cross the
// wire in minor units (cents); webhook authenticity uses the timestamped
// HMAC signature scheme.
package stripe

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
	return domain.ProviderStripe
}

func (g *Gateway) CreateCustomer(ctx context.Context, owner *domain.User) (string, error) {
	customer, err := g.api.CreateCustomer(ctx, CustomerParams{
		Email:    owner.Email,
		Name:     owner.Name,
		Metadata: map[string]string{"user_id": owner.ID.String()},
	})
	if err != nil {
		return "", providerErr("CreateCustomer", err)
	}
	return customer.ID, nil
}

func (g *Gateway) CreatePaymentMethod(ctx context.Context, tx *sql.Tx, req provider.CreateMethodRequest) (*domain.PaymentMethod, error) {
	customerID, err := g.CreateCustomer(ctx, req.Owner)
	if err != nil {
		return nil, fmt.Errorf("CreatePaymentMethod: %w", err)
	}

	if err := g.api.AttachMethod(ctx, req.Token, customerID); err != nil {
		return nil, providerErr("CreatePaymentMethod", err)
	}
	apiMethod, err := g.api.GetMethod(ctx, req.Token)
	if err != nil {
		return nil, providerErr("CreatePaymentMethod", err)
	}

	now := time.Now().UTC()
	method := &domain.PaymentMethod{
		UserID:             req.Owner.ID,
		Provider:           domain.ProviderStripe,
		Type:               mapMethodType(apiMethod.Type),
		ProviderCustomerID: customerID,
		ProviderMethodID:   apiMethod.ID,
		Metadata:           methodMetadata(apiMethod),
		IsDefault:          req.IsDefault,
		IsActive:           true,
		ExpiresAt:          cardExpiry(apiMethod.Card),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := g.methods.Create(ctx, tx, method); err != nil {
		return nil, fmt.Errorf("CreatePaymentMethod: %w", err)
	}
	return method, nil
}

func (g *Gateway) CreatePayment(ctx context.Context, tx *sql.Tx, req provider.CreatePaymentRequest) (*domain.Payment, error) {
	params := IntentParams{
		AmountCents: toCents(req.Amount),
		Currency:    string(req.Currency),
		Description: req.Description,
		Metadata:    intentMetadata(req),
	}
	if req.Method != nil {
		params.CustomerID = req.Method.ProviderCustomerID
		params.MethodID = req.Method.ProviderMethodID
		params.Confirm = true
	}

	intent, err := g.api.CreateIntent(ctx, params)
	if err != nil {
		return nil, providerErr("CreatePayment", err)
	}

	now := time.Now().UTC()
	status := mapStatus(intent.Status)
	payment := &domain.Payment{
		UUID:              uuid.New(),
		UserID:            req.Owner.ID,
		Provider:          domain.ProviderStripe,
		ProviderPaymentID: intent.ID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            status,
		Type:              domain.PaymentTypePayment,
		Metadata:          req.Metadata,
		ProviderResponse:  intent.Raw,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.Method != nil {
		payment.PaymentMethodID = &req.Method.ID
	}
	if intent.Customer != "" {
		payment.ProviderCustomerID = &intent.Customer
	}
	if req.Description != "" {
		payment.Description = &req.Description
	}
	if status == domain.PaymentStatusSucceeded {
		payment.ProcessedAt = &now
	}
	if status == domain.PaymentStatusFailed {
		reason := failureDetail(intent)
		payment.FailedAt = &now
		payment.FailureReason = &reason
	}

	if err := g.payments.Create(ctx, tx, payment); err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}
	return payment, nil
}

func (g *Gateway) ConfirmPayment(ctx context.Context, tx *sql.Tx, p *domain.Payment, conf provider.ConfirmationData) (*domain.Payment, error) {
	intent, err := g.api.ConfirmIntent(ctx, p.ProviderPaymentID, ConfirmParams{
		PaymentMethod: conf.PaymentMethod,
		ReturnURL:     conf.ReturnURL,
	})
	if err != nil {
		return nil, providerErr("ConfirmPayment", err)
	}

	now := time.Now().UTC()
	status := mapStatus(intent.Status)

	var processedAt, failedAt *time.Time
	var failureReason *string
	if status == domain.PaymentStatusSucceeded {
		processedAt = &now
	}
	if status == domain.PaymentStatusFailed {
		reason := failureDetail(intent)
		failedAt = &now
		failureReason = &reason
	}

	if err := g.payments.UpdateProviderResult(ctx, tx, p.ID, status, intent.Raw, processedAt, failedAt, failureReason); err != nil {
		return nil, fmt.Errorf("ConfirmPayment: %w", err)
	}

	if status == domain.PaymentStatusSucceeded {
		charge := &domain.Transaction{
			PaymentID:             p.ID,
			Type:                  domain.TransactionTypeCharge,
			Amount:                p.Amount,
			Currency:              p.Currency,
			Status:                domain.TransactionStatusSucceeded,
			ProviderTransactionID: intent.ID,
			ProviderResponse:      intent.Raw,
			ProcessedAt:           &now,
			CreatedAt:             now,
		}
		if err := g.transactions.Create(ctx, tx, charge); err != nil {
			return nil, fmt.Errorf("ConfirmPayment: %w", err)
		}
	}

	p.Status = status
	p.ProviderResponse = intent.Raw
	p.ProcessedAt = processedAt
	p.FailedAt = failedAt
	p.FailureReason = failureReason
	p.UpdatedAt = now
	return p, nil
}

func (g *Gateway) RefundPayment(ctx context.Context, tx *sql.Tx, p *domain.Payment, amount *decimal.Decimal) (*domain.Payment, error) {
	refundAmount := p.Amount
	params := RefundParams{IntentID: p.ProviderPaymentID}
	if amount != nil {
		refundAmount = *amount
		cents := toCents(refundAmount)
		params.AmountCents = &cents
	}

	refund, err := g.api.CreateRefund(ctx, params)
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
		Provider:           domain.ProviderStripe,
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
	intent, err := g.api.GetIntent(ctx, providerPaymentID)
	if err != nil {
		return nil, providerErr("RetrievePayment", err)
	}
	return intent.Raw, nil
}

func (g *Gateway) DeletePaymentMethod(ctx context.Context, tx *sql.Tx, m *domain.PaymentMethod) error {
	if !m.IsActive {
		return nil
	}
	if err := g.api.DetachMethod(ctx, m.ProviderMethodID); err != nil {
		return providerErr("DeletePaymentMethod", err)
	}
	if err := g.methods.Deactivate(ctx, tx, m.ID); err != nil {
		return fmt.Errorf("DeletePaymentMethod: %w", err)
	}
	return nil
}

// mapStatus translates the processor's intent status vocabulary,
// case-insensitively. Every pre-capture state is pending; anything
// unrecognized is failed.
func mapStatus(providerStatus string) domain.PaymentStatus {
	switch strings.ToLower(providerStatus) {
	case "requires_payment_method", "requires_confirmation", "requires_action", "requires_capture":
		return domain.PaymentStatusPending
	case "processing":
		return domain.PaymentStatusProcessing
	case "succeeded":
		return domain.PaymentStatusSucceeded
	case "canceled":
		return domain.PaymentStatusCanceled
	default:
		return domain.PaymentStatusFailed
	}
}

func mapMethodType(providerType string) domain.PaymentMethodType {
	switch providerType {
	case "card":
		return domain.PaymentMethodTypeCard
	case "sepa_debit", "us_bank_account":
		return domain.PaymentMethodTypeBankAccount
	default:
		return domain.PaymentMethodTypeCard
	}
}

// failureDetail prefers the processor's own error message over the bare
// status when recording why a payment failed.
func failureDetail(intent *Intent) string {
	if intent.LastPaymentError != nil && intent.LastPaymentError.Message != "" {
		return intent.LastPaymentError.Message
	}
	return "payment intent status " + intent.Status
}

// toCents converts a major-unit amount to minor units, truncating toward
// zero past two decimal places.
func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func intentMetadata(req provider.CreatePaymentRequest) map[string]string {
	metadata := map[string]string{"user_id": req.Owner.ID.String()}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	return metadata
}

func methodMetadata(m *Method) map[string]string {
	if m.Card == nil {
		return nil
	}
	return map[string]string{
		"brand":     m.Card.Brand,
		"last4":     m.Card.Last4,
		"exp_month": fmt.Sprintf("%02d", m.Card.ExpMonth),
		"exp_year":  fmt.Sprintf("%d", m.Card.ExpYear),
		"country":   m.Card.Country,
	}
}

// cardExpiry is the first instant after the card's expiry month.
func cardExpiry(card *CardDetail) *time.Time {
	if card == nil || card.ExpYear == 0 {
		return nil
	}
	expiry := time.Date(card.ExpYear, time.Month(card.ExpMonth), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return &expiry
}

func providerErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrProviderFailure, err)
}
