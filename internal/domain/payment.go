package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCanceled   PaymentStatus = "canceled"
)

type PaymentType string

const (
	PaymentTypePayment      PaymentType = "payment"
	PaymentTypeRefund       PaymentType = "refund"
	PaymentTypeSubscription PaymentType = "subscription"
)

// Payment is one provider-side payment object mirrored locally. ID is the
// internal row id; UUID is the identity exposed outside the service.
// Payments are never deleted, only transitioned.
type Payment struct {
	ID                 int64
	UUID               uuid.UUID
	UserID             uuid.UUID
	PaymentMethodID    *int64
	Provider           Provider
	ProviderPaymentID  string
	ProviderCustomerID *string
	Amount             decimal.Decimal
	Currency           Currency
	Status             PaymentStatus
	Type               PaymentType
	Description        *string
	Metadata           map[string]string
	ProviderResponse   json.RawMessage
	ProcessedAt        *time.Time
	FailedAt           *time.Time
	FailureReason      *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (p *Payment) IsSuccessful() bool {
	return p.Status == PaymentStatusSucceeded
}

func (p *Payment) IsFailed() bool {
	return p.Status == PaymentStatusFailed
}

// CanBeConfirmed reports whether the payment is still awaiting finalization.
func (p *Payment) CanBeConfirmed() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusProcessing
}

// CanBeRefunded holds for succeeded charges only; refunds themselves are
// never refundable.
func (p *Payment) CanBeRefunded() bool {
	return p.IsSuccessful() && p.Type == PaymentTypePayment
}

// PaymentStats aggregates one owner's payments. Amount sums cover succeeded
// payments only.
type PaymentStats struct {
	TotalPayments     int
	SucceededPayments int
	FailedPayments    int
	PendingPayments   int
	TotalAmount       decimal.Decimal
	TotalRefunded     decimal.Decimal
	AmountByProvider  map[Provider]decimal.Decimal
}

// PaymentFilter narrows list queries; nil fields match everything.
type PaymentFilter struct {
	Status   *PaymentStatus
	Provider *Provider
	Type     *PaymentType
}
