// Package provider defines the capability contract both payment processors
// are driven through. Everything provider-specific (wire formats, status
// vocabularies, amount units, webhook signatures) stays behind Gateway;
// callers never branch on a provider name outside the Registry lookup.
package provider

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/adrienlc/payhub-backend/internal/domain"
)

// CreatePaymentRequest carries everything a gateway needs to open a
// provider-side payment and mirror it locally. Amount is always in decimal
// major units; unit conversion is the gateway's job.
type CreatePaymentRequest struct {
	Owner       *domain.User
	Amount      decimal.Decimal
	Currency    domain.Currency
	Description string
	Metadata    map[string]string
	Method      *domain.PaymentMethod
}

// CreateMethodRequest registers a provider-side instrument. Token is the
// provider's method handle (a card-processor method token or a wallet payer
// id); Email overrides the owner's email for wallet registrations.
type CreateMethodRequest struct {
	Owner     *domain.User
	Token     string
	Email     string
	IsDefault bool
}

// ConfirmationData is passed through to the provider's finalize call.
type ConfirmationData struct {
	PaymentMethod string
	ReturnURL     string
}

// EventKind is the normalized classification of a provider webhook event.
type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventPaymentFailed    EventKind = "payment_failed"
	EventPaymentCanceled  EventKind = "payment_canceled"
	EventDispute          EventKind = "dispute"
	EventRefundNotice     EventKind = "refund_notice"
	EventUnhandled        EventKind = "unhandled"
)

// WebhookEvent is a provider event translated into provider-neutral terms
// so the reconciler can dispatch without knowing who sent it.
type WebhookEvent struct {
	ProviderEventID   string
	EventType         string
	Kind              EventKind
	ProviderPaymentID string
	FailureReason     string
	Raw               json.RawMessage
}

// Gateway is the uniform capability set over one payment processor.
// Methods taking a *sql.Tx perform their local writes inside the caller's
// unit of work; provider calls themselves are never transactional.
type Gateway interface {
	Name() domain.Provider

	// CreateCustomer registers (or synthesizes) a provider-side customer
	// record for the owner and returns its provider id.
	CreateCustomer(ctx context.Context, owner *domain.User) (string, error)

	// CreatePaymentMethod attaches the instrument provider-side and persists
	// the local PaymentMethod row.
	CreatePaymentMethod(ctx context.Context, tx *sql.Tx, req CreateMethodRequest) (*domain.PaymentMethod, error)

	// CreatePayment opens a provider-side payment object and persists a
	// local Payment in the provider-mapped status. No local record exists if
	// the provider call fails.
	CreatePayment(ctx context.Context, tx *sql.Tx, req CreatePaymentRequest) (*domain.Payment, error)

	// ConfirmPayment finalizes with the provider, applies the mapped status,
	// and on success writes exactly one charge Transaction. On provider
	// failure it returns ErrProviderFailure without local writes; the caller
	// owns persisting the failed state outside its rolled-back scope.
	ConfirmPayment(ctx context.Context, tx *sql.Tx, p *domain.Payment, conf ConfirmationData) (*domain.Payment, error)

	// RefundPayment issues a provider refund and records it as a new Payment
	// of type refund plus one refund Transaction. The original payment row
	// is never touched.
	RefundPayment(ctx context.Context, tx *sql.Tx, p *domain.Payment, amount *decimal.Decimal) (*domain.Payment, error)

	// RetrievePayment is a read-through of the provider's current snapshot.
	RetrievePayment(ctx context.Context, providerPaymentID string) (json.RawMessage, error)

	// DeletePaymentMethod detaches provider-side where supported and
	// deactivates locally. Idempotent: deleting an inactive method succeeds.
	DeletePaymentMethod(ctx context.Context, tx *sql.Tx, m *domain.PaymentMethod) error

	// VerifyWebhook authenticates a raw inbound event against the signature
	// header. Returns domain.ErrInvalidSignature when verification fails.
	VerifyWebhook(payload []byte, signature string) error

	// ParseWebhookEvent translates a raw event into the neutral envelope.
	ParseWebhookEvent(payload []byte) (*WebhookEvent, error)
}
