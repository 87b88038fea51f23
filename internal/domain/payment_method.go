package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentMethodType string

const (
	PaymentMethodTypeCard          PaymentMethodType = "card"
	PaymentMethodTypeBankAccount   PaymentMethodType = "bank_account"
	PaymentMethodTypeWalletAccount PaymentMethodType = "wallet_account"
)

// PaymentMethod is a provider-side instrument registered for a user.
// Methods are soft-deleted (IsActive=false) because payments keep
// referencing them. Among active methods, at most one per (user, provider)
// carries IsDefault.
type PaymentMethod struct {
	ID                 int64
	UserID             uuid.UUID
	Provider           Provider
	Type               PaymentMethodType
	ProviderCustomerID string
	ProviderMethodID   string
	Metadata           map[string]string
	IsDefault          bool
	IsActive           bool
	ExpiresAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
