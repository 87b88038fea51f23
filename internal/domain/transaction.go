package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeCharge   TransactionType = "charge"
	TransactionTypeRefund   TransactionType = "refund"
	TransactionTypeTransfer TransactionType = "transfer"
	TransactionTypeFee      TransactionType = "fee"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction records money movement under a payment. Exactly one charge
// transaction exists per successfully confirmed payment, and one refund
// transaction per refund payment.
type Transaction struct {
	ID                    int64
	PaymentID             int64
	Type                  TransactionType
	Amount                decimal.Decimal
	Currency              Currency
	Status                TransactionStatus
	ProviderTransactionID string
	ProviderResponse      json.RawMessage
	Reference             *string
	ProcessedAt           *time.Time
	CreatedAt             time.Time
}
