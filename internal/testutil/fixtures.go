package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/adrienlc/payhub-backend/internal/domain"
)

func SeedTestUser(t *testing.T, db *sql.DB, email, name string) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test user %s: %v", email, err)
	}
	return u
}

func SeedPaymentMethod(t *testing.T, db *sql.DB, userID uuid.UUID, provider domain.Provider, isDefault bool) *domain.PaymentMethod {
	t.Helper()

	m := &domain.PaymentMethod{
		UserID:             userID,
		Provider:           provider,
		Type:               domain.PaymentMethodTypeCard,
		ProviderCustomerID: "cus_" + uuid.NewString()[:8],
		ProviderMethodID:   "pm_" + uuid.NewString()[:8],
		IsDefault:          isDefault,
		IsActive:           true,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	if provider == domain.ProviderPayPal {
		m.Type = domain.PaymentMethodTypeWalletAccount
	}

	err := db.QueryRow(
		`INSERT INTO payment_methods (
			user_id, provider, type, provider_customer_id, provider_method_id,
			is_default, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		m.UserID, m.Provider, m.Type, m.ProviderCustomerID, m.ProviderMethodID,
		m.IsDefault, m.IsActive, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
	if err != nil {
		t.Fatalf("seed payment method: %v", err)
	}
	return m
}

func SeedPayment(t *testing.T, db *sql.DB, userID uuid.UUID, provider domain.Provider, amount string, status domain.PaymentStatus, paymentType domain.PaymentType) *domain.Payment {
	t.Helper()

	value, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("parse amount %s: %v", amount, err)
	}

	p := &domain.Payment{
		UUID:              uuid.New(),
		UserID:            userID,
		Provider:          provider,
		ProviderPaymentID: "prov_" + uuid.NewString()[:8],
		Amount:            value,
		Currency:          domain.CurrencyUSD,
		Status:            status,
		Type:              paymentType,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	if status == domain.PaymentStatusSucceeded {
		now := time.Now().UTC()
		p.ProcessedAt = &now
	}

	err = db.QueryRow(
		`INSERT INTO payments (
			uuid, user_id, provider, provider_payment_id, amount, currency,
			status, type, processed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		p.UUID, p.UserID, p.Provider, p.ProviderPaymentID, p.Amount, p.Currency,
		p.Status, p.Type, p.ProcessedAt, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func CountTransactions(t *testing.T, db *sql.DB, paymentID int64) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE payment_id = $1`, paymentID).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for payment %d: %v", paymentID, err)
	}
	return count
}

func GetPaymentStatus(t *testing.T, db *sql.DB, paymentID int64) domain.PaymentStatus {
	t.Helper()

	var status domain.PaymentStatus
	err := db.QueryRow(`SELECT status FROM payments WHERE id = $1`, paymentID).Scan(&status)
	if err != nil {
		t.Fatalf("get payment status %d: %v", paymentID, err)
	}
	return status
}
