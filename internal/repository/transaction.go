package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adrienlc/payhub-backend/internal/domain"
)

const transactionColumns = `id, payment_id, type, amount, currency, status,
	provider_transaction_id, provider_response, reference, processed_at, created_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction inside the unit of work that transitioned
// its payment, so a succeeded payment and its transaction commit together.
func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO transactions (
			payment_id, type, amount, currency, status, provider_transaction_id,
			provider_response, reference, processed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		t.PaymentID, t.Type, t.Amount, t.Currency, t.Status, t.ProviderTransactionID,
		nullableRaw(t.ProviderResponse), t.Reference, t.ProcessedAt, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) ListByPaymentID(ctx context.Context, paymentID int64) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE payment_id = $1 ORDER BY created_at`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByPaymentID: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByPaymentID: scan: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByPaymentID: rows: %w", err)
	}
	return transactions, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var providerResponse []byte

	err := s.Scan(
		&t.ID, &t.PaymentID, &t.Type, &t.Amount, &t.Currency, &t.Status,
		&t.ProviderTransactionID, &providerResponse, &t.Reference, &t.ProcessedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(providerResponse) > 0 {
		t.ProviderResponse = providerResponse
	}

	return &t, nil
}
