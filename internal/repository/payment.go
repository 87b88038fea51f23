package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adrienlc/payhub-backend/internal/domain"
)

const paymentColumns = `id, uuid, user_id, payment_method_id, provider,
	provider_payment_id, provider_customer_id, amount, currency, status, type,
	description, metadata, provider_response, processed_at, failed_at,
	failure_reason, created_at, updated_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts the payment and backfills its internal row id.
func (r *PaymentRepository) Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	metadata, err := marshalMetadata(p.Metadata)
	if err != nil {
		return fmt.Errorf("Create: metadata: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO payments (
			uuid, user_id, payment_method_id, provider, provider_payment_id,
			provider_customer_id, amount, currency, status, type, description,
			metadata, provider_response, processed_at, failed_at, failure_reason,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18
		) RETURNING id`,
		p.UUID, p.UserID, p.PaymentMethodID, p.Provider, p.ProviderPaymentID,
		p.ProviderCustomerID, p.Amount, p.Currency, p.Status, p.Type, p.Description,
		metadata, nullableRaw(p.ProviderResponse), p.ProcessedAt, p.FailedAt, p.FailureReason,
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE uuid = $1`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByUUID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByUUID: %w", err)
	}
	return p, nil
}

// GetByProviderPaymentID resolves a provider-assigned payment id to the local
// row, the lookup webhook reconciliation runs on.
func (r *PaymentRepository) GetByProviderPaymentID(ctx context.Context, provider domain.Provider, providerPaymentID string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE provider = $1 AND provider_payment_id = $2`,
		provider, providerPaymentID,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByProviderPaymentID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByProviderPaymentID: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) List(ctx context.Context, userID uuid.UUID, filter domain.PaymentFilter) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1`
	args := []any{userID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Provider != nil {
		args = append(args, *filter.Provider)
		query += fmt.Sprintf(` AND provider = $%d`, len(args))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return payments, nil
}

// UpdateProviderResult applies a provider-reported outcome inside a
// confirmation unit of work.
func (r *PaymentRepository) UpdateProviderResult(ctx context.Context, tx *sql.Tx, id int64, status domain.PaymentStatus, providerResponse json.RawMessage, processedAt, failedAt *time.Time, failureReason *string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $1, provider_response = $2, processed_at = $3, failed_at = $4, failure_reason = $5, updated_at = now()
		WHERE id = $6`,
		status, nullableRaw(providerResponse), processedAt, failedAt, failureReason, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateProviderResult: %w", err)
	}
	return requireRow(res, "UpdateProviderResult")
}

// UpdateProviderResponse refreshes the stored provider snapshot without
// touching status. Used by the sync read-through.
func (r *PaymentRepository) UpdateProviderResponse(ctx context.Context, id int64, providerResponse json.RawMessage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET provider_response = $1, updated_at = now()
		WHERE id = $2`,
		nullableRaw(providerResponse), id,
	)
	if err != nil {
		return fmt.Errorf("UpdateProviderResponse: %w", err)
	}
	return requireRow(res, "UpdateProviderResponse")
}

// MarkSucceeded is the webhook-driven success transition: stamps
// processed_at and stores the raw event.
func (r *PaymentRepository) MarkSucceeded(ctx context.Context, id int64, providerResponse json.RawMessage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = $1, processed_at = now(), provider_response = $2, updated_at = now()
		WHERE id = $3`,
		domain.PaymentStatusSucceeded, nullableRaw(providerResponse), id,
	)
	if err != nil {
		return fmt.Errorf("MarkSucceeded: %w", err)
	}
	return requireRow(res, "MarkSucceeded")
}

// MarkFailed runs on the pool, not a tx: a confirmation failure must
// survive the rollback of the unit of work it aborted.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id int64, reason string, providerResponse json.RawMessage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = $1, failed_at = now(), failure_reason = $2, provider_response = COALESCE($3, provider_response), updated_at = now()
		WHERE id = $4`,
		domain.PaymentStatusFailed, reason, nullableRaw(providerResponse), id,
	)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return requireRow(res, "MarkFailed")
}

func (r *PaymentRepository) MarkCanceled(ctx context.Context, id int64, providerResponse json.RawMessage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = $1, provider_response = COALESCE($2, provider_response), updated_at = now()
		WHERE id = $3`,
		domain.PaymentStatusCanceled, nullableRaw(providerResponse), id,
	)
	if err != nil {
		return fmt.Errorf("MarkCanceled: %w", err)
	}
	return requireRow(res, "MarkCanceled")
}

func (r *PaymentRepository) Stats(ctx context.Context, userID uuid.UUID) (*domain.PaymentStats, error) {
	stats := &domain.PaymentStats{
		TotalAmount:      decimal.Zero,
		TotalRefunded:    decimal.Zero,
		AmountByProvider: make(map[domain.Provider]decimal.Decimal),
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'succeeded'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'succeeded'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'refund'), 0)
		FROM payments WHERE user_id = $1`,
		userID,
	).Scan(
		&stats.TotalPayments, &stats.SucceededPayments, &stats.FailedPayments,
		&stats.PendingPayments, &stats.TotalAmount, &stats.TotalRefunded,
	)
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT provider, COALESCE(SUM(amount), 0) FROM payments
		WHERE user_id = $1 AND status = 'succeeded'
		GROUP BY provider`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("Stats: by provider: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var provider domain.Provider
		var sum decimal.Decimal
		if err := rows.Scan(&provider, &sum); err != nil {
			return nil, fmt.Errorf("Stats: scan: %w", err)
		}
		stats.AmountByProvider[provider] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Stats: rows: %w", err)
	}

	return stats, nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	var paymentMethodID sql.NullInt64
	var metadata, providerResponse []byte

	err := s.Scan(
		&p.ID, &p.UUID, &p.UserID, &paymentMethodID, &p.Provider,
		&p.ProviderPaymentID, &p.ProviderCustomerID, &p.Amount, &p.Currency, &p.Status, &p.Type,
		&p.Description, &metadata, &providerResponse, &p.ProcessedAt, &p.FailedAt,
		&p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paymentMethodID.Valid {
		p.PaymentMethodID = &paymentMethodID.Int64
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(providerResponse) > 0 {
		p.ProviderResponse = providerResponse
	}

	return &p, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func nullableRaw(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func requireRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}
