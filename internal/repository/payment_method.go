package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/adrienlc/payhub-backend/internal/domain"
)

const methodColumns = `id, user_id, provider, type, provider_customer_id,
	provider_method_id, metadata, is_default, is_active, expires_at,
	created_at, updated_at`

type PaymentMethodRepository struct {
	db *sql.DB
}

func NewPaymentMethodRepository(db *sql.DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

func (r *PaymentMethodRepository) Create(ctx context.Context, tx *sql.Tx, m *domain.PaymentMethod) error {
	metadata, err := marshalMetadata(m.Metadata)
	if err != nil {
		return fmt.Errorf("Create: metadata: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO payment_methods (
			user_id, provider, type, provider_customer_id, provider_method_id,
			metadata, is_default, is_active, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		m.UserID, m.Provider, m.Type, m.ProviderCustomerID, m.ProviderMethodID,
		metadata, m.IsDefault, m.IsActive, m.ExpiresAt, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentMethodRepository) GetByID(ctx context.Context, id int64) (*domain.PaymentMethod, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+methodColumns+` FROM payment_methods WHERE id = $1`, id,
	)
	m, err := scanPaymentMethod(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return m, nil
}

// ListActive returns active methods, default first, then newest first.
func (r *PaymentMethodRepository) ListActive(ctx context.Context, userID uuid.UUID, provider *domain.Provider) ([]domain.PaymentMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM payment_methods
		WHERE user_id = $1 AND is_active = true`
	args := []any{userID}

	if provider != nil {
		args = append(args, *provider)
		query += fmt.Sprintf(` AND provider = $%d`, len(args))
	}
	query += ` ORDER BY is_default DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		m, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActive: scan: %w", err)
		}
		methods = append(methods, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListActive: rows: %w", err)
	}
	return methods, nil
}

// ClearDefault drops the default flag on every active method of
// (user, provider). Runs inside the unit of work that promotes a sibling so
// the one-default invariant holds at commit.
func (r *PaymentMethodRepository) ClearDefault(ctx context.Context, tx *sql.Tx, userID uuid.UUID, provider domain.Provider) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payment_methods SET is_default = false, updated_at = now()
		WHERE user_id = $1 AND provider = $2 AND is_active = true AND is_default = true`,
		userID, provider,
	)
	if err != nil {
		return fmt.Errorf("ClearDefault: %w", err)
	}
	return nil
}

func (r *PaymentMethodRepository) SetDefault(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_methods SET is_default = true, updated_at = now()
		WHERE id = $1 AND is_active = true`,
		id,
	)
	if err != nil {
		return fmt.Errorf("SetDefault: %w", err)
	}
	return requireRow(res, "SetDefault")
}

// Deactivate soft-deletes a method. The default flag drops with it so an
// inactive row can never shadow the invariant.
func (r *PaymentMethodRepository) Deactivate(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_methods SET is_active = false, is_default = false, updated_at = now()
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	return requireRow(res, "Deactivate")
}

// MostRecentActive finds the promotion candidate after a default method is
// deleted. Reads through the tx to observe the deactivation.
func (r *PaymentMethodRepository) MostRecentActive(ctx context.Context, tx *sql.Tx, userID uuid.UUID, provider domain.Provider, excludeID int64) (*domain.PaymentMethod, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+methodColumns+` FROM payment_methods
		WHERE user_id = $1 AND provider = $2 AND is_active = true AND id != $3
		ORDER BY created_at DESC LIMIT 1`,
		userID, provider, excludeID,
	)
	m, err := scanPaymentMethod(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("MostRecentActive: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("MostRecentActive: %w", err)
	}
	return m, nil
}

// CountActiveDefaults exists for invariant checks in tests.
func (r *PaymentMethodRepository) CountActiveDefaults(ctx context.Context, userID uuid.UUID, provider domain.Provider) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_methods
		WHERE user_id = $1 AND provider = $2 AND is_active = true AND is_default = true`,
		userID, provider,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("CountActiveDefaults: %w", err)
	}
	return count, nil
}

func scanPaymentMethod(s scanner) (*domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	var metadata []byte

	err := s.Scan(
		&m.ID, &m.UserID, &m.Provider, &m.Type, &m.ProviderCustomerID,
		&m.ProviderMethodID, &metadata, &m.IsDefault, &m.IsActive, &m.ExpiresAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &m, nil
}
