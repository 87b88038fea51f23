package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adrienlc/payhub-backend/internal/domain"
)

const webhookColumns = `id, uuid, provider, event_type, provider_event_id,
	payload, status, attempts, processed_at, error_message, created_at`

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Create records a received event before any processing happens. A unique
// index on (provider, provider_event_id) makes redelivery surface as
// ErrDuplicateWebhook here.
func (r *WebhookRepository) Create(ctx context.Context, w *domain.Webhook) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO webhooks (
			uuid, provider, event_type, provider_event_id, payload, status,
			attempts, processed_at, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		w.UUID, w.Provider, w.EventType, w.ProviderEventID, nullableRaw(w.Payload),
		w.Status, w.Attempts, w.ProcessedAt, w.ErrorMessage, w.CreatedAt,
	).Scan(&w.ID)
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateWebhook)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WebhookRepository) GetByProviderEventID(ctx context.Context, provider domain.Provider, eventID string) (*domain.Webhook, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks
		WHERE provider = $1 AND provider_event_id = $2`,
		provider, eventID,
	)
	w, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByProviderEventID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByProviderEventID: %w", err)
	}
	return w, nil
}

// MarkProcessing bumps the attempt counter, once per processing attempt.
func (r *WebhookRepository) MarkProcessing(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhooks SET status = $1, attempts = attempts + 1
		WHERE id = $2`,
		domain.WebhookStatusProcessing, id,
	)
	if err != nil {
		return fmt.Errorf("MarkProcessing: %w", err)
	}
	return requireRow(res, "MarkProcessing")
}

func (r *WebhookRepository) MarkProcessed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhooks SET status = $1, processed_at = now(), error_message = NULL
		WHERE id = $2`,
		domain.WebhookStatusProcessed, id,
	)
	if err != nil {
		return fmt.Errorf("MarkProcessed: %w", err)
	}
	return requireRow(res, "MarkProcessed")
}

func (r *WebhookRepository) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhooks SET status = $1, error_message = $2
		WHERE id = $3`,
		domain.WebhookStatusFailed, errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return requireRow(res, "MarkFailed")
}

func scanWebhook(s scanner) (*domain.Webhook, error) {
	var w domain.Webhook
	var payload []byte

	err := s.Scan(
		&w.ID, &w.UUID, &w.Provider, &w.EventType, &w.ProviderEventID,
		&payload, &w.Status, &w.Attempts, &w.ProcessedAt, &w.ErrorMessage, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		w.Payload = payload
	}

	return &w, nil
}
