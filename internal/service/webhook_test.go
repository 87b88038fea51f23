package service_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/repository"
	"github.com/adrienlc/payhub-backend/internal/service"
	"github.com/adrienlc/payhub-backend/internal/testutil"
)

func eventPayload(eventID, eventType, paymentID, reason string) []byte {
	return fmt.Appendf(nil,
		`{"id":%q,"type":%q,"payment_id":%q,"reason":%q}`,
		eventID, eventType, paymentID, reason,
	)
}

func countWebhooks(t *testing.T, db *sql.DB) int {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM webhooks`).Scan(&count); err != nil {
		t.Fatalf("count webhooks: %v", err)
	}
	return count
}

func TestIngestSucceededEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	payment := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "25.00", domain.PaymentStatusPending, domain.PaymentTypePayment)

	payload := eventPayload("evt_1", "payment.succeeded", payment.ProviderPaymentID, "")
	webhook, err := env.webhooks.Ingest(ctx, domain.ProviderStripe, payload, "valid")
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookStatusProcessed, webhook.Status)
	assert.Equal(t, "evt_1", webhook.ProviderEventID)

	refreshed, err := env.paymentRepo.GetByUUID(ctx, payment.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSucceeded, refreshed.Status)
	assert.NotNil(t, refreshed.ProcessedAt)
}

func TestIngestFailedEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	payment := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "25.00", domain.PaymentStatusPending, domain.PaymentTypePayment)

	payload := eventPayload("evt_1", "payment.failed", payment.ProviderPaymentID, "Card declined")
	webhook, err := env.webhooks.Ingest(ctx, domain.ProviderStripe, payload, "valid")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStatusProcessed, webhook.Status)

	refreshed, err := env.paymentRepo.GetByUUID(ctx, payment.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, refreshed.Status)
	require.NotNil(t, refreshed.FailureReason)
	assert.Equal(t, "Card declined", *refreshed.FailureReason)
	assert.NotNil(t, refreshed.FailedAt)
}

func TestIngestDuplicateEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	payment := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "25.00", domain.PaymentStatusPending, domain.PaymentTypePayment)

	payload := eventPayload("evt_1", "payment.succeeded", payment.ProviderPaymentID, "")
	_, err := env.webhooks.Ingest(ctx, domain.ProviderStripe, payload, "valid")
	require.NoError(t, err)

	_, err = env.webhooks.Ingest(ctx, domain.ProviderStripe, payload, "valid")
	assert.ErrorIs(t, err, domain.ErrDuplicateWebhook)

	assert.Equal(t, 1, countWebhooks(t, db))
}

func TestIngestInvalidSignature(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	payload := eventPayload("evt_1", "payment.succeeded", "prov_missing", "")
	_, err := env.webhooks.Ingest(ctx, domain.ProviderStripe, payload, "invalid")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	// Unverified events are never persisted.
	assert.Equal(t, 0, countWebhooks(t, db))
}

func TestIngestMalformedPayload(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	_, err := env.webhooks.Ingest(ctx, domain.ProviderStripe, []byte("not json"), "valid")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, 0, countWebhooks(t, db))
}

func TestIngestUnknownPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	payload := eventPayload("evt_1", "payment.succeeded", "prov_unknown", "")
	webhook, err := env.webhooks.Ingest(ctx, domain.ProviderStripe, payload, "valid")
	require.NoError(t, err)

	// Acknowledged without side effects so the provider stops retrying.
	assert.Equal(t, domain.WebhookStatusProcessed, webhook.Status)
}

func TestIngestUnhandledEventType(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	payload := eventPayload("evt_1", "customer.updated", "", "")
	webhook, err := env.webhooks.Ingest(ctx, domain.ProviderStripe, payload, "valid")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStatusProcessed, webhook.Status)
}

func TestIngestAlreadyTerminalPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	payment := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "25.00", domain.PaymentStatusSucceeded, domain.PaymentTypePayment)

	payload := eventPayload("evt_1", "payment.succeeded", payment.ProviderPaymentID, "")
	webhook, err := env.webhooks.Ingest(ctx, domain.ProviderStripe, payload, "valid")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStatusProcessed, webhook.Status)

	assert.Equal(t, domain.PaymentStatusSucceeded, testutil.GetPaymentStatus(t, db, payment.ID))
}

// brokenPaymentRepo fails the success transition to exercise the
// record-then-fail path.
type brokenPaymentRepo struct {
	*repository.PaymentRepository
}

func (r *brokenPaymentRepo) MarkSucceeded(_ context.Context, _ int64, _ json.RawMessage) error {
	return fmt.Errorf("MarkSucceeded: connection reset")
}

func TestIngestHandlerFailureMarksWebhookFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	payment := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "25.00", domain.PaymentStatusPending, domain.PaymentTypePayment)

	svc := service.NewWebhookService(env.registry, env.webhookRepo, &brokenPaymentRepo{env.paymentRepo})

	payload := eventPayload("evt_1", "payment.succeeded", payment.ProviderPaymentID, "")
	webhook, err := svc.Ingest(ctx, domain.ProviderStripe, payload, "valid")
	require.Error(t, err)
	require.NotNil(t, webhook)
	assert.Equal(t, domain.WebhookStatusFailed, webhook.Status)

	// The event row records the failure for a later retry or inspection.
	var status domain.WebhookStatus
	var errorMessage sql.NullString
	require.NoError(t, db.QueryRow(
		`SELECT status, error_message FROM webhooks WHERE provider_event_id = $1`, "evt_1",
	).Scan(&status, &errorMessage))
	assert.Equal(t, domain.WebhookStatusFailed, status)
	require.True(t, errorMessage.Valid)
	assert.Contains(t, errorMessage.String, "connection reset")

	assert.Equal(t, domain.PaymentStatusPending, testutil.GetPaymentStatus(t, db, payment.ID))
}

func TestIngestUnsupportedProvider(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	payload := eventPayload("evt_1", "payment.succeeded", "prov_x", "")
	_, err := env.webhooks.Ingest(ctx, domain.Provider("square"), payload, "valid")
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)
}
