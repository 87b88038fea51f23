package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/provider"
	"github.com/adrienlc/payhub-backend/internal/repository"
	"github.com/adrienlc/payhub-backend/internal/testutil"
)

func TestMapStatus(t *testing.T) {
	cases := map[string]domain.PaymentStatus{
		"requires_payment_method": domain.PaymentStatusPending,
		"requires_confirmation":   domain.PaymentStatusPending,
		"requires_action":         domain.PaymentStatusPending,
		"requires_capture":        domain.PaymentStatusPending,
		"processing":              domain.PaymentStatusProcessing,
		"succeeded":               domain.PaymentStatusSucceeded,
		"Succeeded":               domain.PaymentStatusSucceeded,
		"PROCESSING":              domain.PaymentStatusProcessing,
		"canceled":                domain.PaymentStatusCanceled,
		"something_new":           domain.PaymentStatusFailed,
		"":                        domain.PaymentStatusFailed,
	}
	for input, want := range cases {
		assert.Equal(t, want, mapStatus(input), "status %q", input)
	}
}

func TestToCents(t *testing.T) {
	cases := []struct {
		amount string
		want   int64
	}{
		{"10.00", 1000},
		{"10.99", 1099},
		{"0.01", 1},
		{"10.999", 1099}, // sub-cent precision truncates, never rounds up
		{"0.009", 0},
	}
	for _, tc := range cases {
		amount, err := decimal.NewFromString(tc.amount)
		require.NoError(t, err)
		assert.Equal(t, tc.want, toCents(amount), "amount %s", tc.amount)
	}
}

func signPayload(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook(t *testing.T) {
	g := NewGateway(nil, nil, nil, nil, "whsec_test")
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	t.Run("valid signature", func(t *testing.T) {
		sig := fmt.Sprintf("t=1700000000,v1=%s", signPayload("whsec_test", "1700000000", payload))
		assert.NoError(t, g.VerifyWebhook(payload, sig))
	})

	t.Run("second v1 candidate accepted", func(t *testing.T) {
		sig := fmt.Sprintf("t=1700000000,v1=deadbeef,v1=%s", signPayload("whsec_test", "1700000000", payload))
		assert.NoError(t, g.VerifyWebhook(payload, sig))
	})

	t.Run("wrong secret", func(t *testing.T) {
		sig := fmt.Sprintf("t=1700000000,v1=%s", signPayload("whsec_other", "1700000000", payload))
		assert.ErrorIs(t, g.VerifyWebhook(payload, sig), domain.ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		sig := fmt.Sprintf("t=1700000000,v1=%s", signPayload("whsec_test", "1700000000", payload))
		assert.ErrorIs(t, g.VerifyWebhook([]byte(`{}`), sig), domain.ErrInvalidSignature)
	})

	t.Run("malformed header", func(t *testing.T) {
		assert.ErrorIs(t, g.VerifyWebhook(payload, "not-a-signature"), domain.ErrInvalidSignature)
		assert.ErrorIs(t, g.VerifyWebhook(payload, ""), domain.ErrInvalidSignature)
		assert.ErrorIs(t, g.VerifyWebhook(payload, "v1=abc"), domain.ErrInvalidSignature)
	})
}

// fakeAPI scripts the processor's responses; only the intent calls matter
// for the outcome tests.
type fakeAPI struct {
	createIntent  *Intent
	confirmIntent *Intent
}

func (f *fakeAPI) CreateCustomer(context.Context, CustomerParams) (*Customer, error) {
	return &Customer{ID: "cus_test"}, nil
}

func (f *fakeAPI) CreateIntent(context.Context, IntentParams) (*Intent, error) {
	return f.createIntent, nil
}

func (f *fakeAPI) ConfirmIntent(context.Context, string, ConfirmParams) (*Intent, error) {
	return f.confirmIntent, nil
}

func (f *fakeAPI) GetIntent(context.Context, string) (*Intent, error) {
	return f.confirmIntent, nil
}

func (f *fakeAPI) CreateRefund(context.Context, RefundParams) (*Refund, error) {
	return &Refund{ID: "re_test", Status: "succeeded"}, nil
}

func (f *fakeAPI) AttachMethod(context.Context, string, string) error { return nil }

func (f *fakeAPI) GetMethod(context.Context, string) (*Method, error) {
	return &Method{ID: "pm_test", Type: "card"}, nil
}

func (f *fakeAPI) DetachMethod(context.Context, string) error { return nil }

func TestConfirmPaymentFailedOutcome(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	payments := repository.NewPaymentRepository(db)
	transactions := repository.NewTransactionRepository(db)
	methods := repository.NewPaymentMethodRepository(db)

	api := &fakeAPI{confirmIntent: &Intent{
		ID:               "pi_1",
		Status:           "card_error",
		LastPaymentError: &IntentError{Message: "card declined"},
		Raw:              json.RawMessage(`{"id":"pi_1","status":"card_error"}`),
	}}
	g := NewGateway(api, payments, transactions, methods, "whsec_test")

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	p := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "10.00", domain.PaymentStatusPending, domain.PaymentTypePayment)

	tx, err := db.Begin()
	require.NoError(t, err)
	confirmed, err := g.ConfirmPayment(ctx, tx, p, provider.ConfirmationData{})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, domain.PaymentStatusFailed, confirmed.Status)
	require.NotNil(t, confirmed.FailureReason)
	assert.Equal(t, "card declined", *confirmed.FailureReason)

	stored, err := payments.GetByUUID(ctx, p.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, stored.Status)
	assert.NotNil(t, stored.FailedAt)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "card declined", *stored.FailureReason)
	assert.Nil(t, stored.ProcessedAt)
	assert.Equal(t, 0, testutil.CountTransactions(t, db, p.ID))
}

func TestCreatePaymentFailedOutcome(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	payments := repository.NewPaymentRepository(db)
	transactions := repository.NewTransactionRepository(db)
	methods := repository.NewPaymentMethodRepository(db)

	api := &fakeAPI{createIntent: &Intent{
		ID:     "pi_2",
		Status: "card_error",
		Raw:    json.RawMessage(`{"id":"pi_2","status":"card_error"}`),
	}}
	g := NewGateway(api, payments, transactions, methods, "whsec_test")

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")

	tx, err := db.Begin()
	require.NoError(t, err)
	p, err := g.CreatePayment(ctx, tx, provider.CreatePaymentRequest{
		Owner:    user,
		Amount:   decimal.NewFromInt(10),
		Currency: domain.CurrencyUSD,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	assert.NotNil(t, p.FailedAt)
	require.NotNil(t, p.FailureReason)
	assert.Equal(t, "payment intent status card_error", *p.FailureReason)
	assert.Nil(t, p.ProcessedAt)
}

func TestParseWebhookEvent(t *testing.T) {
	g := NewGateway(nil, nil, nil, nil, "whsec_test")

	t.Run("succeeded", func(t *testing.T) {
		event, err := g.ParseWebhookEvent([]byte(`{
			"id": "evt_1",
			"type": "payment_intent.succeeded",
			"data": {"object": {"id": "pi_123"}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, provider.EventPaymentSucceeded, event.Kind)
		assert.Equal(t, "evt_1", event.ProviderEventID)
		assert.Equal(t, "pi_123", event.ProviderPaymentID)
	})

	t.Run("failed carries reason", func(t *testing.T) {
		event, err := g.ParseWebhookEvent([]byte(`{
			"id": "evt_2",
			"type": "payment_intent.payment_failed",
			"data": {"object": {"id": "pi_123", "last_payment_error": {"message": "card declined"}}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, provider.EventPaymentFailed, event.Kind)
		assert.Equal(t, "card declined", event.FailureReason)
	})

	t.Run("failed without error detail", func(t *testing.T) {
		event, err := g.ParseWebhookEvent([]byte(`{
			"id": "evt_3",
			"type": "payment_intent.payment_failed",
			"data": {"object": {"id": "pi_123"}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "Payment failed", event.FailureReason)
	})

	t.Run("canceled", func(t *testing.T) {
		event, err := g.ParseWebhookEvent([]byte(`{
			"id": "evt_4",
			"type": "payment_intent.canceled",
			"data": {"object": {"id": "pi_123"}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, provider.EventPaymentCanceled, event.Kind)
	})

	t.Run("dispute resolves intent id", func(t *testing.T) {
		event, err := g.ParseWebhookEvent([]byte(`{
			"id": "evt_5",
			"type": "charge.dispute.created",
			"data": {"object": {"id": "dp_1", "payment_intent": "pi_123"}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, provider.EventDispute, event.Kind)
		assert.Equal(t, "pi_123", event.ProviderPaymentID)
	})

	t.Run("unknown type is unhandled", func(t *testing.T) {
		event, err := g.ParseWebhookEvent([]byte(`{"id": "evt_6", "type": "customer.created", "data": {"object": {"id": "cus_1"}}}`))
		require.NoError(t, err)
		assert.Equal(t, provider.EventUnhandled, event.Kind)
	})

	t.Run("missing event id gets a synthetic one", func(t *testing.T) {
		event, err := g.ParseWebhookEvent([]byte(`{"type": "payment_intent.succeeded", "data": {"object": {"id": "pi_123"}}}`))
		require.NoError(t, err)
		assert.NotEmpty(t, event.ProviderEventID)
	})

	t.Run("malformed payload fails closed", func(t *testing.T) {
		_, err := g.ParseWebhookEvent([]byte(`not json`))
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)

		_, err = g.ParseWebhookEvent([]byte(`{}`))
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})
}
