package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/service"
	"github.com/adrienlc/payhub-backend/internal/testutil"
)

func TestProcessPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")

	p, err := env.payments.Process(ctx, service.ProcessPaymentRequest{
		UserID:      user.ID,
		Provider:    domain.ProviderStripe,
		Amount:      amountOf(t, "25.50"),
		Currency:    "usd",
		Description: "order #42",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, p.Status)
	assert.Equal(t, domain.PaymentTypePayment, p.Type)
	assert.Equal(t, domain.CurrencyUSD, p.Currency)
	assert.True(t, amountOf(t, "25.50").Equal(p.Amount))
	assert.Nil(t, p.ProcessedAt)

	// Creation alone never records a transaction.
	assert.Equal(t, 0, testutil.CountTransactions(t, db, p.ID))

	listed, err := env.payments.List(ctx, user.ID, domain.PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, p.UUID, listed[0].UUID)
}

func TestProcessPaymentValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")

	tests := []struct {
		name    string
		req     service.ProcessPaymentRequest
		wantErr error
	}{
		{
			name: "zero amount",
			req: service.ProcessPaymentRequest{
				UserID: user.ID, Provider: domain.ProviderStripe,
				Amount: amountOf(t, "0"), Currency: "USD",
			},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name: "negative amount",
			req: service.ProcessPaymentRequest{
				UserID: user.ID, Provider: domain.ProviderStripe,
				Amount: amountOf(t, "-5"), Currency: "USD",
			},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name: "unknown currency",
			req: service.ProcessPaymentRequest{
				UserID: user.ID, Provider: domain.ProviderStripe,
				Amount: amountOf(t, "10"), Currency: "XYZ",
			},
			wantErr: domain.ErrInvalidCurrency,
		},
		{
			name: "unknown provider",
			req: service.ProcessPaymentRequest{
				UserID: user.ID, Provider: domain.Provider("square"),
				Amount: amountOf(t, "10"), Currency: "USD",
			},
			wantErr: domain.ErrUnsupportedProvider,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.payments.Process(ctx, tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestProcessPaymentAutoConfirm(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")

	p, err := env.payments.Process(ctx, service.ProcessPaymentRequest{
		UserID:      user.ID,
		Provider:    domain.ProviderStripe,
		Amount:      amountOf(t, "10.00"),
		Currency:    "USD",
		AutoConfirm: true,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusSucceeded, p.Status)
	assert.NotNil(t, p.ProcessedAt)
	assert.Equal(t, 1, testutil.CountTransactions(t, db, p.ID))
}

func TestProcessPaymentAutoConfirmFailureKeepsPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	env.gateway.confirmErr = fmt.Errorf("ConfirmPayment: %w: card declined", domain.ErrProviderFailure)

	p, err := env.payments.Process(ctx, service.ProcessPaymentRequest{
		UserID:      user.ID,
		Provider:    domain.ProviderStripe,
		Amount:      amountOf(t, "10.00"),
		Currency:    "USD",
		AutoConfirm: true,
	})
	require.ErrorIs(t, err, domain.ErrProviderFailure)

	// The created payment survives the failed confirmation, marked failed.
	require.NotNil(t, p)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	assert.Equal(t, domain.PaymentStatusFailed, testutil.GetPaymentStatus(t, db, p.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, p.ID))
}

func TestConfirmPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")

	p, err := env.payments.Process(ctx, service.ProcessPaymentRequest{
		UserID:   user.ID,
		Provider: domain.ProviderStripe,
		Amount:   amountOf(t, "99.99"),
		Currency: "EUR",
	})
	require.NoError(t, err)

	confirmed, err := env.payments.Confirm(ctx, user.ID, p.UUID, service.ConfirmPaymentRequest{})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusSucceeded, confirmed.Status)
	assert.NotNil(t, confirmed.ProcessedAt)
	assert.Equal(t, 1, testutil.CountTransactions(t, db, p.ID))
}

func TestConfirmPaymentInvalidState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	p := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "10.00", domain.PaymentStatusSucceeded, domain.PaymentTypePayment)

	_, err := env.payments.Confirm(ctx, user.ID, p.UUID, service.ConfirmPaymentRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// The rejected confirmation leaves no trace.
	assert.Equal(t, 0, testutil.CountTransactions(t, db, p.ID))
	assert.Equal(t, domain.PaymentStatusSucceeded, testutil.GetPaymentStatus(t, db, p.ID))
}

func TestConfirmPaymentProviderFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")

	p, err := env.payments.Process(ctx, service.ProcessPaymentRequest{
		UserID:   user.ID,
		Provider: domain.ProviderStripe,
		Amount:   amountOf(t, "10.00"),
		Currency: "USD",
	})
	require.NoError(t, err)

	env.gateway.confirmErr = fmt.Errorf("ConfirmPayment: %w: card declined", domain.ErrProviderFailure)

	_, err = env.payments.Confirm(ctx, user.ID, p.UUID, service.ConfirmPaymentRequest{})
	require.ErrorIs(t, err, domain.ErrProviderFailure)

	// Failed state is persisted even though the confirmation rolled back.
	assert.Equal(t, domain.PaymentStatusFailed, testutil.GetPaymentStatus(t, db, p.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, p.ID))

	refreshed, _, err := env.payments.Get(ctx, user.ID, p.UUID)
	require.NoError(t, err)
	assert.NotNil(t, refreshed.FailedAt)
	assert.NotNil(t, refreshed.FailureReason)
}

func TestRefundPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	original := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "50.00", domain.PaymentStatusSucceeded, domain.PaymentTypePayment)

	refund, err := env.payments.Refund(ctx, user.ID, original.UUID, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentTypeRefund, refund.Type)
	assert.Equal(t, domain.PaymentStatusSucceeded, refund.Status)
	assert.True(t, amountOf(t, "50.00").Equal(refund.Amount))
	assert.NotEqual(t, original.UUID, refund.UUID)

	// Original row is untouched.
	assert.Equal(t, domain.PaymentStatusSucceeded, testutil.GetPaymentStatus(t, db, original.ID))
	assert.Equal(t, 1, testutil.CountTransactions(t, db, refund.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, original.ID))
}

func TestRefundPaymentPartial(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	original := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "50.00", domain.PaymentStatusSucceeded, domain.PaymentTypePayment)

	partial := amountOf(t, "20.00")
	refund, err := env.payments.Refund(ctx, user.ID, original.UUID, &partial)
	require.NoError(t, err)
	assert.True(t, partial.Equal(refund.Amount))
}

func TestRefundPaymentValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	succeeded := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "50.00", domain.PaymentStatusSucceeded, domain.PaymentTypePayment)
	pending := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "50.00", domain.PaymentStatusPending, domain.PaymentTypePayment)
	refundRow := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "50.00", domain.PaymentStatusSucceeded, domain.PaymentTypeRefund)

	t.Run("pending payment", func(t *testing.T) {
		_, err := env.payments.Refund(ctx, user.ID, pending.UUID, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("refund of a refund", func(t *testing.T) {
		_, err := env.payments.Refund(ctx, user.ID, refundRow.UUID, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("amount exceeds original", func(t *testing.T) {
		tooMuch := amountOf(t, "50.01")
		_, err := env.payments.Refund(ctx, user.ID, succeeded.UUID, &tooMuch)
		assert.ErrorIs(t, err, domain.ErrRefundExceeds)
	})

	t.Run("zero amount", func(t *testing.T) {
		zero := amountOf(t, "0")
		_, err := env.payments.Refund(ctx, user.ID, succeeded.UUID, &zero)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})
}

func TestSyncPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	p := testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "10.00", domain.PaymentStatusPending, domain.PaymentTypePayment)

	synced, err := env.payments.Sync(ctx, user.ID, p.UUID)
	require.NoError(t, err)
	assert.NotEmpty(t, synced.ProviderResponse)

	// Sync stores the snapshot but never moves status.
	refreshed, err := env.paymentRepo.GetByUUID(ctx, p.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, refreshed.Status)
	assert.NotEmpty(t, refreshed.ProviderResponse)
}

func TestPaymentOwnership(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	owner := testutil.SeedTestUser(t, db, "owner@test.com", "Owner")
	other := testutil.SeedTestUser(t, db, "other@test.com", "Other")
	p := testutil.SeedPayment(t, db, owner.ID, domain.ProviderStripe, "10.00", domain.PaymentStatusSucceeded, domain.PaymentTypePayment)

	_, _, err := env.payments.Get(ctx, other.ID, p.UUID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.payments.Confirm(ctx, other.ID, p.UUID, service.ConfirmPaymentRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.payments.Refund(ctx, other.ID, p.UUID, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaymentStats(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "10.00", domain.PaymentStatusSucceeded, domain.PaymentTypePayment)
	testutil.SeedPayment(t, db, user.ID, domain.ProviderPayPal, "20.00", domain.PaymentStatusSucceeded, domain.PaymentTypePayment)
	testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "5.00", domain.PaymentStatusFailed, domain.PaymentTypePayment)
	testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "7.00", domain.PaymentStatusPending, domain.PaymentTypePayment)
	testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "4.00", domain.PaymentStatusSucceeded, domain.PaymentTypeRefund)

	stats, err := env.payments.Stats(ctx, user.ID)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalPayments)
	assert.Equal(t, 3, stats.SucceededPayments)
	assert.Equal(t, 1, stats.FailedPayments)
	assert.Equal(t, 1, stats.PendingPayments)
	assert.True(t, amountOf(t, "34.00").Equal(stats.TotalAmount), "total %s", stats.TotalAmount)
	assert.True(t, amountOf(t, "4.00").Equal(stats.TotalRefunded), "refunded %s", stats.TotalRefunded)
	assert.True(t, amountOf(t, "14.00").Equal(stats.AmountByProvider[domain.ProviderStripe]))
	assert.True(t, amountOf(t, "20.00").Equal(stats.AmountByProvider[domain.ProviderPayPal]))
}

func TestListPaymentsFiltered(t *testing.T) {
	db := testutil.SetupTestDB(t)
	env := newTestEnv(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "10.00", domain.PaymentStatusSucceeded, domain.PaymentTypePayment)
	testutil.SeedPayment(t, db, user.ID, domain.ProviderPayPal, "20.00", domain.PaymentStatusPending, domain.PaymentTypePayment)
	testutil.SeedPayment(t, db, user.ID, domain.ProviderStripe, "5.00", domain.PaymentStatusSucceeded, domain.PaymentTypeRefund)

	status := domain.PaymentStatusSucceeded
	byStatus, err := env.payments.List(ctx, user.ID, domain.PaymentFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)

	providerFilter := domain.ProviderPayPal
	byProvider, err := env.payments.List(ctx, user.ID, domain.PaymentFilter{Provider: &providerFilter})
	require.NoError(t, err)
	assert.Len(t, byProvider, 1)

	refundType := domain.PaymentTypeRefund
	byType, err := env.payments.List(ctx, user.ID, domain.PaymentFilter{Type: &refundType})
	require.NoError(t, err)
	assert.Len(t, byType, 1)
}
