package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/logging"
	"github.com/adrienlc/payhub-backend/internal/provider"
)

type ProcessPaymentRequest struct {
	UserID          uuid.UUID
	Provider        domain.Provider
	Amount          decimal.Decimal
	Currency        string
	PaymentMethodID *int64
	Description     string
	Metadata        map[string]string
	AutoConfirm     bool
}

type ConfirmPaymentRequest struct {
	PaymentMethod string
	ReturnURL     string
}

type PaymentService struct {
	registry     gatewayResolver
	payments     paymentRepository
	methods      paymentMethodRepository
	transactions transactionRepository
	users        userRepository
	db           *sql.DB
}

func NewPaymentService(
	registry gatewayResolver,
	payments paymentRepository,
	methods paymentMethodRepository,
	transactions transactionRepository,
	users userRepository,
	db *sql.DB,
) *PaymentService {
	return &PaymentService{
		registry:     registry,
		payments:     payments,
		methods:      methods,
		transactions: transactions,
		users:        users,
		db:           db,
	}
}

// Process creates a payment with the requested provider. With AutoConfirm
// set it chains a confirmation in a second unit of work: a confirmation
// failure does not undo the created payment, so the payment is returned in
// its failed state alongside the error.
func (s *PaymentService) Process(ctx context.Context, req ProcessPaymentRequest) (*domain.Payment, error) {
	log := logging.FromContext(ctx)

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}

	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("Process: %w", domain.ErrInvalidAmount)
	}
	currency := domain.NormalizeCurrency(req.Currency)
	if !currency.IsValid() {
		return nil, fmt.Errorf("Process: %w", domain.ErrInvalidCurrency)
	}

	gw, err := s.registry.Resolve(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}

	method, err := s.resolveMethod(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}

	p, err := s.createPayment(ctx, gw, provider.CreatePaymentRequest{
		Owner:       user,
		Amount:      req.Amount,
		Currency:    currency,
		Description: req.Description,
		Metadata:    req.Metadata,
		Method:      method,
	})
	if err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}

	log.Info("payment created",
		"payment_id", p.UUID,
		"provider", p.Provider,
		"amount", p.Amount,
		"currency", p.Currency,
		"status", p.Status,
	)

	if req.AutoConfirm && p.CanBeConfirmed() {
		confirmed, err := s.Confirm(ctx, req.UserID, p.UUID, ConfirmPaymentRequest{})
		if err != nil {
			// The payment exists either way; hand back its persisted state.
			if refreshed, refreshErr := s.payments.GetByUUID(ctx, p.UUID); refreshErr == nil {
				return refreshed, fmt.Errorf("Process: auto confirm: %w", err)
			}
			return p, fmt.Errorf("Process: auto confirm: %w", err)
		}
		return confirmed, nil
	}

	return p, nil
}

// Confirm finalizes a pending or processing payment with its provider. A
// provider-side failure rolls back the confirmation writes and records the
// failed state on the payment row itself.
func (s *PaymentService) Confirm(ctx context.Context, userID uuid.UUID, paymentUUID uuid.UUID, req ConfirmPaymentRequest) (*domain.Payment, error) {
	log := logging.FromContext(ctx)

	p, err := s.getOwned(ctx, userID, paymentUUID)
	if err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}
	if !p.CanBeConfirmed() {
		return nil, fmt.Errorf("Confirm: payment is %s: %w", p.Status, domain.ErrInvalidState)
	}

	gw, err := s.registry.Resolve(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Confirm: begin tx: %w", err)
	}
	defer tx.Rollback()

	confirmed, err := gw.ConfirmPayment(ctx, tx, p, provider.ConfirmationData{
		PaymentMethod: req.PaymentMethod,
		ReturnURL:     req.ReturnURL,
	})
	if err != nil {
		if errors.Is(err, domain.ErrProviderFailure) {
			// Outside the rolled-back tx so the failure outlives it.
			if markErr := s.payments.MarkFailed(ctx, p.ID, err.Error(), nil); markErr != nil {
				log.Error("failed to record payment failure",
					"payment_id", p.UUID,
					"error", markErr,
				)
			}
		}
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Confirm: commit: %w", err)
	}

	log.Info("payment confirmed",
		"payment_id", confirmed.UUID,
		"provider", confirmed.Provider,
		"status", confirmed.Status,
	)

	return confirmed, nil
}

// Refund issues a full or partial refund against a succeeded payment. The
// refund is a new payment row; the original is left untouched.
func (s *PaymentService) Refund(ctx context.Context, userID uuid.UUID, paymentUUID uuid.UUID, amount *decimal.Decimal) (*domain.Payment, error) {
	log := logging.FromContext(ctx)

	p, err := s.getOwned(ctx, userID, paymentUUID)
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}
	if !p.CanBeRefunded() {
		return nil, fmt.Errorf("Refund: payment is %s %s: %w", p.Status, p.Type, domain.ErrInvalidState)
	}
	if amount != nil {
		if !amount.IsPositive() {
			return nil, fmt.Errorf("Refund: %w", domain.ErrInvalidAmount)
		}
		if amount.GreaterThan(p.Amount) {
			return nil, fmt.Errorf("Refund: %w", domain.ErrRefundExceeds)
		}
	}

	gw, err := s.registry.Resolve(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Refund: begin tx: %w", err)
	}
	defer tx.Rollback()

	refund, err := gw.RefundPayment(ctx, tx, p, amount)
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Refund: commit: %w", err)
	}

	log.Info("payment refunded",
		"payment_id", p.UUID,
		"refund_id", refund.UUID,
		"amount", refund.Amount,
	)

	return refund, nil
}

// Sync pulls the provider's current snapshot of a payment and stores it.
// Local status is authoritative and only moves via confirm or webhook; sync
// refreshes the raw provider view for inspection.
func (s *PaymentService) Sync(ctx context.Context, userID uuid.UUID, paymentUUID uuid.UUID) (*domain.Payment, error) {
	p, err := s.getOwned(ctx, userID, paymentUUID)
	if err != nil {
		return nil, fmt.Errorf("Sync: %w", err)
	}

	gw, err := s.registry.Resolve(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("Sync: %w", err)
	}

	snapshot, err := gw.RetrievePayment(ctx, p.ProviderPaymentID)
	if err != nil {
		return nil, fmt.Errorf("Sync: %w", err)
	}
	if err := s.payments.UpdateProviderResponse(ctx, p.ID, snapshot); err != nil {
		return nil, fmt.Errorf("Sync: %w", err)
	}

	p.ProviderResponse = snapshot
	return p, nil
}

// Get returns a payment with its transactions. Payments belonging to other
// users are indistinguishable from missing ones.
func (s *PaymentService) Get(ctx context.Context, userID uuid.UUID, paymentUUID uuid.UUID) (*domain.Payment, []domain.Transaction, error) {
	p, err := s.getOwned(ctx, userID, paymentUUID)
	if err != nil {
		return nil, nil, fmt.Errorf("Get: %w", err)
	}

	transactions, err := s.transactions.ListByPaymentID(ctx, p.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("Get: %w", err)
	}
	return p, transactions, nil
}

func (s *PaymentService) List(ctx context.Context, userID uuid.UUID, filter domain.PaymentFilter) ([]domain.Payment, error) {
	payments, err := s.payments.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return payments, nil
}

func (s *PaymentService) Stats(ctx context.Context, userID uuid.UUID) (*domain.PaymentStats, error) {
	stats, err := s.payments.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	return stats, nil
}

func (s *PaymentService) resolveMethod(ctx context.Context, req ProcessPaymentRequest) (*domain.PaymentMethod, error) {
	if req.PaymentMethodID == nil {
		return nil, nil
	}

	method, err := s.methods.GetByID(ctx, *req.PaymentMethodID)
	if err != nil {
		return nil, fmt.Errorf("resolveMethod: %w", err)
	}
	if method.UserID != req.UserID {
		return nil, fmt.Errorf("resolveMethod: %w", domain.ErrNotFound)
	}
	if method.Provider != req.Provider {
		return nil, fmt.Errorf("resolveMethod: method belongs to %s: %w", method.Provider, domain.ErrInvalidRequest)
	}
	if !method.IsActive {
		return nil, fmt.Errorf("resolveMethod: method is inactive: %w", domain.ErrInvalidState)
	}
	return method, nil
}

func (s *PaymentService) createPayment(ctx context.Context, gw provider.Gateway, req provider.CreatePaymentRequest) (*domain.Payment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("createPayment: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := gw.CreatePayment(ctx, tx, req)
	if err != nil {
		return nil, fmt.Errorf("createPayment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("createPayment: commit: %w", err)
	}
	return p, nil
}

func (s *PaymentService) getOwned(ctx context.Context, userID uuid.UUID, paymentUUID uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetByUUID(ctx, paymentUUID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("getOwned: %w", domain.ErrNotFound)
	}
	return p, nil
}
