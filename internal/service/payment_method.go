package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/logging"
	"github.com/adrienlc/payhub-backend/internal/provider"
)

type RegisterMethodRequest struct {
	UserID    uuid.UUID
	Provider  domain.Provider
	Token     string
	Email     string
	IsDefault bool
}

type PaymentMethodService struct {
	registry gatewayResolver
	methods  paymentMethodRepository
	users    userRepository
	db       *sql.DB
}

func NewPaymentMethodService(registry gatewayResolver, methods paymentMethodRepository, users userRepository, db *sql.DB) *PaymentMethodService {
	return &PaymentMethodService{
		registry: registry,
		methods:  methods,
		users:    users,
		db:       db,
	}
}

// Register attaches an instrument with its provider and stores it locally.
// When the new method is the default, the previous default of the same
// (user, provider) pair is cleared in the same unit of work.
func (s *PaymentMethodService) Register(ctx context.Context, req RegisterMethodRequest) (*domain.PaymentMethod, error) {
	log := logging.FromContext(ctx)

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}
	if strings.TrimSpace(req.Token) == "" {
		return nil, fmt.Errorf("Register: empty token: %w", domain.ErrInvalidRequest)
	}

	gw, err := s.registry.Resolve(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Register: begin tx: %w", err)
	}
	defer tx.Rollback()

	if req.IsDefault {
		if err := s.methods.ClearDefault(ctx, tx, req.UserID, req.Provider); err != nil {
			return nil, fmt.Errorf("Register: %w", err)
		}
	}

	method, err := gw.CreatePaymentMethod(ctx, tx, provider.CreateMethodRequest{
		Owner:     user,
		Token:     req.Token,
		Email:     req.Email,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Register: commit: %w", err)
	}

	log.Info("payment method registered",
		"method_id", method.ID,
		"user_id", req.UserID,
		"provider", method.Provider,
		"type", method.Type,
		"default", method.IsDefault,
	)

	return method, nil
}

func (s *PaymentMethodService) List(ctx context.Context, userID uuid.UUID, p *domain.Provider) ([]domain.PaymentMethod, error) {
	methods, err := s.methods.ListActive(ctx, userID, p)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return methods, nil
}

// SetDefault promotes an active method to be its provider's default,
// demoting the current one in the same unit of work.
func (s *PaymentMethodService) SetDefault(ctx context.Context, userID uuid.UUID, methodID int64) (*domain.PaymentMethod, error) {
	method, err := s.getOwned(ctx, userID, methodID)
	if err != nil {
		return nil, fmt.Errorf("SetDefault: %w", err)
	}
	if !method.IsActive {
		return nil, fmt.Errorf("SetDefault: method is inactive: %w", domain.ErrInvalidState)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SetDefault: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.methods.ClearDefault(ctx, tx, userID, method.Provider); err != nil {
		return nil, fmt.Errorf("SetDefault: %w", err)
	}
	if err := s.methods.SetDefault(ctx, tx, method.ID); err != nil {
		return nil, fmt.Errorf("SetDefault: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SetDefault: commit: %w", err)
	}

	method.IsDefault = true
	return method, nil
}

// Delete detaches and deactivates a method. If the default was deleted, the
// most recently added active sibling is promoted so the provider keeps a
// default while any method remains.
func (s *PaymentMethodService) Delete(ctx context.Context, userID uuid.UUID, methodID int64) error {
	log := logging.FromContext(ctx)

	method, err := s.getOwned(ctx, userID, methodID)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	gw, err := s.registry.Resolve(method.Provider)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	wasDefault := method.IsActive && method.IsDefault

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Delete: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := gw.DeletePaymentMethod(ctx, tx, method); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	if wasDefault {
		next, err := s.methods.MostRecentActive(ctx, tx, userID, method.Provider, method.ID)
		switch {
		case err == nil:
			if err := s.methods.SetDefault(ctx, tx, next.ID); err != nil {
				return fmt.Errorf("Delete: promote: %w", err)
			}
			log.Info("default payment method promoted",
				"method_id", next.ID,
				"user_id", userID,
				"provider", method.Provider,
			)
		case errors.Is(err, domain.ErrNotFound):
			// Last method of this provider; nothing to promote.
		default:
			return fmt.Errorf("Delete: promote: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Delete: commit: %w", err)
	}

	log.Info("payment method deleted",
		"method_id", method.ID,
		"user_id", userID,
		"provider", method.Provider,
	)

	return nil
}

func (s *PaymentMethodService) getOwned(ctx context.Context, userID uuid.UUID, methodID int64) (*domain.PaymentMethod, error) {
	method, err := s.methods.GetByID(ctx, methodID)
	if err != nil {
		return nil, err
	}
	if method.UserID != userID {
		return nil, fmt.Errorf("getOwned: %w", domain.ErrNotFound)
	}
	return method, nil
}
