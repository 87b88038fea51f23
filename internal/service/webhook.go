package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/logging"
	"github.com/adrienlc/payhub-backend/internal/provider"
)

// WebhookService reconciles provider events with local payment state. Every
// event is persisted before processing; redelivered events dedup against the
// stored copy and are never processed twice.
type WebhookService struct {
	registry gatewayResolver
	webhooks webhookRepository
	payments paymentRepository
}

func NewWebhookService(registry gatewayResolver, webhooks webhookRepository, payments paymentRepository) *WebhookService {
	return &WebhookService{
		registry: registry,
		webhooks: webhooks,
		payments: payments,
	}
}

// Ingest verifies, records, and applies one inbound provider event.
// ErrDuplicateWebhook means the event was already received; callers should
// acknowledge it without treating it as a failure.
func (s *WebhookService) Ingest(ctx context.Context, providerName domain.Provider, payload []byte, signature string) (*domain.Webhook, error) {
	log := logging.FromContext(ctx)

	gw, err := s.registry.Resolve(providerName)
	if err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}

	if err := gw.VerifyWebhook(payload, signature); err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}

	event, err := gw.ParseWebhookEvent(payload)
	if err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}

	webhook := &domain.Webhook{
		UUID:            uuid.New(),
		Provider:        providerName,
		EventType:       event.EventType,
		ProviderEventID: event.ProviderEventID,
		Payload:         event.Raw,
		Status:          domain.WebhookStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.webhooks.Create(ctx, webhook); err != nil {
		if errors.Is(err, domain.ErrDuplicateWebhook) {
			log.Info("duplicate webhook event ignored",
				"provider", providerName,
				"event_id", event.ProviderEventID,
				"event_type", event.EventType,
			)
		}
		return nil, fmt.Errorf("Ingest: %w", err)
	}

	if err := s.webhooks.MarkProcessing(ctx, webhook.ID); err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}

	if err := s.apply(ctx, providerName, event); err != nil {
		if markErr := s.webhooks.MarkFailed(ctx, webhook.ID, err.Error()); markErr != nil {
			log.Error("failed to record webhook failure", "webhook_id", webhook.UUID, "error", markErr)
		}
		webhook.Status = domain.WebhookStatusFailed
		return webhook, fmt.Errorf("Ingest: %w", err)
	}

	if err := s.webhooks.MarkProcessed(ctx, webhook.ID); err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}
	webhook.Status = domain.WebhookStatusProcessed

	log.Info("webhook processed",
		"provider", providerName,
		"event_id", event.ProviderEventID,
		"event_type", event.EventType,
		"kind", event.Kind,
	)

	return webhook, nil
}

// apply dispatches one parsed event. Events for payments this system never
// created are acknowledged without side effects, as are event kinds that
// carry no state transition.
func (s *WebhookService) apply(ctx context.Context, providerName domain.Provider, event *provider.WebhookEvent) error {
	log := logging.FromContext(ctx)

	switch event.Kind {
	case provider.EventPaymentSucceeded, provider.EventPaymentFailed, provider.EventPaymentCanceled:
	case provider.EventDispute:
		log.Warn("dispute opened",
			"provider", providerName,
			"provider_payment_id", event.ProviderPaymentID,
		)
		return nil
	case provider.EventRefundNotice:
		// Refunds issued through this system are already recorded when they
		// are created; the provider's echo carries no new state.
		log.Info("refund notice received",
			"provider", providerName,
			"provider_payment_id", event.ProviderPaymentID,
		)
		return nil
	default:
		log.Info("unhandled webhook event",
			"provider", providerName,
			"event_type", event.EventType,
		)
		return nil
	}

	p, err := s.payments.GetByProviderPaymentID(ctx, providerName, event.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("webhook for unknown payment",
				"provider", providerName,
				"provider_payment_id", event.ProviderPaymentID,
				"event_type", event.EventType,
			)
			return nil
		}
		return fmt.Errorf("apply: %w", err)
	}

	switch event.Kind {
	case provider.EventPaymentSucceeded:
		if p.Status == domain.PaymentStatusSucceeded {
			return nil
		}
		if err := s.payments.MarkSucceeded(ctx, p.ID, event.Raw); err != nil {
			return fmt.Errorf("apply: %w", err)
		}
	case provider.EventPaymentFailed:
		if p.Status == domain.PaymentStatusFailed {
			return nil
		}
		if err := s.payments.MarkFailed(ctx, p.ID, event.FailureReason, event.Raw); err != nil {
			return fmt.Errorf("apply: %w", err)
		}
	case provider.EventPaymentCanceled:
		if p.Status == domain.PaymentStatusCanceled {
			return nil
		}
		if err := s.payments.MarkCanceled(ctx, p.ID, event.Raw); err != nil {
			return fmt.Errorf("apply: %w", err)
		}
	}

	return nil
}
