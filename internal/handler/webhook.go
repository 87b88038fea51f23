package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/logging"
)

type webhookService interface {
	Ingest(ctx context.Context, provider domain.Provider, payload []byte, signature string) (*domain.Webhook, error)
}

type WebhookHandler struct {
	webhooks webhookService
}

func NewWebhookHandler(webhooks webhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Known signature header spellings, checked in order. Each provider sends
// exactly one of these.
var signatureHeaders = []string{
	"Stripe-Signature",
	"Paypal-Transmission-Sig",
	"X-Webhook-Signature",
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	providerName := domain.Provider(r.PathValue("provider"))

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var signature string
	for _, header := range signatureHeaders {
		if v := r.Header.Get(header); v != "" {
			signature = v
			break
		}
	}

	webhook, err := h.webhooks.Ingest(r.Context(), providerName, body, signature)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateWebhook) {
			RespondSuccess(w, http.StatusOK, map[string]bool{
				"received":  true,
				"duplicate": true,
			})
			return
		}
		log.Error("webhook ingestion failed",
			"provider", providerName,
			"error", err,
		)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"received": true,
		"id":       webhook.UUID,
	})
}
