package paypal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/provider"
)

// VerifyWebhook checks an HMAC-SHA256 hex digest of the payload against the
// signature header. The wallet sandbox sends no usable signature, so an
// empty configured secret turns verification off.
func (g *Gateway) VerifyWebhook(payload []byte, signature string) error {
	if g.webhookSecret == "" {
		return nil
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("VerifyWebhook: %w", domain.ErrInvalidSignature)
	}
	return nil
}

// ParseWebhookEvent maps the wallet's event envelope to the neutral one.
// Capture events reference the checkout order through supplementary data;
// without it the capture id itself is the best available handle.
func (g *Gateway) ParseWebhookEvent(payload []byte) (*provider.WebhookEvent, error) {
	var envelope struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Resource  struct {
			ID                string `json:"id"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.EventType == "" {
		return nil, fmt.Errorf("ParseWebhookEvent: %w", domain.ErrInvalidRequest)
	}

	providerPaymentID := envelope.Resource.SupplementaryData.RelatedIDs.OrderID
	if providerPaymentID == "" {
		providerPaymentID = envelope.Resource.ID
	}

	event := &provider.WebhookEvent{
		ProviderEventID:   envelope.ID,
		EventType:         envelope.EventType,
		ProviderPaymentID: providerPaymentID,
		Raw:               payload,
	}

	switch envelope.EventType {
	case "PAYMENT.CAPTURE.COMPLETED", "CHECKOUT.ORDER.COMPLETED":
		event.Kind = provider.EventPaymentSucceeded
	case "PAYMENT.CAPTURE.DENIED":
		event.Kind = provider.EventPaymentFailed
		event.FailureReason = "Payment capture denied"
	case "PAYMENT.CAPTURE.REFUNDED":
		event.Kind = provider.EventRefundNotice
	default:
		event.Kind = provider.EventUnhandled
	}

	if event.ProviderEventID == "" {
		// Never let an id-less event alias another through the dedup index.
		event.ProviderEventID = "WH-" + uuid.NewString()
	}
	return event, nil
}
