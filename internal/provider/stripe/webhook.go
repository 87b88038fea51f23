package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/adrienlc/payhub-backend/internal/domain"
	"github.com/adrienlc/payhub-backend/internal/provider"
)

// VerifyWebhook checks the processor's signature header, a comma-separated
// list of t=<timestamp> and v1=<hex hmac> pairs. The signed payload is
// "<timestamp>.<body>" under HMAC-SHA256 with the endpoint secret.
func (g *Gateway) VerifyWebhook(payload []byte, signature string) error {
	var timestamp string
	var candidates []string

	for _, pair := range strings.Split(signature, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return fmt.Errorf("VerifyWebhook: malformed signature header: %w", domain.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return fmt.Errorf("VerifyWebhook: %w", domain.ErrInvalidSignature)
}

// ParseWebhookEvent maps the processor's event envelope to the neutral one.
// A payload that does not decode fails closed, same as a bad signature.
func (g *Gateway) ParseWebhookEvent(payload []byte) (*provider.WebhookEvent, error) {
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID               string       `json:"id"`
				PaymentIntent    string       `json:"payment_intent"`
				LastPaymentError *IntentError `json:"last_payment_error"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Type == "" {
		return nil, fmt.Errorf("ParseWebhookEvent: %w", domain.ErrInvalidSignature)
	}

	event := &provider.WebhookEvent{
		ProviderEventID:   envelope.ID,
		EventType:         envelope.Type,
		ProviderPaymentID: envelope.Data.Object.ID,
		Raw:               payload,
	}

	switch envelope.Type {
	case "payment_intent.succeeded":
		event.Kind = provider.EventPaymentSucceeded
	case "payment_intent.payment_failed":
		event.Kind = provider.EventPaymentFailed
		event.FailureReason = "Payment failed"
		if envelope.Data.Object.LastPaymentError != nil && envelope.Data.Object.LastPaymentError.Message != "" {
			event.FailureReason = envelope.Data.Object.LastPaymentError.Message
		}
	case "payment_intent.canceled":
		event.Kind = provider.EventPaymentCanceled
	case "charge.dispute.created":
		event.Kind = provider.EventDispute
		// Disputes reference the charge; the intent id rides alongside.
		if envelope.Data.Object.PaymentIntent != "" {
			event.ProviderPaymentID = envelope.Data.Object.PaymentIntent
		}
	default:
		event.Kind = provider.EventUnhandled
	}

	if event.ProviderEventID == "" {
		// Never let an id-less event alias another through the dedup index.
		event.ProviderEventID = "evt_" + uuid.NewString()
	}
	return event, nil
}
