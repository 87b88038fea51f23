package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "pending"
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusProcessed  WebhookStatus = "processed"
	WebhookStatusFailed     WebhookStatus = "failed"
)

// Webhook is one received provider event, recorded before processing so a
// redelivery after a crash is detectable. (Provider, ProviderEventID) is
// unique; a second delivery of the same event id is acknowledged without
// processing. A failed webhook is retried only by provider redelivery.
type Webhook struct {
	ID              int64
	UUID            uuid.UUID
	Provider        Provider
	EventType       string
	ProviderEventID string
	Payload         json.RawMessage
	Status          WebhookStatus
	Attempts        int
	ProcessedAt     *time.Time
	ErrorMessage    *string
	CreatedAt       time.Time
}
