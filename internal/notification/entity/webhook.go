package entity

import "time"

// WebhookEventType is the normalized provider event kind.
type WebhookEventType string

const (
	WebhookEventDelivered WebhookEventType = "delivered"
	WebhookEventBounce    WebhookEventType = "bounce"
	WebhookEventDropped   WebhookEventType = "dropped"
	WebhookEventDeferred  WebhookEventType = "deferred"
	WebhookEventUnknown   WebhookEventType = "unknown"
)

// WebhookEvent is a provider callback after normalization.
type WebhookEvent struct {
	Provider          string
	EventType         WebhookEventType
	RawType           string
	ProviderMessageID string
	OrganizationID    int64
	Reason            string
	BounceClass       BounceClass
	OccurredAt        time.Time
}
