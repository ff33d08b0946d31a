package webhook

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
)

const ProviderSendGrid = "sendgrid"

type SendGrid struct{}

func NewSendGrid() *SendGrid { return &SendGrid{} }

func (*SendGrid) Provider() string { return ProviderSendGrid }

type sendgridEvent struct {
	Event                string            `json:"event"`
	SMTPID               string            `json:"smtp-id"`
	SGMessageID          string            `json:"sg_message_id"`
	Timestamp            int64             `json:"timestamp"`
	Reason               string            `json:"reason"`
	Response             string            `json:"response"`
	Type                 string            `json:"type"`
	BounceClassification string            `json:"bounce_classification"`
	OrganizationID       flexID            `json:"organization_id"`
	CustomArgs           map[string]string `json:"custom_args"`
}

var sendgridSoftClassifications = map[string]bool{
	"technical":                    true,
	"mailbox unavailable":          true,
	"frequency or volume too high": true,
}

func (s *SendGrid) Normalize(body []byte) ([]entity.WebhookEvent, error) {
	items, err := decodeArray(body)
	if err != nil {
		return nil, err
	}

	out := make([]entity.WebhookEvent, 0, len(items))
	for i, raw := range items {
		var e sendgridEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			slog.Warn("skipping malformed sendgrid event", "index", i, "error", err)
			continue
		}
		out = append(out, s.normalize(e))
	}

	return out, nil
}

func (s *SendGrid) normalize(e sendgridEvent) entity.WebhookEvent {
	evt := entity.WebhookEvent{
		Provider:          ProviderSendGrid,
		RawType:           e.Event,
		ProviderMessageID: sendgridMessageID(e),
		OrganizationID:    int64(e.OrganizationID),
		Reason:            e.Reason,
	}
	if evt.OrganizationID == 0 {
		evt.OrganizationID = parseID(e.CustomArgs[tagOrganizationID])
	}
	if e.Timestamp > 0 {
		evt.OccurredAt = time.Unix(e.Timestamp, 0).UTC()
	}
	if evt.Reason == "" {
		evt.Reason = e.Response
	}

	switch e.Event {
	case "delivered":
		evt.EventType = entity.WebhookEventDelivered
	case "deferred":
		evt.EventType = entity.WebhookEventDeferred
	case "dropped":
		evt.EventType = entity.WebhookEventDropped
		evt.BounceClass = entity.BounceClassBlocked
	case "bounce":
		evt.EventType = entity.WebhookEventBounce
		evt.BounceClass = sendgridBounceClass(e)
	default:
		evt.EventType = entity.WebhookEventUnknown
	}

	return evt
}

// sendgridMessageID prefers the Message-ID header we set; sg_message_id is
// SendGrid's own id with a ".filter..." suffix.
func sendgridMessageID(e sendgridEvent) string {
	if id := strings.Trim(strings.TrimSpace(e.SMTPID), "<>"); id != "" {
		return id
	}
	id, _, _ := strings.Cut(e.SGMessageID, ".")
	return id
}

func sendgridBounceClass(e sendgridEvent) entity.BounceClass {
	if e.Type == "blocked" {
		return entity.BounceClassBlocked
	}
	class := strings.ToLower(strings.TrimSpace(e.BounceClassification))
	switch {
	case class == "":
		return entity.BounceClassHard
	case sendgridSoftClassifications[class]:
		return entity.BounceClassSoft
	case class == "unclassified":
		return entity.BounceClassUnknown
	default:
		return entity.BounceClassHard
	}
}
