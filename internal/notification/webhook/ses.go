package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
)

const ProviderSES = "ses"

// ErrSNSEnvelope is returned when the body is not an SNS message.
var ErrSNSEnvelope = errors.New("webhook: not an sns envelope")

// SES reads SES events delivered through an SNS HTTP subscription. Both the
// event publishing (eventType) and notification (notificationType) shapes are accepted.
type SES struct{}

func NewSES() *SES { return &SES{} }

func (*SES) Provider() string { return ProviderSES }

type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

type sesEvent struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string              `json:"messageId"`
		Timestamp time.Time           `json:"timestamp"`
		Tags      map[string][]string `json:"tags"`
	} `json:"mail"`
	Bounce *struct {
		BounceType        string `json:"bounceType"`
		BounceSubType     string `json:"bounceSubType"`
		BouncedRecipients []struct {
			DiagnosticCode string `json:"diagnosticCode"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Delivery *struct {
		Timestamp time.Time `json:"timestamp"`
	} `json:"delivery"`
	DeliveryDelay *struct {
		DelayType string    `json:"delayType"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"deliveryDelay"`
	Reject *struct {
		Reason string `json:"reason"`
	} `json:"reject"`
}

func (s *SES) Normalize(body []byte) ([]entity.WebhookEvent, error) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case "Notification":
	case "SubscriptionConfirmation", "UnsubscribeConfirmation":
		slog.Info("sns subscription message received", "type", env.Type, "subscribe_url", env.SubscribeURL)
		return nil, nil
	default:
		return nil, ErrSNSEnvelope
	}

	var e sesEvent
	if err := json.Unmarshal([]byte(env.Message), &e); err != nil {
		slog.Warn("skipping malformed ses event", "sns_message_id", env.MessageID, "error", err)
		return nil, nil
	}

	return []entity.WebhookEvent{s.normalize(e)}, nil
}

func (s *SES) normalize(e sesEvent) entity.WebhookEvent {
	rawType := e.EventType
	if rawType == "" {
		rawType = e.NotificationType
	}

	evt := entity.WebhookEvent{
		Provider:          ProviderSES,
		RawType:           rawType,
		ProviderMessageID: e.Mail.MessageID,
		OccurredAt:        e.Mail.Timestamp,
	}
	if v := e.Mail.Tags[tagOrganizationID]; len(v) > 0 {
		evt.OrganizationID = parseID(v[0])
	}

	switch rawType {
	case "Delivery":
		evt.EventType = entity.WebhookEventDelivered
		if e.Delivery != nil {
			evt.OccurredAt = e.Delivery.Timestamp
		}
	case "Bounce":
		evt.EventType = entity.WebhookEventBounce
		evt.BounceClass = entity.BounceClassUnknown
		if b := e.Bounce; b != nil {
			evt.BounceClass = sesBounceClass(b.BounceType, b.BounceSubType)
			evt.Reason = b.BounceType + "/" + b.BounceSubType
			if len(b.BouncedRecipients) > 0 && b.BouncedRecipients[0].DiagnosticCode != "" {
				evt.Reason = b.BouncedRecipients[0].DiagnosticCode
			}
		}
	case "Reject":
		evt.EventType = entity.WebhookEventDropped
		evt.BounceClass = entity.BounceClassBlocked
		if e.Reject != nil {
			evt.Reason = e.Reject.Reason
		}
	case "DeliveryDelay":
		evt.EventType = entity.WebhookEventDeferred
		if e.DeliveryDelay != nil {
			evt.Reason = e.DeliveryDelay.DelayType
			evt.OccurredAt = e.DeliveryDelay.Timestamp
		}
	default:
		evt.EventType = entity.WebhookEventUnknown
	}

	return evt
}

func sesBounceClass(bounceType, subType string) entity.BounceClass {
	switch bounceType {
	case "Permanent":
		if strings.Contains(subType, "Suppress") {
			return entity.BounceClassBlocked
		}
		return entity.BounceClassHard
	case "Transient":
		return entity.BounceClassSoft
	default:
		return entity.BounceClassUnknown
	}
}
