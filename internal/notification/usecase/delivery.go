package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/shared/event"
	"go.opentelemetry.io/otel/attribute"
)

// transition applies u to d when the state machine allows it. The write only
// lands while the stored status still equals d.Status, so a concurrent update
// that got there first wins and this one is reported as not applied.
func (s *Usecase) transition(ctx context.Context, d *entity.Delivery, u entity.DeliveryUpdate, ns entity.NotificationStatus) (bool, error) {
	if !d.Status.CanTransitionTo(u.Status) {
		slog.WarnContext(ctx, "illegal delivery transition ignored",
			"organization_id", d.OrganizationID, "notification_id", d.NotificationID,
			"from", d.Status.String(), "to", u.Status.String())
		return false, nil
	}

	u.OrganizationID = d.OrganizationID
	u.NotificationID = d.NotificationID
	u.From = d.Status
	u.At = s.clock.Now()

	applied, err := s.repoDB.UpdateDelivery(ctx, u, ns)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo update delivery",
			"organization_id", d.OrganizationID, "notification_id", d.NotificationID, "to", u.Status.String(), "error", err)
		return false, err
	}
	if !applied {
		slog.WarnContext(ctx, "delivery changed concurrently, transition ignored",
			"organization_id", d.OrganizationID, "notification_id", d.NotificationID,
			"from", d.Status.String(), "to", u.Status.String())
		return false, nil
	}
	count(ctx, s.metrics.transition, attribute.String("status", u.Status.String()))

	d.Status = u.Status
	if u.IncrementAttempts {
		d.Attempts++
	}

	return true, nil
}

func (s *Usecase) getDelivery(ctx context.Context, orgID, notificationID int64) (*entity.Delivery, error) {
	d, err := s.repoDB.GetDelivery(ctx, orgID, notificationID)
	if isNotFound(err) {
		return nil, goerror.NewBusiness("delivery not found", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get delivery", "organization_id", orgID, "notification_id", notificationID, "error", err)
		return nil, goerror.NewServer(err)
	}
	return d, nil
}

// RecordSent marks the delivery and its notification SENT and stores the provider message id.
func (s *Usecase) RecordSent(ctx context.Context, orgID, notificationID int64, providerMessageID string) error {
	ctx, span := s.startSpan(ctx, "RecordSent")
	defer span.End()

	d, err := s.getDelivery(ctx, orgID, notificationID)
	if err != nil {
		return err
	}

	_, err = s.transition(ctx, d, entity.DeliveryUpdate{
		Status:            entity.DeliveryStatusSent,
		ProviderMessageID: providerMessageID,
		IncrementAttempts: true,
	}, entity.NotificationStatusSent)
	if err != nil {
		return goerror.NewServer(err)
	}

	return nil
}

// RecordFailed stores a transient failure; the notification status is left alone.
func (s *Usecase) RecordFailed(ctx context.Context, orgID, notificationID int64, reason string) error {
	ctx, span := s.startSpan(ctx, "RecordFailed")
	defer span.End()

	d, err := s.getDelivery(ctx, orgID, notificationID)
	if err != nil {
		return err
	}

	_, err = s.transition(ctx, d, entity.DeliveryUpdate{
		Status:            entity.DeliveryStatusFailed,
		ErrorMessage:      reason,
		IncrementAttempts: true,
	}, entity.NotificationStatusUnknown)
	if err != nil {
		return goerror.NewServer(err)
	}

	return nil
}

// RecordPermanentFailure fails the notification, writes the audit entry and
// raises the alert. Calling it again for the same notification does nothing.
func (s *Usecase) RecordPermanentFailure(ctx context.Context, orgID, notificationID int64, reason string) error {
	ctx, span := s.startSpan(ctx, "RecordPermanentFailure")
	defer span.End()

	now := s.clock.Now()
	entry, err := s.repoDB.RecordPermanentFailure(ctx, entity.PermanentFailure{
		AuditID:        s.uid.Generate(),
		OrganizationID: orgID,
		NotificationID: notificationID,
		Reason:         reason,
		At:             now,
	})
	if isNotFound(err) {
		return goerror.NewBusiness("delivery not found", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo record permanent failure", "organization_id", orgID, "notification_id", notificationID, "error", err)
		return goerror.NewServer(err)
	}
	if entry == nil {
		slog.InfoContext(ctx, "permanent failure already recorded", "organization_id", orgID, "notification_id", notificationID)
		return nil
	}
	count(ctx, s.metrics.transition, attribute.String("status", entity.DeliveryStatusFailed.String()))

	slog.ErrorContext(ctx, "email delivery failed permanently",
		"organization_id", orgID, "notification_id", notificationID, "recipient_user_id", entry.RecipientUserID, "reason", reason)

	msg := event.NotificationDeliveryFailedMessage{
		OrganizationID:  orgID,
		NotificationID:  notificationID,
		RecipientUserID: entry.RecipientUserID,
		RecipientEmail:  entry.RecipientEmail,
		Category:        entry.Category.String(),
		Reason:          reason,
		FailedAt:        now,
	}
	if entry.Entity != nil {
		msg.EntityKind = entry.Entity.Kind.String()
		msg.EntityID = entry.Entity.ID
	}
	if s.repoMQ != nil {
		if err := s.repoMQ.PublishDeliveryFailed(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "failed to publish delivery failed", "organization_id", orgID, "notification_id", notificationID, "error", err)
		}
	}

	return nil
}

// ProcessWebhookEvent applies one normalized provider callback. Unknown
// messages and illegal transitions are dropped with a log line.
func (s *Usecase) ProcessWebhookEvent(ctx context.Context, evt entity.WebhookEvent) error {
	ctx, span := s.startSpan(ctx, "ProcessWebhookEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("webhook.provider", evt.Provider),
		attribute.String("webhook.event_type", string(evt.EventType)),
	)

	if evt.OrganizationID == 0 || evt.ProviderMessageID == "" {
		slog.WarnContext(ctx, "webhook event without organization or message id, dropping",
			"provider", evt.Provider, "event_type", evt.RawType, "provider_message_id", evt.ProviderMessageID)
		return nil
	}

	d, err := s.repoDB.GetDeliveryByProviderMessageID(ctx, evt.OrganizationID, evt.ProviderMessageID)
	if isNotFound(err) {
		slog.WarnContext(ctx, "webhook event for unknown message, dropping",
			"provider", evt.Provider, "organization_id", evt.OrganizationID, "provider_message_id", evt.ProviderMessageID)
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get delivery by provider message id",
			"organization_id", evt.OrganizationID, "provider_message_id", evt.ProviderMessageID, "error", err)
		return goerror.NewServer(err)
	}

	switch evt.EventType {
	case entity.WebhookEventDelivered:
		_, err = s.transition(ctx, d, entity.DeliveryUpdate{Status: entity.DeliveryStatusDelivered}, entity.NotificationStatusDelivered)
	case entity.WebhookEventBounce, entity.WebhookEventDropped:
		err = s.handleBounce(ctx, d, evt)
	case entity.WebhookEventDeferred:
		_, err = s.transition(ctx, d, entity.DeliveryUpdate{
			Status:       entity.DeliveryStatusDeferred,
			ErrorMessage: evt.Reason,
		}, entity.NotificationStatusUnknown)
	default:
		slog.InfoContext(ctx, "webhook event type not handled", "provider", evt.Provider, "event_type", evt.RawType)
		return nil
	}
	if err != nil {
		return goerror.NewServer(err)
	}

	return nil
}

func (s *Usecase) handleBounce(ctx context.Context, d *entity.Delivery, evt entity.WebhookEvent) error {
	class := evt.BounceClass
	if class == "" {
		class = entity.BounceClassUnknown
		if evt.EventType == entity.WebhookEventDropped {
			class = entity.BounceClassBlocked
		}
	}

	if class.Suppresses() {
		applied, err := s.transition(ctx, d, entity.DeliveryUpdate{
			Status:       entity.DeliveryStatusBounced,
			ErrorMessage: evt.Reason,
			BounceClass:  class,
		}, entity.NotificationStatusUnknown)
		if err != nil || !applied {
			return err
		}

		if err := s.repoDB.CreateEmailSuppression(ctx, entity.EmailSuppression{
			OrganizationID: d.OrganizationID,
			Email:          d.RecipientEmail,
			BounceClass:    class,
			Reason:         evt.Reason,
			CreatedAt:      s.clock.Now(),
		}); err != nil {
			slog.ErrorContext(ctx, "failed to repo create email suppression", "organization_id", d.OrganizationID, "error", err)
			return err
		}

		return s.RecordPermanentFailure(ctx, d.OrganizationID, d.NotificationID, bounceReason(class, evt.Reason))
	}

	applied, err := s.transition(ctx, d, entity.DeliveryUpdate{
		Status:       entity.DeliveryStatusDeferred,
		ErrorMessage: evt.Reason,
		BounceClass:  class,
	}, entity.NotificationStatusUnknown)
	if err != nil || !applied {
		return err
	}

	if d.Attempts >= s.opts.sendAttempts {
		return s.RecordPermanentFailure(ctx, d.OrganizationID, d.NotificationID, bounceReason(class, evt.Reason))
	}

	n, err := s.repoDB.GetNotification(ctx, d.OrganizationID, d.NotificationID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get notification", "organization_id", d.OrganizationID, "notification_id", d.NotificationID, "error", err)
		return err
	}

	return s.enqueueSend(ctx, d.OrganizationID, d.NotificationID, priorityOf(n.Category), d.Attempts, s.queue.Backoff(d.Attempts))
}

func bounceReason(class entity.BounceClass, reason string) string {
	if reason == "" {
		return string(class) + " bounce"
	}
	return string(class) + " bounce: " + reason
}
