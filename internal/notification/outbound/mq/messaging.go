package mq

import (
	"context"
	"encoding/json"

	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/messaging"
	"github.com/shandysiswandi/courier/internal/shared/event"
	"go.opentelemetry.io/otel/codes"
)

const keyOfCorrelationID string = "cID"

type Messaging struct {
	client messaging.Publisher
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Publisher, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

func (m *Messaging) publish(ctx context.Context, spanName, destination string, payload any, key []byte) error {
	ctx, span := m.ins.Tracer("notification.outbound.mq").Start(ctx, spanName)
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cID := instrument.GetCorrelationID(ctx)
	if err := m.client.Publish(ctx, destination, messaging.Envelope{
		Body:    body,
		Key:     key,
		Headers: map[string]string{keyOfCorrelationID: cID},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (m *Messaging) PublishRealtime(ctx context.Context, msg event.NotificationRealtimeMessage) error {
	return m.publish(ctx, "PublishRealtime", event.NotificationRealtimeDestination, msg, nil)
}

func (m *Messaging) PublishDeliveryFailed(ctx context.Context, msg event.NotificationDeliveryFailedMessage) error {
	return m.publish(ctx, "PublishDeliveryFailed", event.NotificationDeliveryFailedDestination, msg, []byte(
		event.NotificationDeliveryFailedDestination,
	))
}
