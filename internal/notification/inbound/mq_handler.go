package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/courier/internal/notification/usecase"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/messaging"
	"github.com/shandysiswandi/courier/internal/pkg/uid"
	"github.com/shandysiswandi/courier/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, msg messaging.Message) context.Context {
	if cID := msg.Header(keyOfCorrelationID); cID != "" {
		return instrument.SetCorrelationID(ctx, cID)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

// Dispatch consumes notification_dispatch. Malformed or invalid events are
// dropped; only infrastructure failures are returned for redelivery.
func (h *MQHandler) Dispatch(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg)

	ctx, span := h.ins.Tracer("notification.inbound.mq").Start(ctx, "Dispatch")
	defer span.End()

	body := msg.Body()

	var payload event.NotificationDispatchMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of notification dispatch", "msg_body", string(body), "error", err)
		return nil
	}

	slog.InfoContext(ctx, "consume: notification dispatch", "event_id", payload.EventID,
		"organization_id", payload.OrganizationID, "recipient_user_id", payload.RecipientUserID, "category", payload.Category)

	err := h.uc.Dispatch(ctx, usecase.DispatchInput{
		EventID:         payload.EventID,
		OrganizationID:  payload.OrganizationID,
		RecipientUserID: payload.RecipientUserID,
		Category:        payload.Category,
		Urgent:          payload.Urgent,
		TemplateKey:     payload.TemplateKey,
		TemplateData:    payload.TemplateData,
		Title:           payload.Title,
		Body:            payload.Body,
		EntityKind:      payload.EntityKind,
		EntityID:        payload.EntityID,
		Metadata:        payload.Metadata,
	})
	if err == nil {
		return nil
	}

	var gerr *goerror.Error
	if errors.As(err, &gerr) && gerr.Type() != goerror.TypeServer {
		slog.WarnContext(ctx, "dropped invalid notification dispatch", "msg_body", string(body), "error", err)
		return nil
	}

	slog.ErrorContext(ctx, "failed to consume notification dispatch", "msg_body", string(body), "error", err)
	return err
}

// Realtime delivers a cross-process push to the live connections of this instance.
func (h *MQHandler) Realtime(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg)

	ctx, span := h.ins.Tracer("notification.inbound.mq").Start(ctx, "Realtime")
	defer span.End()

	var payload event.NotificationRealtimeMessage
	if err := json.Unmarshal(msg.Body(), &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of notification realtime", "msg_body", string(msg.Body()), "error", err)
		return nil
	}

	return h.uc.DeliverRealtime(ctx, payload)
}
