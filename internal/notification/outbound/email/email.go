package email

import (
	"context"
	"strconv"

	"github.com/shandysiswandi/courier/internal/notification/usecase"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	tagOrganizationID = "organization_id"
	tagNotificationID = "notification_id"
)

type Mail struct {
	client mail.Mail
	ins    instrument.Instrumentation
}

func New(client mail.Mail, ins instrument.Instrumentation) *Mail {
	return &Mail{client: client, ins: ins}
}

// Send tags the message with its organization and notification so provider callbacks can be scoped.
func (m *Mail) Send(ctx context.Context, msg usecase.OutboundEmail) (string, error) {
	ctx, span := m.ins.Tracer("notification.outbound.email").Start(ctx, "Send")
	defer span.End()

	span.SetAttributes(attribute.Int64("notification.id", msg.NotificationID))

	id, err := m.client.Send(ctx, mail.Message{
		To:       []string{msg.To},
		Subject:  msg.Subject,
		HTMLBody: msg.HTML,
		Tags: map[string]string{
			tagOrganizationID: strconv.FormatInt(msg.OrganizationID, 10),
			tagNotificationID: strconv.FormatInt(msg.NotificationID, 10),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return id, nil
}
