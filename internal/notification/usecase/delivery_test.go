package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/workqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEmail(t *testing.T, h *harness, id int64, status entity.DeliveryStatus, providerID string, attempts int) {
	t.Helper()
	_, err := h.store.CreateEmailNotification(context.Background(),
		entity.Notification{
			ID: id, OrganizationID: orgA, UserID: 10, Channel: entity.ChannelEmail,
			Category: entity.CategoryAssignment, Status: entity.NotificationStatusQueued,
			Title: "Assigned", Body: "<p>Assigned</p>",
			Entity: &entity.EntityRef{Kind: entity.EntityKindCase, ID: 42},
		},
		entity.Delivery{
			NotificationID: id, OrganizationID: orgA, RecipientUserID: 10, RecipientEmail: "alice@example.com",
			ProviderMessageID: providerID, Status: status, Attempts: attempts,
		},
	)
	require.NoError(t, err)
}

func sendJob(t *testing.T, id int64, attempt int) workqueue.Job {
	t.Helper()
	payload, err := json.Marshal(entity.EmailJob{OrganizationID: orgA, NotificationID: id})
	require.NoError(t, err)
	return workqueue.Job{ID: "job-x", Priority: workqueue.PriorityUrgent, Attempt: attempt, Payload: payload}
}

func TestProcessSendJob(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusPending, "", 0)

		// Act
		err := h.uc.ProcessSendJob(ctx, sendJob(t, 1, 0))

		// Assert
		require.NoError(t, err)
		require.Len(t, h.mail.sent, 1)
		assert.Equal(t, "alice@example.com", h.mail.sent[0].To)
		assert.Equal(t, "Assigned", h.mail.sent[0].Subject)

		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusSent, d.Status)
		assert.Equal(t, "provider-1", d.ProviderMessageID)
		assert.Equal(t, 1, d.Attempts)
		n, _ := h.store.GetNotification(ctx, orgA, 1)
		assert.Equal(t, entity.NotificationStatusSent, n.Status)
		assert.Equal(t, []string{"job-x"}, h.queue.acked)
	})

	t.Run("TransientFailureRetriesWithBackoff", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusPending, "", 0)
		h.mail.err = errors.New("smtp: 421 try later")

		// Act
		err := h.uc.ProcessSendJob(ctx, sendJob(t, 1, 0))

		// Assert
		require.NoError(t, err)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusFailed, d.Status)
		assert.Equal(t, 1, d.Attempts)
		assert.Contains(t, d.ErrorMessage, "421")
		n, _ := h.store.GetNotification(ctx, orgA, 1)
		assert.Equal(t, entity.NotificationStatusQueued, n.Status)

		require.Len(t, h.queue.retried, 1)
		assert.Equal(t, time.Minute, h.queue.retried[0].delay)
		assert.Equal(t, 1, h.queue.retried[0].job.Attempt)
		assert.Empty(t, h.queue.acked)
		assert.Empty(t, h.store.audits)
	})

	t.Run("ExhaustedBudgetFailsPermanently", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusFailed, "", 4)
		h.mail.err = errors.New("smtp: 421 try later")

		// Act
		err := h.uc.ProcessSendJob(ctx, sendJob(t, 1, 4))

		// Assert
		require.NoError(t, err)
		n, _ := h.store.GetNotification(ctx, orgA, 1)
		assert.Equal(t, entity.NotificationStatusFailed, n.Status)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusFailed, d.Status)
		assert.Len(t, h.store.audits, 1)
		require.Len(t, h.mq.failed, 1)
		assert.Equal(t, "CASE", h.mq.failed[0].EntityKind)
		assert.Empty(t, h.queue.retried)
		assert.Equal(t, []string{"job-x"}, h.queue.acked)
	})

	t.Run("SuppressedAddressFailsWithoutSending", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusPending, "", 0)
		require.NoError(t, h.store.CreateEmailSuppression(ctx, entity.EmailSuppression{
			OrganizationID: orgA, Email: "alice@example.com", BounceClass: entity.BounceClassHard,
		}))

		// Act
		err := h.uc.ProcessSendJob(ctx, sendJob(t, 1, 0))

		// Assert
		require.NoError(t, err)
		assert.Empty(t, h.mail.sent)
		assert.Equal(t, reasonSuppressed, h.store.audits[1].Reason)
		assert.Equal(t, []string{"job-x"}, h.queue.acked)
	})

	t.Run("AlreadySentJobIsAcked", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusSent, "provider-1", 1)

		// Act
		err := h.uc.ProcessSendJob(ctx, sendJob(t, 1, 0))

		// Assert
		require.NoError(t, err)
		assert.Empty(t, h.mail.sent)
		assert.Equal(t, []string{"job-x"}, h.queue.acked)
	})

	t.Run("MalformedPayloadIsDropped", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)

		// Act
		err := h.uc.ProcessSendJob(ctx, workqueue.Job{ID: "bad", Payload: json.RawMessage(`"nope"`)})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []string{"bad"}, h.queue.acked)
	})

	t.Run("SentWriteRetriedAfterTransientError", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusPending, "", 0)
		h.store.errUpdateDelivery = 2

		// Act
		err := h.uc.ProcessSendJob(ctx, sendJob(t, 1, 0))

		// Assert
		require.NoError(t, err)
		require.Len(t, h.mail.sent, 1)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusSent, d.Status)
		assert.Equal(t, "provider-1", d.ProviderMessageID)
		assert.Equal(t, []string{"job-x"}, h.queue.acked)
	})

	t.Run("SentWriteFailureLeavesJobInFlight", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusPending, "", 0)
		h.store.errUpdateDelivery = -1

		// Act
		err := h.uc.ProcessSendJob(ctx, sendJob(t, 1, 0))

		// Assert
		require.Error(t, err)
		require.Len(t, h.mail.sent, 1)
		assert.Empty(t, h.queue.acked)
		assert.Empty(t, h.queue.retried)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusPending, d.Status)
	})
}

func TestRecordPermanentFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("RepeatedCallsWriteOneAuditEntry", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusFailed, "", 5)

		// Act
		err1 := h.uc.RecordPermanentFailure(ctx, orgA, 1, "gave up")
		err2 := h.uc.RecordPermanentFailure(ctx, orgA, 1, "gave up again")

		// Assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Len(t, h.store.audits, 1)
		assert.Equal(t, "gave up", h.store.audits[1].Reason)
		assert.Len(t, h.mq.failed, 1)
	})

	t.Run("OtherOrganizationIsNotFound", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusFailed, "", 5)

		// Act
		err := h.uc.RecordPermanentFailure(ctx, orgB, 1, "gave up")

		// Assert
		require.Error(t, err)
		assert.Empty(t, h.store.audits)
	})
}

func TestProcessWebhookEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	evt := func(typ entity.WebhookEventType, class entity.BounceClass) entity.WebhookEvent {
		return entity.WebhookEvent{
			Provider: "sendgrid", EventType: typ, RawType: string(typ), ProviderMessageID: "p1",
			OrganizationID: orgA, BounceClass: class, Reason: "mailbox says no",
		}
	}

	t.Run("DeliveredAfterSent", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusSent, "p1", 1)

		// Act
		err := h.uc.ProcessWebhookEvent(ctx, evt(entity.WebhookEventDelivered, ""))

		// Assert
		require.NoError(t, err)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusDelivered, d.Status)
		n, _ := h.store.GetNotification(ctx, orgA, 1)
		assert.Equal(t, entity.NotificationStatusDelivered, n.Status)
	})

	t.Run("PendingToDeliveredIsIgnored", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusPending, "p1", 0)

		// Act
		err := h.uc.ProcessWebhookEvent(ctx, evt(entity.WebhookEventDelivered, ""))

		// Assert
		require.NoError(t, err)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusPending, d.Status)
	})

	t.Run("StaleReadCannotOverwriteTerminalStatus", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusSent, "p1", 1)
		stale, err := h.store.GetDelivery(ctx, orgA, 1)
		require.NoError(t, err)
		require.NoError(t, h.uc.ProcessWebhookEvent(ctx, evt(entity.WebhookEventDelivered, "")))

		// Act
		applied, err := h.uc.transition(ctx, stale, entity.DeliveryUpdate{
			Status: entity.DeliveryStatusDeferred, ErrorMessage: "try later",
		}, entity.NotificationStatusUnknown)

		// Assert
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, entity.DeliveryStatusSent, stale.Status)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusDelivered, d.Status)
		assert.Empty(t, d.ErrorMessage)
	})

	t.Run("HardBounceSuppressesAndFails", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusSent, "p1", 1)

		// Act
		err := h.uc.ProcessWebhookEvent(ctx, evt(entity.WebhookEventBounce, entity.BounceClassHard))

		// Assert
		require.NoError(t, err)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusBounced, d.Status)
		assert.Equal(t, entity.BounceClassHard, d.BounceClass)
		n, _ := h.store.GetNotification(ctx, orgA, 1)
		assert.Equal(t, entity.NotificationStatusFailed, n.Status)

		suppressed, _ := h.store.IsEmailSuppressed(ctx, orgA, "alice@example.com")
		assert.True(t, suppressed)
		assert.Len(t, h.store.audits, 1)
		assert.Len(t, h.mq.failed, 1)
	})

	t.Run("DroppedWithoutClassIsBlocked", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusSent, "p1", 1)

		// Act
		err := h.uc.ProcessWebhookEvent(ctx, evt(entity.WebhookEventDropped, ""))

		// Assert
		require.NoError(t, err)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusBounced, d.Status)
		assert.Equal(t, entity.BounceClassBlocked, d.BounceClass)
	})

	t.Run("SoftBounceDefersAndRequeues", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusSent, "p1", 2)

		// Act
		err := h.uc.ProcessWebhookEvent(ctx, evt(entity.WebhookEventBounce, entity.BounceClassSoft))

		// Assert
		require.NoError(t, err)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusDeferred, d.Status)
		require.Len(t, h.queue.enqueued, 1)
		assert.Equal(t, 2*time.Minute, h.queue.enqueued[0].delay)
		assert.Equal(t, workqueue.PriorityUrgent, h.queue.enqueued[0].job.Priority)
		assert.Empty(t, h.store.audits)
	})

	t.Run("SoftBounceOverBudgetFailsPermanently", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusSent, "p1", 5)

		// Act
		err := h.uc.ProcessWebhookEvent(ctx, evt(entity.WebhookEventBounce, entity.BounceClassSoft))

		// Assert
		require.NoError(t, err)
		assert.Empty(t, h.queue.enqueued)
		assert.Len(t, h.store.audits, 1)
	})

	t.Run("DeferredThenDelivered", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusSent, "p1", 1)

		// Act
		err1 := h.uc.ProcessWebhookEvent(ctx, evt(entity.WebhookEventDeferred, ""))
		err2 := h.uc.ProcessWebhookEvent(ctx, evt(entity.WebhookEventDelivered, ""))

		// Assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusDelivered, d.Status)
	})

	t.Run("OtherOrganizationCannotTouchDelivery", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusSent, "p1", 1)
		e := evt(entity.WebhookEventDelivered, "")
		e.OrganizationID = orgB

		// Act
		err := h.uc.ProcessWebhookEvent(ctx, e)

		// Assert
		require.NoError(t, err)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusSent, d.Status)
	})

	t.Run("UnknownMessageIsDropped", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		e := evt(entity.WebhookEventDelivered, "")
		e.ProviderMessageID = "nope"

		// Act
		err := h.uc.ProcessWebhookEvent(ctx, e)

		// Assert
		assert.NoError(t, err)
	})

	t.Run("UnknownEventTypeIsNoop", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedEmail(t, h, 1, entity.DeliveryStatusSent, "p1", 1)

		// Act
		err := h.uc.ProcessWebhookEvent(ctx, evt(entity.WebhookEventUnknown, ""))

		// Assert
		require.NoError(t, err)
		d, _ := h.store.GetDelivery(ctx, orgA, 1)
		assert.Equal(t, entity.DeliveryStatusSent, d.Status)
	})
}
