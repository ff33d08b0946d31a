package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sethvargo/go-retry"
	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/workqueue"
)

const reasonSuppressed = "recipient address suppressed"

// ProcessSendJob sends one queued email and settles the job: ack on success
// or permanent failure, retry with backoff while attempts remain.
func (s *Usecase) ProcessSendJob(ctx context.Context, job workqueue.Job) error {
	ctx, span := s.startSpan(ctx, "ProcessSendJob")
	defer span.End()

	var payload entity.EmailJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse send job payload, dropping", "job_id", job.ID, "error", err)
		return s.queue.Ack(ctx, job)
	}

	orgID, id := payload.OrganizationID, payload.NotificationID

	d, err := s.repoDB.GetDelivery(ctx, orgID, id)
	if isNotFound(err) {
		slog.WarnContext(ctx, "send job without delivery, dropping", "organization_id", orgID, "notification_id", id)
		return s.queue.Ack(ctx, job)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get delivery", "organization_id", orgID, "notification_id", id, "error", err)
		return s.retry(ctx, job)
	}

	// A reaped job may already have been sent by a worker that died before acking.
	if !d.Status.CanTransitionTo(entity.DeliveryStatusSent) || d.Status == entity.DeliveryStatusSent {
		slog.InfoContext(ctx, "send job already settled", "organization_id", orgID, "notification_id", id, "status", d.Status.String())
		return s.queue.Ack(ctx, job)
	}

	n, err := s.repoDB.GetNotification(ctx, orgID, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get notification", "organization_id", orgID, "notification_id", id, "error", err)
		return s.retry(ctx, job)
	}
	if n.Status == entity.NotificationStatusFailed {
		slog.InfoContext(ctx, "send job for permanently failed notification", "organization_id", orgID, "notification_id", id)
		return s.queue.Ack(ctx, job)
	}

	suppressed, err := s.repoDB.IsEmailSuppressed(ctx, orgID, d.RecipientEmail)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo check suppression", "organization_id", orgID, "notification_id", id, "error", err)
		return s.retry(ctx, job)
	}
	if suppressed {
		if err := s.RecordPermanentFailure(ctx, orgID, id, reasonSuppressed); err != nil {
			return s.retry(ctx, job)
		}
		return s.queue.Ack(ctx, job)
	}

	providerID, sendErr := s.repoMail.Send(ctx, OutboundEmail{
		OrganizationID: orgID,
		NotificationID: id,
		To:             d.RecipientEmail,
		Subject:        n.Title,
		HTML:           n.Body,
	})
	if sendErr == nil {
		if err := s.recordSentWithRetry(ctx, orgID, id, providerID); err != nil {
			// Unacked, the job is re-driven by the reaper once its visibility lapses.
			slog.ErrorContext(ctx, "failed to record sent, leaving job in flight",
				"organization_id", orgID, "notification_id", id, "provider_message_id", providerID, "error", err)
			return err
		}
		return s.queue.Ack(ctx, job)
	}

	slog.WarnContext(ctx, "failed to send email", "organization_id", orgID, "notification_id", id, "attempt", d.Attempts+1, "error", sendErr)
	if err := s.RecordFailed(ctx, orgID, id, sendErr.Error()); err != nil {
		slog.ErrorContext(ctx, "failed to record send failure", "organization_id", orgID, "notification_id", id, "error", err)
	}

	attempts := d.Attempts + 1
	if attempts < s.opts.sendAttempts {
		job.Attempt = attempts
		return s.queue.Retry(ctx, job, s.queue.Backoff(attempts))
	}

	reason := fmt.Sprintf("send failed after %d attempts: %v", attempts, sendErr)
	if err := s.RecordPermanentFailure(ctx, orgID, id, reason); err != nil {
		return s.retry(ctx, job)
	}

	return s.queue.Ack(ctx, job)
}

// recordSentWithRetry keeps the provider message id from being lost to a
// short database outage; webhooks for the message are matched on it.
func (s *Usecase) recordSentWithRetry(ctx context.Context, orgID, id int64, providerID string) error {
	b := retry.WithMaxRetries(s.opts.recordRetries, retry.NewExponential(s.opts.recordBackoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := s.RecordSent(ctx, orgID, id, providerID); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// retry reschedules a job after an infrastructure error without touching the attempt budget.
func (s *Usecase) retry(ctx context.Context, job workqueue.Job) error {
	if err := s.queue.Retry(ctx, job, s.queue.Backoff(job.Attempt+1)); err != nil {
		slog.ErrorContext(ctx, "failed to retry send job", "job_id", job.ID, "error", err)
		return err
	}
	return nil
}

func priorityOf(c entity.Category) workqueue.Priority {
	if c == entity.CategoryDigest {
		return workqueue.PriorityDigest
	}
	return workqueue.PriorityUrgent
}
