package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
)

const deliveryColumns = `notification_id, organization_id, recipient_user_id, recipient_email, provider_message_id,
	status, attempts, last_attempt_at, error_message, bounce_class, created_at, updated_at`

func scanDelivery(row pgx.Row) (*entity.Delivery, error) {
	var (
		d           entity.Delivery
		providerID  *string
		errMsg      *string
		bounceClass *string
	)
	err := row.Scan(
		&d.NotificationID, &d.OrganizationID, &d.RecipientUserID, &d.RecipientEmail, &providerID,
		&d.Status, &d.Attempts, &d.LastAttemptAt, &errMsg, &bounceClass, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.ProviderMessageID = derefString(providerID)
	d.ErrorMessage = derefString(errMsg)
	d.BounceClass = entity.BounceClass(derefString(bounceClass))
	return &d, nil
}

func (s *DB) GetDelivery(ctx context.Context, orgID, notificationID int64) (_ *entity.Delivery, err error) {
	ctx, span := s.startSpan(ctx, "GetDelivery")
	defer func() { s.endSpan(span, err) }()

	const sql = `SELECT ` + deliveryColumns + ` FROM notification_deliveries
		WHERE organization_id = $1 AND notification_id = $2`

	d, err := scanDelivery(s.conn.QueryRow(ctx, sql, orgID, notificationID))
	if err != nil {
		return nil, s.mapError(err)
	}
	return d, nil
}

func (s *DB) GetDeliveryByProviderMessageID(ctx context.Context, orgID int64, providerMessageID string) (_ *entity.Delivery, err error) {
	ctx, span := s.startSpan(ctx, "GetDeliveryByProviderMessageID")
	defer func() { s.endSpan(span, err) }()

	const sql = `SELECT ` + deliveryColumns + ` FROM notification_deliveries
		WHERE organization_id = $1 AND provider_message_id = $2`

	d, err := scanDelivery(s.conn.QueryRow(ctx, sql, orgID, providerMessageID))
	if err != nil {
		return nil, s.mapError(err)
	}
	return d, nil
}

// UpdateDelivery applies u when the stored status still equals u.From and,
// when ns is known, moves the owning notification to ns in the same
// transaction. It reports false when the row had already moved on.
func (s *DB) UpdateDelivery(ctx context.Context, u entity.DeliveryUpdate, ns entity.NotificationStatus) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "UpdateDelivery")
	defer func() { s.endSpan(span, err) }()

	const updDelivery = `UPDATE notification_deliveries SET
			status = $3,
			provider_message_id = COALESCE($4, provider_message_id),
			error_message = $5,
			bounce_class = COALESCE($6, bounce_class),
			attempts = attempts + $7,
			last_attempt_at = CASE WHEN $7 > 0 THEN $8 ELSE last_attempt_at END,
			updated_at = $8
		WHERE organization_id = $1 AND notification_id = $2 AND status = $9`

	const updNotification = `UPDATE notifications SET status = $3, updated_at = $4
		WHERE organization_id = $1 AND id = $2`

	inc := 0
	if u.IncrementAttempts {
		inc = 1
	}

	var applied bool
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updDelivery,
			u.OrganizationID, u.NotificationID, u.Status, nullString(u.ProviderMessageID),
			nullString(u.ErrorMessage), nullString(string(u.BounceClass)), inc, u.At, u.From,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		applied = true

		if ns == entity.NotificationStatusUnknown {
			return nil
		}
		_, err = tx.Exec(ctx, updNotification, u.OrganizationID, u.NotificationID, ns, u.At)
		return err
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// RecordPermanentFailure marks the notification FAILED and writes the audit entry once.
// It returns nil when a previous call already recorded the failure.
func (s *DB) RecordPermanentFailure(ctx context.Context, pf entity.PermanentFailure) (_ *entity.AuditEntry, err error) {
	ctx, span := s.startSpan(ctx, "RecordPermanentFailure")
	defer func() { s.endSpan(span, err) }()

	const selectForUpdate = `SELECT n.category, n.entity_kind, n.entity_id, d.recipient_user_id, d.recipient_email
		FROM notifications n
		JOIN notification_deliveries d ON d.notification_id = n.id AND d.organization_id = n.organization_id
		WHERE n.organization_id = $1 AND n.id = $2
		FOR UPDATE`

	const insAudit = `INSERT INTO notification_audit_logs
			(id, organization_id, notification_id, action, recipient_user_id, recipient_email, category, reason, entity_kind, entity_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (notification_id, action) DO NOTHING`

	const updNotification = `UPDATE notifications SET status = $3, updated_at = $4
		WHERE organization_id = $1 AND id = $2 AND status <> $3`

	const updDelivery = `UPDATE notification_deliveries SET status = $3, error_message = $4, updated_at = $5
		WHERE organization_id = $1 AND notification_id = $2 AND status <> $6`

	var entry *entity.AuditEntry
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var (
			category string
			kind     *string
			entityID *int64
			audit    = entity.AuditEntry{
				ID:             pf.AuditID,
				OrganizationID: pf.OrganizationID,
				NotificationID: pf.NotificationID,
				Action:         entity.AuditActionDeliveryPermanentFailure,
				Reason:         pf.Reason,
				CreatedAt:      pf.At,
			}
		)
		err := tx.QueryRow(ctx, selectForUpdate, pf.OrganizationID, pf.NotificationID).Scan(
			&category, &kind, &entityID, &audit.RecipientUserID, &audit.RecipientEmail,
		)
		if err != nil {
			return err
		}
		audit.Category = entity.Category(category)
		audit.Entity = entityFromColumns(kind, entityID)

		tag, err := tx.Exec(ctx, insAudit,
			audit.ID, audit.OrganizationID, audit.NotificationID, string(audit.Action), audit.RecipientUserID,
			audit.RecipientEmail, category, audit.Reason, kind, entityID, audit.CreatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, updNotification, pf.OrganizationID, pf.NotificationID, entity.NotificationStatusFailed, pf.At); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, updDelivery,
			pf.OrganizationID, pf.NotificationID, entity.DeliveryStatusFailed, pf.Reason, pf.At, entity.DeliveryStatusBounced,
		); err != nil {
			return err
		}

		entry = &audit
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func (s *DB) IsEmailSuppressed(ctx context.Context, orgID int64, email string) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "IsEmailSuppressed")
	defer func() { s.endSpan(span, err) }()

	const sql = `SELECT EXISTS (
		SELECT 1 FROM notification_email_suppressions WHERE organization_id = $1 AND email = lower($2))`

	var exists bool
	if err = s.conn.QueryRow(ctx, sql, orgID, email).Scan(&exists); err != nil {
		return false, s.mapError(err)
	}
	return exists, nil
}

func (s *DB) CreateEmailSuppression(ctx context.Context, sup entity.EmailSuppression) (err error) {
	ctx, span := s.startSpan(ctx, "CreateEmailSuppression")
	defer func() { s.endSpan(span, err) }()

	const sql = `INSERT INTO notification_email_suppressions (organization_id, email, bounce_class, reason, created_at)
		VALUES ($1, lower($2), $3, $4, $5)
		ON CONFLICT (organization_id, email) DO NOTHING`

	_, err = s.conn.Exec(ctx, sql, sup.OrganizationID, sup.Email, string(sup.BounceClass), sup.Reason, sup.CreatedAt)
	if err != nil && !errors.Is(s.mapError(err), goerror.ErrConflict) {
		return s.mapError(err)
	}
	return nil
}
