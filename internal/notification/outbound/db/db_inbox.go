package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shandysiswandi/courier/internal/notification/entity"
)

func collectNotifications(rows pgx.Rows) ([]entity.Notification, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Notification, error) {
		n, err := scanNotification(row)
		if err != nil {
			return entity.Notification{}, err
		}
		return *n, nil
	})
}

func (s *DB) ListInbox(ctx context.Context, f entity.ListInboxFilter) (_ []entity.Notification, err error) {
	ctx, span := s.startSpan(ctx, "ListInbox")
	defer func() { s.endSpan(span, err) }()

	const sql = `SELECT ` + notificationColumns + ` FROM notifications
		WHERE organization_id = $1 AND user_id = $2 AND channel = $3 AND status <> $4
			AND ($5 = 'all' OR ($5 = 'unread' AND is_read = FALSE) OR ($5 = 'read' AND is_read = TRUE))
		ORDER BY created_at DESC, id DESC
		LIMIT $6 OFFSET $7`

	rows, err := s.conn.Query(ctx, sql,
		f.OrganizationID, f.UserID, entity.ChannelInApp, entity.NotificationStatusArchived, string(f.Read), f.Limit, f.Offset,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	items, err := collectNotifications(rows)
	return items, s.mapError(err)
}

func (s *DB) ListRecent(ctx context.Context, f entity.RecentFilter) (_ []entity.Notification, err error) {
	ctx, span := s.startSpan(ctx, "ListRecent")
	defer func() { s.endSpan(span, err) }()

	const sql = `SELECT ` + notificationColumns + ` FROM notifications
		WHERE organization_id = $1 AND user_id = $2 AND channel = $3 AND status <> $4
			AND ($5::timestamptz IS NULL OR created_at > $5)
		ORDER BY created_at DESC, id DESC
		LIMIT $6`

	rows, err := s.conn.Query(ctx, sql,
		f.OrganizationID, f.UserID, entity.ChannelInApp, entity.NotificationStatusArchived, f.Since, f.Limit,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	items, err := collectNotifications(rows)
	return items, s.mapError(err)
}

func (s *DB) CountUnread(ctx context.Context, orgID, userID int64) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "CountUnread")
	defer func() { s.endSpan(span, err) }()

	const sql = `SELECT COUNT(*) FROM notifications
		WHERE organization_id = $1 AND user_id = $2 AND channel = $3 AND is_read = FALSE AND status <> $4`

	var count int64
	err = s.conn.QueryRow(ctx, sql, orgID, userID, entity.ChannelInApp, entity.NotificationStatusArchived).Scan(&count)
	return count, s.mapError(err)
}

// MarkRead returns the ids that actually flipped from unread to read.
func (s *DB) MarkRead(ctx context.Context, orgID, userID int64, ids []int64, at time.Time) (_ []int64, err error) {
	ctx, span := s.startSpan(ctx, "MarkRead")
	defer func() { s.endSpan(span, err) }()

	if len(ids) == 0 {
		return nil, nil
	}

	const sql = `UPDATE notifications SET is_read = TRUE, read_at = $4, updated_at = $4
		WHERE organization_id = $1 AND user_id = $2 AND id = ANY($3) AND channel = $5 AND is_read = FALSE
		RETURNING id`

	rows, err := s.conn.Query(ctx, sql, orgID, userID, ids, at, entity.ChannelInApp)
	if err != nil {
		return nil, s.mapError(err)
	}

	updated, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	return updated, s.mapError(err)
}

func (s *DB) MarkAllRead(ctx context.Context, orgID, userID int64, at time.Time) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "MarkAllRead")
	defer func() { s.endSpan(span, err) }()

	const sql = `UPDATE notifications SET is_read = TRUE, read_at = $3, updated_at = $3
		WHERE organization_id = $1 AND user_id = $2 AND channel = $4 AND is_read = FALSE`

	tag, err := s.conn.Exec(ctx, sql, orgID, userID, at, entity.ChannelInApp)
	if err != nil {
		return 0, s.mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *DB) ArchiveNotification(ctx context.Context, orgID, userID, id int64, at time.Time) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "ArchiveNotification")
	defer func() { s.endSpan(span, err) }()

	const sql = `UPDATE notifications SET status = $4, updated_at = $5
		WHERE organization_id = $1 AND user_id = $2 AND id = $3 AND channel = $6 AND status <> $4`

	tag, err := s.conn.Exec(ctx, sql, orgID, userID, id, entity.NotificationStatusArchived, at, entity.ChannelInApp)
	if err != nil {
		return false, s.mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}
