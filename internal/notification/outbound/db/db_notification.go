package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shandysiswandi/courier/internal/notification/entity"
)

const notificationColumns = `id, organization_id, user_id, channel, category, status, title, body,
	entity_kind, entity_id, metadata, is_read, read_at, created_at, updated_at`

func entityColumns(ref *entity.EntityRef) (*string, *int64) {
	if ref == nil {
		return nil, nil
	}
	kind := ref.Kind.String()
	id := ref.ID
	return &kind, &id
}

func entityFromColumns(kind *string, id *int64) *entity.EntityRef {
	if kind == nil || id == nil {
		return nil
	}
	k, err := entity.ParseEntityKind(*kind)
	if err != nil {
		return nil
	}
	return &entity.EntityRef{Kind: k, ID: *id}
}

// insertNotification stores n and returns the id of the stored row. When a row
// with the same dispatch key and channel exists, that row's id is returned and
// inserted is false.
func insertNotification(ctx context.Context, q querier, n entity.Notification) (id int64, inserted bool, err error) {
	const sql = `INSERT INTO notifications (` + notificationColumns + `, dispatch_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14, $15)
		ON CONFLICT (organization_id, channel, dispatch_key) WHERE dispatch_key IS NOT NULL
		DO UPDATE SET dispatch_key = EXCLUDED.dispatch_key
		RETURNING id, (xmax = 0)`

	kind, entityID := entityColumns(n.Entity)
	if n.Metadata == nil {
		n.Metadata = entity.Metadata{}
	}

	err = q.QueryRow(ctx, sql,
		n.ID, n.OrganizationID, n.UserID, n.Channel, n.Category.String(), n.Status, n.Title, n.Body,
		kind, entityID, n.Metadata, n.IsRead, n.ReadAt, n.CreatedAt, nullString(n.DispatchKey),
	).Scan(&id, &inserted)
	return id, inserted, err
}

func scanNotification(row pgx.Row) (*entity.Notification, error) {
	var (
		n        entity.Notification
		category string
		kind     *string
		entityID *int64
	)
	err := row.Scan(
		&n.ID, &n.OrganizationID, &n.UserID, &n.Channel, &category, &n.Status, &n.Title, &n.Body,
		&kind, &entityID, &n.Metadata, &n.IsRead, &n.ReadAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Category = entity.Category(category)
	n.Entity = entityFromColumns(kind, entityID)
	return &n, nil
}

// CreateNotification reports false when the dispatch key was already stored.
func (s *DB) CreateNotification(ctx context.Context, n entity.Notification) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "CreateNotification")
	defer func() { s.endSpan(span, err) }()

	_, inserted, err := insertNotification(ctx, s.conn, n)
	if err != nil {
		return false, s.mapError(err)
	}
	return inserted, nil
}

// CreateEmailNotification stores the EMAIL notification and its delivery row
// atomically and returns the stored notification id. A replayed dispatch key
// returns the id of the earlier row and leaves its delivery untouched.
func (s *DB) CreateEmailNotification(ctx context.Context, n entity.Notification, d entity.Delivery) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "CreateEmailNotification")
	defer func() { s.endSpan(span, err) }()

	const sql = `INSERT INTO notification_deliveries
			(notification_id, organization_id, recipient_user_id, recipient_email, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	var id int64
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		stored, inserted, err := insertNotification(ctx, tx, n)
		if err != nil {
			return err
		}
		id = stored
		if !inserted {
			return nil
		}

		_, err = tx.Exec(ctx, sql,
			stored, d.OrganizationID, d.RecipientUserID, d.RecipientEmail, d.Status, d.Attempts, d.CreatedAt,
		)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *DB) GetNotification(ctx context.Context, orgID, id int64) (_ *entity.Notification, err error) {
	ctx, span := s.startSpan(ctx, "GetNotification")
	defer func() { s.endSpan(span, err) }()

	const sql = `SELECT ` + notificationColumns + ` FROM notifications WHERE organization_id = $1 AND id = $2`

	n, err := scanNotification(s.conn.QueryRow(ctx, sql, orgID, id))
	if err != nil {
		return nil, s.mapError(err)
	}
	return n, nil
}
