package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shandysiswandi/courier/internal/notification/entity"
)

// CreateDigestItem is a no-op when the item's dispatch key is already queued.
func (s *DB) CreateDigestItem(ctx context.Context, item entity.DigestItem) (err error) {
	ctx, span := s.startSpan(ctx, "CreateDigestItem")
	defer func() { s.endSpan(span, err) }()

	const sql = `INSERT INTO notification_digest_queue
			(id, organization_id, user_id, category, entity_kind, entity_id, metadata, created_at, dispatch_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id, dispatch_key) WHERE dispatch_key IS NOT NULL DO NOTHING`

	kind, id := entityColumns(item.Entity)
	if item.Metadata == nil {
		item.Metadata = entity.Metadata{}
	}

	_, err = s.conn.Exec(ctx, sql,
		item.ID, item.OrganizationID, item.UserID, item.Category.String(), kind, id, item.Metadata, item.CreatedAt,
		nullString(item.DispatchKey),
	)
	return s.mapError(err)
}

// ListOrganizationsWithPendingDigest is the one cross-organization read; it returns ids only.
func (s *DB) ListOrganizationsWithPendingDigest(ctx context.Context) (_ []int64, err error) {
	ctx, span := s.startSpan(ctx, "ListOrganizationsWithPendingDigest")
	defer func() { s.endSpan(span, err) }()

	const sql = `SELECT DISTINCT organization_id FROM notification_digest_queue WHERE processed = FALSE ORDER BY organization_id`

	rows, err := s.conn.Query(ctx, sql)
	if err != nil {
		return nil, s.mapError(err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	return ids, s.mapError(err)
}

func (s *DB) ListUsersWithPendingDigest(ctx context.Context, orgID int64) (_ []int64, err error) {
	ctx, span := s.startSpan(ctx, "ListUsersWithPendingDigest")
	defer func() { s.endSpan(span, err) }()

	const sql = `SELECT DISTINCT user_id FROM notification_digest_queue
		WHERE organization_id = $1 AND processed = FALSE ORDER BY user_id`

	rows, err := s.conn.Query(ctx, sql, orgID)
	if err != nil {
		return nil, s.mapError(err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	return ids, s.mapError(err)
}

func (s *DB) ListPendingDigestItems(ctx context.Context, orgID, userID int64) (_ []entity.DigestItem, err error) {
	ctx, span := s.startSpan(ctx, "ListPendingDigestItems")
	defer func() { s.endSpan(span, err) }()

	const sql = `SELECT id, category, entity_kind, entity_id, metadata, created_at
		FROM notification_digest_queue
		WHERE organization_id = $1 AND user_id = $2 AND processed = FALSE
		ORDER BY created_at`

	rows, err := s.conn.Query(ctx, sql, orgID, userID)
	if err != nil {
		return nil, s.mapError(err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.DigestItem, error) {
		var (
			it       = entity.DigestItem{OrganizationID: orgID, UserID: userID}
			category string
			kind     *string
			entityID *int64
		)
		if err := row.Scan(&it.ID, &category, &kind, &entityID, &it.Metadata, &it.CreatedAt); err != nil {
			return it, err
		}
		it.Category = entity.Category(category)
		it.Entity = entityFromColumns(kind, entityID)
		return it, nil
	})
	return items, s.mapError(err)
}

// MarkUserItemsProcessed only touches rows still pending, so a repeated call changes nothing.
func (s *DB) MarkUserItemsProcessed(ctx context.Context, orgID, userID int64, ids []int64, at time.Time) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "MarkUserItemsProcessed")
	defer func() { s.endSpan(span, err) }()

	if len(ids) == 0 {
		return 0, nil
	}

	const sql = `UPDATE notification_digest_queue SET processed = TRUE, processed_at = $4
		WHERE organization_id = $1 AND user_id = $2 AND id = ANY($3) AND processed = FALSE`

	tag, err := s.conn.Exec(ctx, sql, orgID, userID, ids, at)
	if err != nil {
		return 0, s.mapError(err)
	}
	return tag.RowsAffected(), nil
}
