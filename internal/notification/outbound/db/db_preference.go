package db

import (
	"context"

	"github.com/shandysiswandi/courier/internal/notification/entity"
)

func (s *DB) GetPreference(ctx context.Context, orgID, userID int64) (_ *entity.Preference, err error) {
	ctx, span := s.startSpan(ctx, "GetPreference")
	defer func() { s.endSpan(span, err) }()

	const q = `SELECT categories, quiet_hours_start, quiet_hours_end, timezone, backup_user_id, ooo_until, updated_at
		FROM notification_user_preferences
		WHERE organization_id = $1 AND user_id = $2`

	p := entity.Preference{OrganizationID: orgID, UserID: userID}
	var qStart, qEnd *string
	err = s.conn.QueryRow(ctx, q, orgID, userID).Scan(
		&p.Categories, &qStart, &qEnd, &p.Timezone, &p.BackupUserID, &p.OOOUntil, &p.UpdatedAt,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	if p.QuietHours, err = entity.NewQuietHours(derefString(qStart), derefString(qEnd)); err != nil {
		return nil, err
	}
	if p.Categories == nil {
		p.Categories = map[entity.Category]entity.ChannelPreference{}
	}

	return &p, nil
}

func (s *DB) UpsertPreference(ctx context.Context, p entity.Preference) (err error) {
	ctx, span := s.startSpan(ctx, "UpsertPreference")
	defer func() { s.endSpan(span, err) }()

	const q = `INSERT INTO notification_user_preferences
			(organization_id, user_id, categories, quiet_hours_start, quiet_hours_end, timezone, backup_user_id, ooo_until, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET
			categories = EXCLUDED.categories,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			backup_user_id = EXCLUDED.backup_user_id,
			ooo_until = EXCLUDED.ooo_until,
			updated_at = EXCLUDED.updated_at`

	qStart, qEnd := quietHoursColumns(p.QuietHours)
	_, err = s.conn.Exec(ctx, q,
		p.OrganizationID, p.UserID, p.Categories, qStart, qEnd, p.Timezone, p.BackupUserID, p.OOOUntil, p.UpdatedAt,
	)
	return s.mapError(err)
}

func (s *DB) GetOrgSettings(ctx context.Context, orgID int64) (_ *entity.OrgSettings, err error) {
	ctx, span := s.startSpan(ctx, "GetOrgSettings")
	defer func() { s.endSpan(span, err) }()

	const q = `SELECT enforced_categories, quiet_hours_start, quiet_hours_end, digest_hour, timezone, updated_at
		FROM notification_org_settings
		WHERE organization_id = $1`

	st := entity.OrgSettings{OrganizationID: orgID}
	var (
		enforced   []string
		qStart     *string
		qEnd       *string
		digestHour int16
	)
	err = s.conn.QueryRow(ctx, q, orgID).Scan(&enforced, &qStart, &qEnd, &digestHour, &st.Timezone, &st.UpdatedAt)
	if err != nil {
		return nil, s.mapError(err)
	}

	st.DigestHour = int(digestHour)
	for _, raw := range enforced {
		if c, ok := entity.CategoryFromString(raw); ok {
			st.EnforcedCategories = append(st.EnforcedCategories, c)
		}
	}
	if st.QuietHours, err = entity.NewQuietHours(derefString(qStart), derefString(qEnd)); err != nil {
		return nil, err
	}

	return &st, nil
}

func (s *DB) UpsertOrgSettings(ctx context.Context, st entity.OrgSettings) (err error) {
	ctx, span := s.startSpan(ctx, "UpsertOrgSettings")
	defer func() { s.endSpan(span, err) }()

	const q = `INSERT INTO notification_org_settings
			(organization_id, enforced_categories, quiet_hours_start, quiet_hours_end, digest_hour, timezone, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id) DO UPDATE SET
			enforced_categories = EXCLUDED.enforced_categories,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			digest_hour = EXCLUDED.digest_hour,
			timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at`

	enforced := make([]string, 0, len(st.EnforcedCategories))
	for _, c := range st.EnforcedCategories {
		enforced = append(enforced, c.String())
	}

	qStart, qEnd := quietHoursColumns(st.QuietHours)
	_, err = s.conn.Exec(ctx, q,
		st.OrganizationID, enforced, qStart, qEnd, int16(st.DigestHour), st.Timezone, st.UpdatedAt,
	)
	return s.mapError(err)
}

func quietHoursColumns(q *entity.QuietHours) (*string, *string) {
	if q == nil {
		return nil, nil
	}
	return nullString(q.Start.String()), nullString(q.End.String())
}
