package db

import (
	"context"
	"fmt"

	"github.com/shandysiswandi/courier/internal/notification/entity"
)

func (s *DB) GetTemplate(ctx context.Context, orgID int64, key string) (_ *entity.Template, err error) {
	ctx, span := s.startSpan(ctx, "GetTemplate")
	defer func() { s.endSpan(span, err) }()

	// An organization override wins over the global template (organization_id 0).
	const sql = `SELECT organization_id, template_key, subject, body FROM notification_templates
		WHERE template_key = $2 AND organization_id IN ($1, 0)
		ORDER BY organization_id DESC
		LIMIT 1`

	var t entity.Template
	err = s.conn.QueryRow(ctx, sql, orgID, key).Scan(&t.OrganizationID, &t.Key, &t.Subject, &t.Body)
	if err != nil {
		return nil, s.mapError(err)
	}
	return &t, nil
}

func (s *DB) GetDirectoryUser(ctx context.Context, orgID, userID int64) (_ *entity.DirectoryUser, err error) {
	ctx, span := s.startSpan(ctx, "GetDirectoryUser")
	defer func() { s.endSpan(span, err) }()

	const sql = `SELECT id, organization_id, email, full_name, timezone, is_active FROM directory_users
		WHERE organization_id = $1 AND id = $2`

	var u entity.DirectoryUser
	err = s.conn.QueryRow(ctx, sql, orgID, userID).Scan(&u.ID, &u.OrganizationID, &u.Email, &u.FullName, &u.Timezone, &u.IsActive)
	if err != nil {
		return nil, s.mapError(err)
	}
	return &u, nil
}

var referenceTables = map[entity.EntityKind]string{
	entity.EntityKindCase:            "cases",
	entity.EntityKindInvestigation:   "investigations",
	entity.EntityKindRIU:             "rius",
	entity.EntityKindRemediationPlan: "remediation_plans",
}

// GetEntityReference returns the display reference number of ref, e.g. "CASE-2024-001".
func (s *DB) GetEntityReference(ctx context.Context, orgID int64, ref entity.EntityRef) (_ string, err error) {
	ctx, span := s.startSpan(ctx, "GetEntityReference")
	defer func() { s.endSpan(span, err) }()

	table, ok := referenceTables[ref.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", entity.ErrUnknownEntityKind, ref.Kind)
	}

	sql := `SELECT reference_number FROM ` + table + ` WHERE organization_id = $1 AND id = $2`

	var reference string
	if err = s.conn.QueryRow(ctx, sql, orgID, ref.ID).Scan(&reference); err != nil {
		return "", s.mapError(err)
	}
	return reference, nil
}
