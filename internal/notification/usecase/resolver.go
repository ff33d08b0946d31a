package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"go.opentelemetry.io/otel/attribute"
)

// GetEffective layers user preference, organization enforcement, out-of-office
// redirection and quiet hours into one decision for (user, org, category).
func (s *Usecase) GetEffective(ctx context.Context, userID, orgID int64, category entity.Category) (entity.EffectiveDecision, error) {
	ctx, span := s.startSpan(ctx, "GetEffective")
	defer span.End()

	span.SetAttributes(attribute.String("notification.category", category.String()))

	pref, err := s.getPreference(ctx, orgID, userID)
	if err != nil {
		return entity.EffectiveDecision{}, err
	}

	st, err := s.getOrgSettings(ctx, orgID)
	if err != nil {
		return entity.EffectiveDecision{}, err
	}

	now := s.clock.Now()
	ch := pref.Channels(category)
	d := entity.EffectiveDecision{Email: ch.Email, InApp: ch.InApp}

	// Enforcement only ever switches channels on.
	if st.IsEnforced(category) {
		d.IsEnforced = true
		d.Email = true
		d.InApp = true
	}

	if pref.IsOOO(now) {
		d.IsOOO = true
		if category.IsUrgent() && d.Email {
			d.BackupUserID = s.resolveBackup(ctx, orgID, userID, pref.BackupUserID)
		}
	}

	d.IsQuietHours = s.inQuietHours(ctx, pref, st, now)
	if d.IsQuietHours && d.Email && !d.IsEnforced && !category.IsUrgent() {
		d.Email = false
		d.QuietHoursSuppressed = true
	}

	return d, nil
}

// resolveBackup returns the backup user id only when it is an active member of orgID.
func (s *Usecase) resolveBackup(ctx context.Context, orgID, userID int64, backupID *int64) *int64 {
	if backupID == nil || *backupID == userID {
		return nil
	}

	backup, err := s.repoDirectory.GetDirectoryUser(ctx, orgID, *backupID)
	if errors.Is(err, goerror.ErrNotFound) || (err == nil && !backup.IsActive) {
		slog.WarnContext(ctx, "ooo backup unavailable, keeping original recipient",
			"organization_id", orgID, "user_id", userID, "backup_user_id", *backupID)
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get backup user", "organization_id", orgID, "backup_user_id", *backupID, "error", err)
		return nil
	}

	id := backup.ID
	return &id
}

// inQuietHours uses the user's window over the organization's, in the user's
// timezone, then the organization's, then UTC.
func (s *Usecase) inQuietHours(ctx context.Context, pref *entity.Preference, st *entity.OrgSettings, now time.Time) bool {
	window := pref.QuietHours
	if window == nil {
		window = st.QuietHours
	}
	if window == nil {
		return false
	}

	tz := pref.Timezone
	if tz == "" {
		tz = st.Timezone
	}
	if tz == "" {
		tz = entity.DefaultTimezone
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.WarnContext(ctx, "unparseable timezone, quiet hours inactive",
			"organization_id", pref.OrganizationID, "user_id", pref.UserID, "timezone", tz, "error", err)
		return false
	}

	return window.Contains(now.In(loc))
}
