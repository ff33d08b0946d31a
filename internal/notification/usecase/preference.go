package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
)

func (s *Usecase) GetPreferences(ctx context.Context) (*entity.Preference, error) {
	ctx, span := s.startSpan(ctx, "GetPreferences")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.getPreference(ctx, clm.OrganizationID, clm.UserID)
	if err != nil {
		return nil, goerror.NewServer(err)
	}

	return p, nil
}

type UpdatePreferencesInput struct {
	Categories      map[string]entity.ChannelPreference
	QuietHoursStart string `validate:"omitempty,hhmm,required_with=QuietHoursEnd"`
	QuietHoursEnd   string `validate:"omitempty,hhmm,required_with=QuietHoursStart"`
	Timezone        string `validate:"omitempty,timezone"`
}

// UpdatePreferences merges the given categories into the stored record and
// replaces the quiet hours window and timezone.
func (s *Usecase) UpdatePreferences(ctx context.Context, in UpdatePreferencesInput) (*entity.Preference, error) {
	ctx, span := s.startSpan(ctx, "UpdatePreferences")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	categories := make(map[entity.Category]entity.ChannelPreference, len(in.Categories))
	for raw, cp := range in.Categories {
		c, ok := entity.CategoryFromString(raw)
		if !ok || !c.IsPreference() {
			return nil, goerror.NewInvalidInput(nil, "categories", "unknown category "+strings.ToUpper(raw))
		}
		categories[c] = cp
	}

	window, err := entity.NewQuietHours(in.QuietHoursStart, in.QuietHoursEnd)
	if err != nil {
		return nil, goerror.NewInvalidInput(nil, "quiet_hours", err.Error())
	}

	p, err := s.getPreference(ctx, clm.OrganizationID, clm.UserID)
	if err != nil {
		return nil, goerror.NewServer(err)
	}

	updated := *p
	updated.Categories = make(map[entity.Category]entity.ChannelPreference, len(p.Categories)+len(categories))
	for c, cp := range p.Categories {
		updated.Categories[c] = cp
	}
	for c, cp := range categories {
		updated.Categories[c] = cp
	}
	updated.QuietHours = window
	updated.Timezone = in.Timezone
	updated.UpdatedAt = s.clock.Now()

	if err := s.savePreference(ctx, &updated); err != nil {
		return nil, goerror.NewServer(err)
	}

	return &updated, nil
}

type SetOOOInput struct {
	Until        time.Time `validate:"required"`
	BackupUserID int64     `validate:"omitempty,gt=0"`
}

func (s *Usecase) SetOOO(ctx context.Context, in SetOOOInput) (*entity.Preference, error) {
	ctx, span := s.startSpan(ctx, "SetOOO")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	now := s.clock.Now()
	if !in.Until.After(now) {
		return nil, goerror.NewInvalidInput(nil, "until", "until must be in the future")
	}

	var backupID *int64
	if in.BackupUserID != 0 {
		if in.BackupUserID == clm.UserID {
			return nil, goerror.NewInvalidInput(nil, "backup_user_id", "backup user must be someone else")
		}

		backup, err := s.repoDirectory.GetDirectoryUser(ctx, clm.OrganizationID, in.BackupUserID)
		if err != nil || !backup.IsActive {
			if err != nil && !isNotFound(err) {
				return nil, goerror.NewServer(err)
			}
			return nil, goerror.NewInvalidInput(nil, "backup_user_id", "backup user must be an active member of the organization")
		}
		backupID = &backup.ID
	}

	p, err := s.getPreference(ctx, clm.OrganizationID, clm.UserID)
	if err != nil {
		return nil, goerror.NewServer(err)
	}

	updated := *p
	until := in.Until
	updated.OOOUntil = &until
	updated.BackupUserID = backupID
	updated.UpdatedAt = now

	if err := s.savePreference(ctx, &updated); err != nil {
		return nil, goerror.NewServer(err)
	}

	return &updated, nil
}

func (s *Usecase) ClearOOO(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "ClearOOO")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return err
	}

	p, err := s.getPreference(ctx, clm.OrganizationID, clm.UserID)
	if err != nil {
		return goerror.NewServer(err)
	}

	updated := *p
	updated.OOOUntil = nil
	updated.BackupUserID = nil
	updated.UpdatedAt = s.clock.Now()

	if err := s.savePreference(ctx, &updated); err != nil {
		return goerror.NewServer(err)
	}

	return nil
}

func (s *Usecase) GetOrgSettings(ctx context.Context) (*entity.OrgSettings, error) {
	ctx, span := s.startSpan(ctx, "GetOrgSettings")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	st, err := s.getOrgSettings(ctx, clm.OrganizationID)
	if err != nil {
		return nil, goerror.NewServer(err)
	}

	return st, nil
}

type UpdateOrgSettingsInput struct {
	EnforcedCategories []string `validate:"dive,required"`
	QuietHoursStart    string   `validate:"omitempty,hhmm,required_with=QuietHoursEnd"`
	QuietHoursEnd      string   `validate:"omitempty,hhmm,required_with=QuietHoursStart"`
	DigestHour         int      `validate:"gte=0,lte=23"`
	Timezone           string   `validate:"omitempty,timezone"`
}

func (s *Usecase) UpdateOrgSettings(ctx context.Context, in UpdateOrgSettingsInput) (*entity.OrgSettings, error) {
	ctx, span := s.startSpan(ctx, "UpdateOrgSettings")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.requirePermission(ctx, clm, objOrgSettings, actWrite); err != nil {
		return nil, err
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	enforced := make([]entity.Category, 0, len(in.EnforcedCategories))
	for _, raw := range in.EnforcedCategories {
		c, ok := entity.CategoryFromString(raw)
		if !ok || !c.IsPreference() {
			return nil, goerror.NewInvalidInput(nil, "enforced_categories", "unknown category "+strings.ToUpper(raw))
		}
		enforced = append(enforced, c)
	}

	window, err := entity.NewQuietHours(in.QuietHoursStart, in.QuietHoursEnd)
	if err != nil {
		return nil, goerror.NewInvalidInput(nil, "quiet_hours", err.Error())
	}

	tz := in.Timezone
	if tz == "" {
		tz = entity.DefaultTimezone
	}

	st := &entity.OrgSettings{
		OrganizationID:     clm.OrganizationID,
		EnforcedCategories: enforced,
		QuietHours:         window,
		DigestHour:         in.DigestHour,
		Timezone:           tz,
		UpdatedAt:          s.clock.Now(),
	}
	if err := s.saveOrgSettings(ctx, st); err != nil {
		return nil, goerror.NewServer(err)
	}

	return st, nil
}
