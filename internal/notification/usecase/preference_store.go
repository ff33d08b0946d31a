package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
)

// getPreference reads through the cache; a missing record yields the defaults.
func (s *Usecase) getPreference(ctx context.Context, orgID, userID int64) (*entity.Preference, error) {
	p, err := s.repoCache.GetPreference(ctx, orgID, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "failed to cache get preference", "organization_id", orgID, "user_id", userID, "error", err)
	}

	p, err = s.repoDB.GetPreference(ctx, orgID, userID)
	if errors.Is(err, goerror.ErrNotFound) {
		p = entity.DefaultPreference(orgID, userID)
	} else if err != nil {
		slog.ErrorContext(ctx, "failed to repo get preference", "organization_id", orgID, "user_id", userID, "error", err)
		return nil, err
	}

	if err := s.repoCache.SetPreference(ctx, p); err != nil {
		slog.WarnContext(ctx, "failed to cache set preference", "organization_id", orgID, "user_id", userID, "error", err)
	}

	return p, nil
}

func (s *Usecase) savePreference(ctx context.Context, p *entity.Preference) error {
	if err := s.repoDB.UpsertPreference(ctx, *p); err != nil {
		slog.ErrorContext(ctx, "failed to repo upsert preference", "organization_id", p.OrganizationID, "user_id", p.UserID, "error", err)
		return err
	}

	if err := s.repoCache.DeletePreference(ctx, p.OrganizationID, p.UserID); err != nil {
		slog.ErrorContext(ctx, "failed to cache delete preference", "organization_id", p.OrganizationID, "user_id", p.UserID, "error", err)
		return err
	}

	return nil
}

func (s *Usecase) getOrgSettings(ctx context.Context, orgID int64) (*entity.OrgSettings, error) {
	st, err := s.repoCache.GetOrgSettings(ctx, orgID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "failed to cache get org settings", "organization_id", orgID, "error", err)
	}

	st, err = s.repoDB.GetOrgSettings(ctx, orgID)
	if errors.Is(err, goerror.ErrNotFound) {
		st = entity.DefaultOrgSettings(orgID)
	} else if err != nil {
		slog.ErrorContext(ctx, "failed to repo get org settings", "organization_id", orgID, "error", err)
		return nil, err
	}

	if err := s.repoCache.SetOrgSettings(ctx, st); err != nil {
		slog.WarnContext(ctx, "failed to cache set org settings", "organization_id", orgID, "error", err)
	}

	return st, nil
}

func (s *Usecase) saveOrgSettings(ctx context.Context, st *entity.OrgSettings) error {
	if err := s.repoDB.UpsertOrgSettings(ctx, *st); err != nil {
		slog.ErrorContext(ctx, "failed to repo upsert org settings", "organization_id", st.OrganizationID, "error", err)
		return err
	}

	if err := s.repoCache.DeleteOrgSettings(ctx, st.OrganizationID); err != nil {
		slog.ErrorContext(ctx, "failed to cache delete org settings", "organization_id", st.OrganizationID, "error", err)
		return err
	}

	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, goerror.ErrNotFound)
}
