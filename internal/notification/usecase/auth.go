package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/pkg/jwt"
)

const (
	objOrgSettings = "notification.org_settings"
	actWrite       = "write"
)

func (s *Usecase) requireAuth(ctx context.Context) (*jwt.Claims, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil || clm.UserID == 0 || clm.OrganizationID == 0 {
		return nil, goerror.NewBusiness("authentication required", goerror.CodeUnauthorized)
	}

	return clm, nil
}

func (s *Usecase) requirePermission(ctx context.Context, clm *jwt.Claims, obj, act string) error {
	allowed, err := s.authz.Allow(clm.Role, obj, act)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check permission", "role", clm.Role, "object", obj, "action", act, "error", err)
		return goerror.NewServer(err)
	}
	if !allowed {
		return goerror.NewBusiness("permission denied", goerror.CodeForbidden)
	}

	return nil
}
