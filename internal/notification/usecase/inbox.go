package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
)

// UnreadCount is the payload of notification:unread_count.
type UnreadCount struct {
	Count int64 `json:"count"`
}

// MarkedRead is the payload of notification:marked_read.
type MarkedRead struct {
	IDs []int64 `json:"ids"`
}

type ListInboxInput struct {
	Read   string `validate:"omitempty,oneof=all unread read"`
	Limit  int32  `validate:"omitempty,gte=1,lte=100"`
	Offset int32  `validate:"omitempty,gte=0"`
}

func (s *Usecase) ListInbox(ctx context.Context, in ListInboxInput) ([]entity.Notification, error) {
	ctx, span := s.startSpan(ctx, "ListInbox")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	if in.Read == "" {
		in.Read = string(entity.ReadFilterAll)
	}
	if in.Limit == 0 {
		in.Limit = 20
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	items, err := s.repoDB.ListInbox(ctx, entity.ListInboxFilter{
		OrganizationID: clm.OrganizationID,
		UserID:         clm.UserID,
		Read:           entity.ReadFilter(in.Read),
		Limit:          in.Limit,
		Offset:         in.Offset,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list inbox", "user_id", clm.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return items, nil
}

type ListRecentInput struct {
	Since *time.Time
	Limit int32 `validate:"omitempty,gte=1"`
}

// ListRecent is the poll fallback for clients without a live connection.
func (s *Usecase) ListRecent(ctx context.Context, in ListRecentInput) ([]entity.Notification, error) {
	ctx, span := s.startSpan(ctx, "ListRecent")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}
	if in.Limit == 0 || in.Limit > s.opts.recentLimit {
		in.Limit = s.opts.recentLimit
	}

	items, err := s.repoDB.ListRecent(ctx, entity.RecentFilter{
		OrganizationID: clm.OrganizationID,
		UserID:         clm.UserID,
		Since:          in.Since,
		Limit:          in.Limit,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list recent", "user_id", clm.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return items, nil
}

func (s *Usecase) GetUnreadCount(ctx context.Context) (int64, error) {
	ctx, span := s.startSpan(ctx, "GetUnreadCount")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return 0, err
	}

	n, err := s.repoDB.CountUnread(ctx, clm.OrganizationID, clm.UserID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo count unread", "user_id", clm.UserID, "error", err)
		return 0, goerror.NewServer(err)
	}

	return n, nil
}

type MarkReadInput struct {
	IDs []int64 `validate:"required,min=1,max=100,dive,gt=0"`
}

// MarkRead returns the ids that changed; ids of other users or already read are ignored.
func (s *Usecase) MarkRead(ctx context.Context, in MarkReadInput) ([]int64, error) {
	ctx, span := s.startSpan(ctx, "MarkRead")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	ids, err := s.repoDB.MarkRead(ctx, clm.OrganizationID, clm.UserID, in.IDs, s.clock.Now())
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo mark read", "user_id", clm.UserID, "ids", in.IDs, "error", err)
		return nil, goerror.NewServer(err)
	}

	if len(ids) > 0 {
		s.push(ctx, entity.RealtimeEvent{
			Type:           entity.RealtimeMarkedRead,
			OrganizationID: clm.OrganizationID,
			UserID:         clm.UserID,
			Data:           MarkedRead{IDs: ids},
		})
		s.pushUnreadCount(ctx, clm.OrganizationID, clm.UserID)
	}

	return ids, nil
}

func (s *Usecase) MarkAllRead(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "MarkAllRead")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return err
	}

	n, err := s.repoDB.MarkAllRead(ctx, clm.OrganizationID, clm.UserID, s.clock.Now())
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo mark all read", "user_id", clm.UserID, "error", err)
		return goerror.NewServer(err)
	}

	if n > 0 {
		s.pushUnreadCount(ctx, clm.OrganizationID, clm.UserID)
	}

	return nil
}

type ArchiveInput struct {
	ID int64 `validate:"required,gt=0"`
}

func (s *Usecase) Archive(ctx context.Context, in ArchiveInput) error {
	ctx, span := s.startSpan(ctx, "Archive")
	defer span.End()

	clm, err := s.requireAuth(ctx)
	if err != nil {
		return err
	}

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	archived, err := s.repoDB.ArchiveNotification(ctx, clm.OrganizationID, clm.UserID, in.ID, s.clock.Now())
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo archive notification", "user_id", clm.UserID, "notification_id", in.ID, "error", err)
		return goerror.NewServer(err)
	}
	if !archived {
		return goerror.NewBusiness("inbox notification not found", goerror.CodeNotFound)
	}

	s.pushUnreadCount(ctx, clm.OrganizationID, clm.UserID)

	return nil
}
