package inbound

import (
	"context"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/notification/usecase"
	"github.com/shandysiswandi/courier/internal/pkg/workqueue"
	"github.com/shandysiswandi/courier/internal/shared/event"
)

type ucDispatch interface {
	Dispatch(ctx context.Context, in usecase.DispatchInput) error
}

type ucRealtime interface {
	Subscribe(ctx context.Context) (<-chan entity.RealtimeEvent, error)
	DeliverRealtime(ctx context.Context, msg event.NotificationRealtimeMessage) error
	ListRecent(ctx context.Context, in usecase.ListRecentInput) ([]entity.Notification, error)
	GetUnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, in usecase.MarkReadInput) ([]int64, error)
}

type ucWorker interface {
	ProcessSendJob(ctx context.Context, job workqueue.Job) error
	RunDigestTick(ctx context.Context) error
}

type ucWebhook interface {
	ProcessWebhookEvent(ctx context.Context, evt entity.WebhookEvent) error
}

type uc interface {
	ucDispatch
	ucRealtime
	ucWorker
	ucWebhook

	ListInbox(ctx context.Context, in usecase.ListInboxInput) ([]entity.Notification, error)
	MarkAllRead(ctx context.Context) error
	Archive(ctx context.Context, in usecase.ArchiveInput) error

	GetPreferences(ctx context.Context) (*entity.Preference, error)
	UpdatePreferences(ctx context.Context, in usecase.UpdatePreferencesInput) (*entity.Preference, error)
	SetOOO(ctx context.Context, in usecase.SetOOOInput) (*entity.Preference, error)
	ClearOOO(ctx context.Context) error
	GetOrgSettings(ctx context.Context) (*entity.OrgSettings, error)
	UpdateOrgSettings(ctx context.Context, in usecase.UpdateOrgSettingsInput) (*entity.OrgSettings, error)
}
