package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/clock"
	"github.com/shandysiswandi/courier/internal/pkg/config"
	"github.com/shandysiswandi/courier/internal/pkg/idempotency"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/uid"
	"github.com/shandysiswandi/courier/internal/pkg/validator"
	"github.com/shandysiswandi/courier/internal/pkg/workqueue"
	"github.com/shandysiswandi/courier/internal/shared/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type repoDB interface {
	GetPreference(ctx context.Context, orgID, userID int64) (*entity.Preference, error)
	UpsertPreference(ctx context.Context, p entity.Preference) error
	GetOrgSettings(ctx context.Context, orgID int64) (*entity.OrgSettings, error)
	UpsertOrgSettings(ctx context.Context, st entity.OrgSettings) error

	CreateNotification(ctx context.Context, n entity.Notification) (bool, error)
	CreateEmailNotification(ctx context.Context, n entity.Notification, d entity.Delivery) (int64, error)
	GetNotification(ctx context.Context, orgID, id int64) (*entity.Notification, error)

	GetDelivery(ctx context.Context, orgID, notificationID int64) (*entity.Delivery, error)
	GetDeliveryByProviderMessageID(ctx context.Context, orgID int64, providerMessageID string) (*entity.Delivery, error)
	UpdateDelivery(ctx context.Context, u entity.DeliveryUpdate, ns entity.NotificationStatus) (bool, error)
	RecordPermanentFailure(ctx context.Context, pf entity.PermanentFailure) (*entity.AuditEntry, error)
	IsEmailSuppressed(ctx context.Context, orgID int64, email string) (bool, error)
	CreateEmailSuppression(ctx context.Context, sup entity.EmailSuppression) error

	CreateDigestItem(ctx context.Context, item entity.DigestItem) error
	ListOrganizationsWithPendingDigest(ctx context.Context) ([]int64, error)
	ListUsersWithPendingDigest(ctx context.Context, orgID int64) ([]int64, error)
	ListPendingDigestItems(ctx context.Context, orgID, userID int64) ([]entity.DigestItem, error)
	MarkUserItemsProcessed(ctx context.Context, orgID, userID int64, ids []int64, at time.Time) (int64, error)

	ListInbox(ctx context.Context, f entity.ListInboxFilter) ([]entity.Notification, error)
	ListRecent(ctx context.Context, f entity.RecentFilter) ([]entity.Notification, error)
	CountUnread(ctx context.Context, orgID, userID int64) (int64, error)
	MarkRead(ctx context.Context, orgID, userID int64, ids []int64, at time.Time) ([]int64, error)
	MarkAllRead(ctx context.Context, orgID, userID int64, at time.Time) (int64, error)
	ArchiveNotification(ctx context.Context, orgID, userID, id int64, at time.Time) (bool, error)
}

type repoDirectory interface {
	GetDirectoryUser(ctx context.Context, orgID, userID int64) (*entity.DirectoryUser, error)
}

type repoEntityLookup interface {
	GetEntityReference(ctx context.Context, orgID int64, ref entity.EntityRef) (string, error)
}

type repoRenderer interface {
	Render(ctx context.Context, key string, data map[string]any, orgID int64) (*entity.RenderedEmail, error)
}

// OutboundEmail is what the transport needs to send one notification.
type OutboundEmail struct {
	OrganizationID int64
	NotificationID int64
	To             string
	Subject        string
	HTML           string
}

type repoMail interface {
	Send(ctx context.Context, msg OutboundEmail) (string, error)
}

type repoCache interface {
	GetPreference(ctx context.Context, orgID, userID int64) (*entity.Preference, error)
	SetPreference(ctx context.Context, p *entity.Preference) error
	DeletePreference(ctx context.Context, orgID, userID int64) error
	GetOrgSettings(ctx context.Context, orgID int64) (*entity.OrgSettings, error)
	SetOrgSettings(ctx context.Context, st *entity.OrgSettings) error
	DeleteOrgSettings(ctx context.Context, orgID int64) error
}

type repoMQ interface {
	PublishRealtime(ctx context.Context, msg event.NotificationRealtimeMessage) error
	PublishDeliveryFailed(ctx context.Context, msg event.NotificationDeliveryFailedMessage) error
}

type authorizer interface {
	Allow(sub, obj, act string) (bool, error)
}

type options struct {
	sendAttempts      int
	digestConcurrency int
	recentLimit       int32
	baseURL           string
	dispatchKeyTTL    time.Duration
	recordRetries     uint64
	recordBackoff     time.Duration
}

type metrics struct {
	dispatch   metric.Int64Counter
	transition metric.Int64Counter
	digestSent metric.Int64Counter
}

type Usecase struct {
	repoDB        repoDB
	repoDirectory repoDirectory
	repoEntity    repoEntityLookup
	repoRenderer  repoRenderer
	repoMail      repoMail
	repoCache     repoCache
	repoMQ        repoMQ
	queue         workqueue.Queue
	guard         idempotency.Guard
	authz         authorizer
	uid           uid.NumberID
	uuid          uid.StringID
	clock         clock.Clocker
	validator     validator.Validator
	ins           instrument.Instrumentation
	opts          options
	metrics       metrics

	streamMu sync.RWMutex
	streams  map[string]map[*subscriber]struct{}
}

type Dependency struct {
	RepoDB        repoDB
	RepoDirectory repoDirectory
	RepoEntity    repoEntityLookup
	RepoRenderer  repoRenderer
	RepoMail      repoMail
	RepoCache     repoCache
	RepoMQ        repoMQ
	Queue         workqueue.Queue
	Guard         idempotency.Guard
	Authorizer    authorizer
	Config        config.Config
	UID           uid.NumberID
	UUID          uid.StringID
	Clock         clock.Clocker
	Validator     validator.Validator
	Instrument    instrument.Instrumentation
}

func NewNotification(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:        dep.RepoDB,
		repoDirectory: dep.RepoDirectory,
		repoEntity:    dep.RepoEntity,
		repoRenderer:  dep.RepoRenderer,
		repoMail:      dep.RepoMail,
		repoCache:     dep.RepoCache,
		repoMQ:        dep.RepoMQ,
		queue:         dep.Queue,
		guard:         dep.Guard,
		authz:         dep.Authorizer,
		uid:           dep.UID,
		uuid:          dep.UUID,
		clock:         dep.Clock,
		validator:     dep.Validator,
		ins:           dep.Instrument,
		opts:          newOptions(dep.Config),
		metrics:       newMetrics(dep.Instrument),
		streams:       make(map[string]map[*subscriber]struct{}),
	}
}

func newOptions(cfg config.Config) options {
	opts := options{
		sendAttempts:      5,
		digestConcurrency: 8,
		recentLimit:       50,
		dispatchKeyTTL:    24 * time.Hour,
		recordRetries:     3,
		recordBackoff:     100 * time.Millisecond,
	}
	if cfg == nil {
		return opts
	}

	if v := cfg.GetInt("modules.notification.send_attempts"); v > 0 {
		opts.sendAttempts = v
	}
	if v := cfg.GetInt("modules.notification.digest_concurrency"); v > 0 {
		opts.digestConcurrency = v
	}
	if v := cfg.GetInt32("modules.notification.recent_limit"); v > 0 {
		opts.recentLimit = v
	}
	if v := cfg.GetSecond("modules.notification.dispatch_key_ttl_seconds"); v > 0 {
		opts.dispatchKeyTTL = v
	}
	opts.baseURL = cfg.GetString("modules.notification.base_url")

	return opts
}

func newMetrics(ins instrument.Instrumentation) metrics {
	meter := ins.Meter("notification.usecase")

	dispatch, err := meter.Int64Counter("notification.dispatch.total",
		metric.WithDescription("Dispatched notifications by routing path"))
	if err != nil {
		slog.Error("failed to create dispatch counter", "error", err)
	}

	transition, err := meter.Int64Counter("notification.delivery.transition.total",
		metric.WithDescription("Delivery status transitions by target status"))
	if err != nil {
		slog.Error("failed to create delivery transition counter", "error", err)
	}

	digestSent, err := meter.Int64Counter("notification.digest.sent.total",
		metric.WithDescription("Compiled digests queued for sending"))
	if err != nil {
		slog.Error("failed to create digest counter", "error", err)
	}

	return metrics{dispatch: dispatch, transition: transition, digestSent: digestSent}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("notification.usecase").Start(ctx, name)
}

func count(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}
