// Package notification wires the notification dispatch and delivery tracking
// module: preference resolution, email and in-app delivery, provider webhooks,
// digests and realtime fan-out.
package notification

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/courier/internal/notification/inbound"
	"github.com/shandysiswandi/courier/internal/notification/outbound/cache"
	"github.com/shandysiswandi/courier/internal/notification/outbound/db"
	"github.com/shandysiswandi/courier/internal/notification/outbound/email"
	"github.com/shandysiswandi/courier/internal/notification/outbound/mq"
	"github.com/shandysiswandi/courier/internal/notification/usecase"
	"github.com/shandysiswandi/courier/internal/notification/webhook"
	"github.com/shandysiswandi/courier/internal/pkg/authz"
	"github.com/shandysiswandi/courier/internal/pkg/clock"
	"github.com/shandysiswandi/courier/internal/pkg/config"
	"github.com/shandysiswandi/courier/internal/pkg/goroutine"
	"github.com/shandysiswandi/courier/internal/pkg/idempotency"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/mail"
	"github.com/shandysiswandi/courier/internal/pkg/messaging"
	"github.com/shandysiswandi/courier/internal/pkg/router"
	"github.com/shandysiswandi/courier/internal/pkg/uid"
	"github.com/shandysiswandi/courier/internal/pkg/validator"
	"github.com/shandysiswandi/courier/internal/pkg/workqueue"
)

type Dependency struct {
	Ctx        context.Context
	DBConn     *pgxpool.Pool
	Redis      redis.UniversalClient
	Messaging  messaging.Messaging
	Config     config.Config
	Instrument instrument.Instrumentation
	UID        uid.NumberID
	UUID       uid.StringID
	Clock      clock.Clocker
	Goroutine  *goroutine.Manager
	Validator  validator.Validator
	Router     *router.Router
	Mail       mail.Mail
	Authorizer authz.Authorizer
}

// PublicEndpoints are the module routes that skip bearer authentication.
func PublicEndpoints() map[string][]string {
	return inbound.PublicEndpoints()
}

func New(dep Dependency) error {
	dbNotif := db.NewDB(dep.DBConn, dep.Instrument)
	repoCache := cache.New(dep.Redis, dep.Config.GetSecond("modules.notification.cache_ttl_seconds"), dep.Instrument)
	repoMail := email.New(dep.Mail, dep.Instrument)
	repoRenderer := email.NewRenderer(dbNotif, dep.Instrument)

	var repoMQ *mq.Messaging
	if dep.Messaging != nil {
		repoMQ = mq.NewMessaging(dep.Messaging, dep.Instrument)
	}

	queue := workqueue.NewRedis(dep.Redis, workqueue.Config{
		Prefix:        "notification:sendq",
		Visibility:    dep.Config.GetSecond("modules.notification.send_visibility_seconds"),
		BaseBackoff:   dep.Config.GetMillisecond("modules.notification.send_backoff_base_ms"),
		MaxBackoff:    dep.Config.GetSecond("modules.notification.send_backoff_cap_seconds"),
		JitterPercent: uint64(dep.Config.GetUint("modules.notification.send_backoff_jitter_percent")),
	})

	guard := idempotency.New(dep.Redis, "notification:idempotency:")

	deps := usecase.Dependency{
		RepoDB:        dbNotif,
		RepoDirectory: dbNotif,
		RepoEntity:    dbNotif,
		RepoRenderer:  repoRenderer,
		RepoMail:      repoMail,
		RepoCache:     repoCache,
		Queue:         queue,
		Guard:         guard,
		Authorizer:    dep.Authorizer,
		Config:        dep.Config,
		UID:           dep.UID,
		UUID:          dep.UUID,
		Clock:         dep.Clock,
		Validator:     dep.Validator,
		Instrument:    dep.Instrument,
	}
	// a typed nil would defeat the usecase's local-delivery fallback.
	if repoMQ != nil {
		deps.RepoMQ = repoMQ
	}
	uc := usecase.NewNotification(deps)

	hooks := webhook.NewRegistry(webhook.NewSendGrid(), webhook.NewSES())
	inbound.RegisterHTTPEndpoint(dep.Router, dep.Config, dep.UUID, hooks, uc)

	if dep.Ctx == nil {
		return nil
	}

	if dep.Messaging != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)
	}
	inbound.RegisterSendWorkers(dep.Ctx, dep.Config, dep.Goroutine, queue, dep.UUID, uc, dep.Instrument)

	return inbound.RegisterDigestScheduler(dep.Ctx, dep.Config, dep.Goroutine, guard, dep.Clock, dep.UUID, uc, dep.Instrument)
}
