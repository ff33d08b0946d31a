package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/pkg/idempotency"
	"github.com/shandysiswandi/courier/internal/pkg/workqueue"
	"go.opentelemetry.io/otel/attribute"
)

const (
	pathInApp      = "in_app"
	pathImmediate  = "email_immediate"
	pathBatched    = "email_batched"
	pathQuietHours = "email_quiet_hours"

	metaOriginalRecipient = "original_recipient_user_id"

	dispatchLease = time.Minute
)

type DispatchInput struct {
	// EventID is the producer's id for the event. Redeliveries of one event
	// carry the same id and are applied once.
	EventID         string `validate:"omitempty,max=128"`
	OrganizationID  int64  `validate:"required,gt=0"`
	RecipientUserID int64  `validate:"required,gt=0"`
	Category        string `validate:"required"`
	Urgent          bool
	TemplateKey     string `validate:"omitempty,max=100"`
	TemplateData    map[string]any
	Title           string `validate:"required,max=255"`
	Body            string `validate:"max=4000"`
	EntityKind      string
	EntityID        int64 `validate:"required_with=EntityKind"`
	Metadata        map[string]any
}

// Dispatch routes one event to its recipient. It returns once the work is
// durably recorded; sending happens behind the work queue.
func (s *Usecase) Dispatch(ctx context.Context, in DispatchInput) error {
	ctx, span := s.startSpan(ctx, "Dispatch")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	category, ok := entity.CategoryFromString(in.Category)
	if !ok || !category.IsPreference() {
		return goerror.NewInvalidInput(nil, "category", "unknown category "+in.Category)
	}

	ref, err := entity.NewEntityRef(in.EntityKind, in.EntityID)
	if err != nil {
		return goerror.NewInvalidInput(nil, "entity_kind", err.Error())
	}

	span.SetAttributes(
		attribute.Int64("notification.organization_id", in.OrganizationID),
		attribute.String("notification.category", category.String()),
	)

	recipient, err := s.repoDirectory.GetDirectoryUser(ctx, in.OrganizationID, in.RecipientUserID)
	if isNotFound(err) || (err == nil && !recipient.IsActive) {
		slog.WarnContext(ctx, "dispatch recipient missing or inactive, dropping",
			"organization_id", in.OrganizationID, "user_id", in.RecipientUserID, "category", category)
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get recipient", "organization_id", in.OrganizationID, "user_id", in.RecipientUserID, "error", err)
		return goerror.NewServer(err)
	}

	key := in.dispatchKey(s.clock.Now())
	route := func(ctx context.Context) error {
		return s.route(ctx, in, key, category, ref, recipient)
	}
	if s.guard == nil {
		return route(ctx)
	}

	guardKey := "notification:dispatch:" + strconv.FormatInt(in.OrganizationID, 10) + ":" + key
	err = s.guard.Exec(ctx, guardKey, route,
		idempotency.WithLockDuration(dispatchLease),
		idempotency.WithStateTTL(s.opts.dispatchKeyTTL),
		idempotency.WithRetryOnError(),
	)
	switch {
	case errors.Is(err, idempotency.ErrAlreadyCompleted), errors.Is(err, idempotency.ErrAlreadyFailed):
		slog.InfoContext(ctx, "duplicate dispatch skipped", "organization_id", in.OrganizationID, "dispatch_key", key)
		return nil
	case errors.Is(err, idempotency.ErrAlreadyInProgress):
		return goerror.NewServer(err)
	case err != nil:
		var gerr *goerror.Error
		if errors.As(err, &gerr) {
			return err
		}
		slog.ErrorContext(ctx, "failed to guard dispatch", "organization_id", in.OrganizationID, "dispatch_key", key, "error", err)
		return goerror.NewServer(err)
	}

	return nil
}

// dispatchKey is "evt:" plus the producer's event id. Without one it hashes
// the payload together with the current hour, so a redelivery inside that
// hour is recognised while a later identical event is not.
func (in DispatchInput) dispatchKey(now time.Time) string {
	if in.EventID != "" {
		return "evt:" + in.EventID
	}

	b, err := json.Marshal(in)
	if err != nil {
		b = []byte(in.Category + in.Title + in.Body)
	}
	sum := sha256.Sum256(append(b, now.UTC().Format("2006010215")...))
	return "sha:" + hex.EncodeToString(sum[:16])
}

// route writes every channel decided for one event. Each write is keyed on
// key, so running it again after a partial failure completes the missing
// pieces without duplicating the rest.
func (s *Usecase) route(
	ctx context.Context,
	in DispatchInput,
	key string,
	category entity.Category,
	ref *entity.EntityRef,
	recipient *entity.DirectoryUser,
) error {
	decision, err := s.GetEffective(ctx, recipient.ID, in.OrganizationID, category)
	if err != nil {
		return goerror.NewServer(err)
	}

	if decision.InApp {
		if err := s.dispatchInApp(ctx, in, key, category, ref); err != nil {
			return goerror.NewServer(err)
		}
	}

	switch {
	case in.Urgent || decision.IsEnforced:
		if decision.Email {
			return s.dispatchImmediate(ctx, in, key, category, ref, recipient, decision)
		}
		if decision.QuietHoursSuppressed {
			return s.dispatchBatched(ctx, in, key, category, ref, pathQuietHours)
		}
	default:
		return s.dispatchBatched(ctx, in, key, category, ref, pathBatched)
	}

	return nil
}

func (s *Usecase) dispatchInApp(ctx context.Context, in DispatchInput, key string, category entity.Category, ref *entity.EntityRef) error {
	now := s.clock.Now()
	n := entity.Notification{
		ID:             s.uid.Generate(),
		OrganizationID: in.OrganizationID,
		UserID:         in.RecipientUserID,
		Channel:        entity.ChannelInApp,
		Category:       category,
		Status:         entity.NotificationStatusDelivered,
		Title:          in.Title,
		Body:           in.Body,
		Entity:         ref,
		Metadata:       entity.Metadata(in.Metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
		DispatchKey:    key,
	}
	inserted, err := s.repoDB.CreateNotification(ctx, n)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo create in-app notification", "organization_id", in.OrganizationID, "user_id", in.RecipientUserID, "error", err)
		return err
	}
	if !inserted {
		slog.InfoContext(ctx, "in-app notification already stored", "organization_id", in.OrganizationID, "user_id", in.RecipientUserID, "dispatch_key", key)
		return nil
	}
	count(ctx, s.metrics.dispatch, attribute.String("path", pathInApp))

	s.push(ctx, entity.RealtimeEvent{
		Type:           entity.RealtimeNotificationNew,
		OrganizationID: n.OrganizationID,
		UserID:         n.UserID,
		Data:           NewRealtimeNotification(n),
		At:             now,
	})
	s.pushUnreadCount(ctx, n.OrganizationID, n.UserID)

	return nil
}

// dispatchImmediate renders before the queue boundary so a broken template never consumes send attempts.
func (s *Usecase) dispatchImmediate(
	ctx context.Context,
	in DispatchInput,
	key string,
	category entity.Category,
	ref *entity.EntityRef,
	recipient *entity.DirectoryUser,
	decision entity.EffectiveDecision,
) error {
	to := recipient
	metadata := maps.Clone(in.Metadata)
	if decision.BackupUserID != nil {
		backup, err := s.repoDirectory.GetDirectoryUser(ctx, in.OrganizationID, *decision.BackupUserID)
		if err != nil {
			slog.WarnContext(ctx, "failed to repo get backup user, keeping original recipient",
				"organization_id", in.OrganizationID, "backup_user_id", *decision.BackupUserID, "error", err)
		} else {
			to = backup
			if metadata == nil {
				metadata = map[string]any{}
			}
			metadata[metaOriginalRecipient] = recipient.ID
		}
	}

	templateKey := in.TemplateKey
	if templateKey == "" {
		templateKey = strings.ToLower(category.String())
	}

	rendered, err := s.repoRenderer.Render(ctx, templateKey, s.templateData(in, to, ref), in.OrganizationID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render email, skipping",
			"organization_id", in.OrganizationID, "user_id", to.ID, "template_key", templateKey, "error", err)
		return nil
	}

	now := s.clock.Now()
	n := entity.Notification{
		ID:             s.uid.Generate(),
		OrganizationID: in.OrganizationID,
		UserID:         to.ID,
		Channel:        entity.ChannelEmail,
		Category:       category,
		Status:         entity.NotificationStatusQueued,
		Title:          rendered.Subject,
		Body:           rendered.HTML,
		Entity:         ref,
		Metadata:       entity.Metadata(metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
		DispatchKey:    key,
	}

	if err := s.queueEmail(ctx, n, to, workqueue.PriorityUrgent); err != nil {
		return goerror.NewServer(err)
	}
	count(ctx, s.metrics.dispatch, attribute.String("path", pathImmediate))

	return nil
}

func (s *Usecase) dispatchBatched(ctx context.Context, in DispatchInput, key string, category entity.Category, ref *entity.EntityRef, path string) error {
	metadata := maps.Clone(in.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["title"] = in.Title
	if in.Body != "" {
		metadata["body"] = in.Body
	}

	item := entity.DigestItem{
		ID:             s.uid.Generate(),
		OrganizationID: in.OrganizationID,
		UserID:         in.RecipientUserID,
		Category:       category,
		Entity:         ref,
		Metadata:       entity.Metadata(metadata),
		CreatedAt:      s.clock.Now(),
		DispatchKey:    key,
	}
	if err := s.repoDB.CreateDigestItem(ctx, item); err != nil {
		slog.ErrorContext(ctx, "failed to repo create digest item", "organization_id", in.OrganizationID, "user_id", in.RecipientUserID, "error", err)
		return goerror.NewServer(err)
	}
	count(ctx, s.metrics.dispatch, attribute.String("path", path))

	return nil
}

// queueEmail stores the EMAIL notification with its PENDING delivery and
// enqueues the send. When n's dispatch key was stored by an earlier attempt
// the job is enqueued for that row; the send job settles duplicates.
func (s *Usecase) queueEmail(ctx context.Context, n entity.Notification, to *entity.DirectoryUser, priority workqueue.Priority) error {
	d := entity.Delivery{
		NotificationID:  n.ID,
		OrganizationID:  n.OrganizationID,
		RecipientUserID: to.ID,
		RecipientEmail:  to.Email,
		Status:          entity.DeliveryStatusPending,
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.CreatedAt,
	}
	id, err := s.repoDB.CreateEmailNotification(ctx, n, d)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo create email notification", "organization_id", n.OrganizationID, "user_id", to.ID, "error", err)
		return err
	}

	return s.enqueueSend(ctx, n.OrganizationID, id, priority, 0, 0)
}

func (s *Usecase) enqueueSend(ctx context.Context, orgID, notificationID int64, priority workqueue.Priority, attempt int, delay time.Duration) error {
	payload, err := json.Marshal(entity.EmailJob{OrganizationID: orgID, NotificationID: notificationID})
	if err != nil {
		return err
	}

	job := workqueue.Job{ID: s.uuid.Generate(), Priority: priority, Attempt: attempt, Payload: payload}
	if err := s.queue.Enqueue(ctx, job, delay); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue send job", "organization_id", orgID, "notification_id", notificationID, "error", err)
		return err
	}

	return nil
}

func (s *Usecase) templateData(in DispatchInput, to *entity.DirectoryUser, ref *entity.EntityRef) map[string]any {
	data := map[string]any{
		"recipient_name": to.FullName,
		"title":          in.Title,
		"body":           in.Body,
		"category":       strings.ToLower(in.Category),
	}
	if ref != nil {
		data["reference"] = ref.FallbackReference()
		data["link"] = ref.DeepLink(s.opts.baseURL)
	}
	maps.Copy(data, in.TemplateData)

	return data
}

// RealtimeNotification is the payload of notification:new.
type RealtimeNotification struct {
	ID         int64           `json:"id,string"`
	Category   string          `json:"category"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	EntityKind string          `json:"entity_kind,omitempty"`
	EntityID   int64           `json:"entity_id,omitempty,string"`
	Metadata   entity.Metadata `json:"metadata,omitempty"`
	IsRead     bool            `json:"is_read"`
	CreatedAt  time.Time       `json:"created_at"`
}

func NewRealtimeNotification(n entity.Notification) RealtimeNotification {
	out := RealtimeNotification{
		ID:        n.ID,
		Category:  n.Category.String(),
		Title:     n.Title,
		Body:      n.Body,
		Metadata:  n.Metadata,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
	if n.Entity != nil {
		out.EntityKind = n.Entity.Kind.String()
		out.EntityID = n.Entity.ID
	}
	return out
}
