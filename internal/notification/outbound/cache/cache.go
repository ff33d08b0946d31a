package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Cache keeps preference and organization settings as JSON under a fixed TTL.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
	ins    instrument.Instrumentation
}

func New(client redis.Cmdable, ttl time.Duration, ins instrument.Instrumentation) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl, ins: ins}
}

func preferenceKey(orgID, userID int64) string {
	return fmt.Sprintf("notification:pref:%d:%d", orgID, userID)
}

func orgSettingsKey(orgID int64) string {
	return fmt.Sprintf("notification:org_settings:%d", orgID)
}

func (c *Cache) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.ins.Tracer("notification.outbound.cache").Start(ctx, name)
}

func (c *Cache) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *Cache) get(ctx context.Context, key string, out any) error {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return goerror.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (c *Cache) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// GetPreference returns goerror.ErrNotFound on a miss.
func (c *Cache) GetPreference(ctx context.Context, orgID, userID int64) (_ *entity.Preference, err error) {
	ctx, span := c.startSpan(ctx, "GetPreference")
	defer func() { c.endSpan(span, err) }()

	var p entity.Preference
	if err = c.get(ctx, preferenceKey(orgID, userID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Cache) SetPreference(ctx context.Context, p *entity.Preference) (err error) {
	ctx, span := c.startSpan(ctx, "SetPreference")
	defer func() { c.endSpan(span, err) }()

	return c.set(ctx, preferenceKey(p.OrganizationID, p.UserID), p)
}

func (c *Cache) DeletePreference(ctx context.Context, orgID, userID int64) (err error) {
	ctx, span := c.startSpan(ctx, "DeletePreference")
	defer func() { c.endSpan(span, err) }()

	return c.client.Del(ctx, preferenceKey(orgID, userID)).Err()
}

// GetOrgSettings returns goerror.ErrNotFound on a miss.
func (c *Cache) GetOrgSettings(ctx context.Context, orgID int64) (_ *entity.OrgSettings, err error) {
	ctx, span := c.startSpan(ctx, "GetOrgSettings")
	defer func() { c.endSpan(span, err) }()

	var st entity.OrgSettings
	if err = c.get(ctx, orgSettingsKey(orgID), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Cache) SetOrgSettings(ctx context.Context, st *entity.OrgSettings) (err error) {
	ctx, span := c.startSpan(ctx, "SetOrgSettings")
	defer func() { c.endSpan(span, err) }()

	return c.set(ctx, orgSettingsKey(st.OrganizationID), st)
}

func (c *Cache) DeleteOrgSettings(ctx context.Context, orgID int64) (err error) {
	ctx, span := c.startSpan(ctx, "DeleteOrgSettings")
	defer func() { c.endSpan(span, err) }()

	return c.client.Del(ctx, orgSettingsKey(orgID)).Err()
}
