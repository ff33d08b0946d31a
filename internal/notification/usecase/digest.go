package usecase

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/shandysiswandi/courier/internal/pkg/workqueue"
	"golang.org/x/sync/errgroup"
)

const digestTemplateKey = "digest"

// RunDigestTick compiles digests for every organization whose local digest
// hour is now. Failures are isolated per organization and per user.
func (s *Usecase) RunDigestTick(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "RunDigestTick")
	defer span.End()

	orgIDs, err := s.repoDB.ListOrganizationsWithPendingDigest(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list organizations with pending digest", "error", err)
		return goerror.NewServer(err)
	}

	now := s.clock.Now()
	for _, orgID := range orgIDs {
		if err := s.runOrgDigest(ctx, orgID, now); err != nil {
			slog.ErrorContext(ctx, "failed to run organization digest", "organization_id", orgID, "error", err)
		}
	}

	return nil
}

func (s *Usecase) runOrgDigest(ctx context.Context, orgID int64, now time.Time) error {
	st, err := s.getOrgSettings(ctx, orgID)
	if err != nil {
		return err
	}

	loc, err := st.Location()
	if err != nil {
		slog.WarnContext(ctx, "unparseable organization timezone, using UTC", "organization_id", orgID, "timezone", st.Timezone, "error", err)
		loc = time.UTC
	}

	if now.In(loc).Hour() != st.DigestHour {
		return nil
	}

	userIDs, err := s.repoDB.ListUsersWithPendingDigest(ctx, orgID)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(s.opts.digestConcurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			if err := s.processUserDigest(ctx, st, loc, userID, now); err != nil {
				slog.ErrorContext(ctx, "failed to process user digest", "organization_id", orgID, "user_id", userID, "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// processUserDigest always marks the loaded items processed, even when
// nothing is sent, so a broken digest never repeats every hour.
func (s *Usecase) processUserDigest(ctx context.Context, st *entity.OrgSettings, loc *time.Location, userID int64, now time.Time) (err error) {
	orgID := st.OrganizationID

	items, err := s.repoDB.ListPendingDigestItems(ctx, orgID, userID)
	if err != nil || len(items) == 0 {
		return err
	}

	defer func() {
		ids := lo.Map(items, func(it entity.DigestItem, _ int) int64 { return it.ID })
		if _, mErr := s.repoDB.MarkUserItemsProcessed(ctx, orgID, userID, ids, s.clock.Now()); mErr != nil {
			slog.ErrorContext(ctx, "failed to repo mark digest items processed", "organization_id", orgID, "user_id", userID, "error", mErr)
			if err == nil {
				err = mErr
			}
		}
	}()

	user, err := s.repoDirectory.GetDirectoryUser(ctx, orgID, userID)
	if isNotFound(err) || (err == nil && !user.IsActive) {
		slog.InfoContext(ctx, "digest recipient missing or inactive, discarding items", "organization_id", orgID, "user_id", userID)
		return nil
	}
	if err != nil {
		return err
	}

	enabled, err := s.isDigestEnabledForUser(ctx, st, userID)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	groups := s.groupDigestItems(ctx, orgID, items)
	payload := entity.DigestPayload{
		RecipientName: user.FullName,
		Date:          now.In(loc).Format("January 2, 2006"),
		Groups:        groups,
		Total:         len(items),
	}

	rendered, err := s.repoRenderer.Render(ctx, digestTemplateKey, map[string]any{
		"recipient_name": payload.RecipientName,
		"date":           payload.Date,
		"groups":         payload.Groups,
		"total":          payload.Total,
	}, orgID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render digest, skipping", "organization_id", orgID, "user_id", userID, "error", err)
		return nil
	}

	created := s.clock.Now()
	n := entity.Notification{
		ID:             s.uid.Generate(),
		OrganizationID: orgID,
		UserID:         userID,
		Channel:        entity.ChannelEmail,
		Category:       entity.CategoryDigest,
		Status:         entity.NotificationStatusQueued,
		Title:          rendered.Subject,
		Body:           rendered.HTML,
		Metadata:       entity.Metadata{"item_count": len(items), "group_count": len(groups)},
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	if err := s.queueEmail(ctx, n, user, workqueue.PriorityDigest); err != nil {
		return err
	}
	count(ctx, s.metrics.digestSent)

	return nil
}

// isDigestEnabledForUser reports whether any digest-eligible category has email on after enforcement.
func (s *Usecase) isDigestEnabledForUser(ctx context.Context, st *entity.OrgSettings, userID int64) (bool, error) {
	pref, err := s.getPreference(ctx, st.OrganizationID, userID)
	if err != nil {
		return false, err
	}

	return lo.SomeBy(entity.DigestEligibleCategories(), func(c entity.Category) bool {
		return st.IsEnforced(c) || pref.Channels(c).Email
	}), nil
}

type digestKey struct {
	category entity.Category
	kind     entity.EntityKind
	id       int64
}

// groupDigestItems collapses items by (category, entity), largest group first
// and the most recent first on ties.
func (s *Usecase) groupDigestItems(ctx context.Context, orgID int64, items []entity.DigestItem) []entity.DigestGroup {
	byKey := lo.GroupBy(items, func(it entity.DigestItem) digestKey {
		k := digestKey{category: it.Category}
		if it.Entity != nil {
			k.kind, k.id = it.Entity.Kind, it.Entity.ID
		}
		return k
	})

	groups := make([]entity.DigestGroup, 0, len(byKey))
	for _, members := range byKey {
		latest := lo.MaxBy(members, func(a, b entity.DigestItem) bool { return a.CreatedAt.After(b.CreatedAt) })

		g := entity.DigestGroup{
			Category: latest.Category,
			Entity:   latest.Entity,
			Count:    len(members),
			LatestAt: latest.CreatedAt,
		}
		if g.Entity != nil {
			g.Reference = s.entityReference(ctx, orgID, *g.Entity)
			g.Link = g.Entity.DeepLink(s.opts.baseURL)
		}
		g.Summary = digestSummary(g)
		groups = append(groups, g)
	}

	slices.SortFunc(groups, func(a, b entity.DigestGroup) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return b.LatestAt.Compare(a.LatestAt)
	})

	return groups
}

// entityReference is the display text, e.g. "Case CASE-2024-001", or "Case #42" when unresolved.
func (s *Usecase) entityReference(ctx context.Context, orgID int64, ref entity.EntityRef) string {
	number, err := s.repoEntity.GetEntityReference(ctx, orgID, ref)
	if err != nil || number == "" {
		if err != nil && !isNotFound(err) {
			slog.WarnContext(ctx, "failed to repo get entity reference", "organization_id", orgID, "kind", ref.Kind, "id", ref.ID, "error", err)
		}
		return ref.FallbackReference()
	}
	return ref.Kind.Label() + " " + number
}

var digestNouns = map[entity.Category][2]string{
	entity.CategoryComment:      {"new comment", "new comments"},
	entity.CategoryStatusUpdate: {"status update", "status updates"},
	entity.CategoryCompletion:   {"completion", "completions"},
}

// digestSummary renders lines such as "3 new comments on Case CASE-2024-001".
func digestSummary(g entity.DigestGroup) string {
	nouns, ok := digestNouns[g.Category]
	if !ok {
		nouns = [2]string{"update", "updates"}
	}

	noun := nouns[1]
	if g.Count == 1 {
		noun = nouns[0]
	}

	if g.Reference == "" {
		return fmt.Sprintf("%d %s", g.Count, noun)
	}
	return fmt.Sprintf("%d %s on %s", g.Count, noun, g.Reference)
}
