package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedInApp(t *testing.T, h *harness, id, orgID, userID int64, at time.Time) {
	t.Helper()
	_, err := h.store.CreateNotification(context.Background(), entity.Notification{
		ID: id, OrganizationID: orgID, UserID: userID, Channel: entity.ChannelInApp,
		Category: entity.CategoryComment, Status: entity.NotificationStatusDelivered, Title: "hi", CreatedAt: at,
	})
	require.NoError(t, err)
}

func TestInbox(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("MarkReadOnlyTouchesOwnNotifications", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedInApp(t, h, 1, orgA, 10, now)
		seedInApp(t, h, 2, orgA, 10, now)
		seedInApp(t, h, 3, orgB, 10, now)
		ctx := authCtx(orgA, 10, "")

		// Act
		ids, err := h.uc.MarkRead(ctx, MarkReadInput{IDs: []int64{1, 3}})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, ids)
		n, err := h.uc.GetUnreadCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		require.Len(t, h.mq.realtime, 2)
		assert.Equal(t, string(entity.RealtimeMarkedRead), h.mq.realtime[0].Type)
		assert.JSONEq(t, `{"ids":[1]}`, string(h.mq.realtime[0].Data))
		assert.JSONEq(t, `{"count":1}`, string(h.mq.realtime[1].Data))
	})

	t.Run("MarkReadValidatesInput", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)

		// Act
		_, err := h.uc.MarkRead(authCtx(orgA, 10, ""), MarkReadInput{})

		// Assert
		requireCode(t, err, goerror.CodeInvalidInput)
	})

	t.Run("MarkAllRead", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedInApp(t, h, 1, orgA, 10, now)
		seedInApp(t, h, 2, orgA, 10, now)
		ctx := authCtx(orgA, 10, "")

		// Act
		err := h.uc.MarkAllRead(ctx)

		// Assert
		require.NoError(t, err)
		unread, err := h.uc.ListInbox(ctx, ListInboxInput{Read: "unread"})
		require.NoError(t, err)
		assert.Empty(t, unread)
	})

	t.Run("ArchiveMissing", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		seedInApp(t, h, 1, orgB, 10, now)

		// Act
		err := h.uc.Archive(authCtx(orgA, 10, ""), ArchiveInput{ID: 1})

		// Assert
		requireCode(t, err, goerror.CodeNotFound)
	})

	t.Run("RecentCapsLimit", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)
		for i := range 60 {
			seedInApp(t, h, int64(i+1), orgA, 10, now.Add(time.Duration(i)*time.Second))
		}

		// Act
		items, err := h.uc.ListRecent(authCtx(orgA, 10, ""), ListRecentInput{Limit: 500})

		// Assert
		require.NoError(t, err)
		assert.Len(t, items, 50)
	})

	t.Run("RequiresAuth", func(t *testing.T) {
		// Arrange
		h := newHarness(t, now)

		// Act
		_, err := h.uc.ListInbox(context.Background(), ListInboxInput{})

		// Assert
		requireCode(t, err, goerror.CodeUnauthorized)
	})
}
