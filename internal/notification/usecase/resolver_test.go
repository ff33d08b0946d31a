package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustQuietHours(t *testing.T, start, end string) *entity.QuietHours {
	t.Helper()
	q, err := entity.NewQuietHours(start, end)
	require.NoError(t, err)
	return q
}

func TestGetEffective(t *testing.T) {
	ctx := context.Background()
	night := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	noon := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("DefaultsWithoutStoredPreference", func(t *testing.T) {
		// Arrange
		h := newHarness(t, noon)

		// Act
		urgent, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryAssignment)
		require.NoError(t, err)
		info, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryComment)
		require.NoError(t, err)

		// Assert
		assert.True(t, urgent.Email)
		assert.True(t, urgent.InApp)
		assert.False(t, info.Email)
		assert.True(t, info.InApp)
	})

	t.Run("EnforcementForcesChannelsOn", func(t *testing.T) {
		// Arrange
		h := newHarness(t, noon)
		p := entity.DefaultPreference(orgA, 10)
		p.Categories[entity.CategoryEscalation] = entity.ChannelPreference{Email: false, InApp: false}
		require.NoError(t, h.store.UpsertPreference(ctx, *p))
		st := entity.DefaultOrgSettings(orgA)
		st.EnforcedCategories = []entity.Category{entity.CategoryEscalation}
		require.NoError(t, h.store.UpsertOrgSettings(ctx, *st))

		// Act
		d, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryEscalation)

		// Assert
		require.NoError(t, err)
		assert.True(t, d.Email)
		assert.True(t, d.InApp)
		assert.True(t, d.IsEnforced)
	})

	t.Run("OOORedirectsUrgentEmailToActiveBackup", func(t *testing.T) {
		// Arrange
		h := newHarness(t, noon)
		h.addUser(orgA, 20, "backup@example.com")
		p := entity.DefaultPreference(orgA, 10)
		p.OOOUntil = ptr(noon.Add(48 * time.Hour))
		p.BackupUserID = ptr(int64(20))
		require.NoError(t, h.store.UpsertPreference(ctx, *p))

		// Act
		urgent, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryAssignment)
		require.NoError(t, err)
		info, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryStatusUpdate)
		require.NoError(t, err)

		// Assert
		assert.True(t, urgent.IsOOO)
		require.NotNil(t, urgent.BackupUserID)
		assert.Equal(t, int64(20), *urgent.BackupUserID)
		assert.Equal(t, int64(20), urgent.EmailRecipient(10))
		assert.True(t, info.IsOOO)
		assert.Nil(t, info.BackupUserID)
	})

	t.Run("OOOWithInactiveBackupKeepsOriginalRecipient", func(t *testing.T) {
		// Arrange
		h := newHarness(t, noon)
		h.store.addUser(entity.DirectoryUser{ID: 20, OrganizationID: orgA, Email: "gone@example.com", IsActive: false})
		p := entity.DefaultPreference(orgA, 10)
		p.OOOUntil = ptr(noon.Add(time.Hour))
		p.BackupUserID = ptr(int64(20))
		require.NoError(t, h.store.UpsertPreference(ctx, *p))

		// Act
		d, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryAssignment)

		// Assert
		require.NoError(t, err)
		assert.True(t, d.IsOOO)
		assert.Nil(t, d.BackupUserID)
		assert.Equal(t, int64(10), d.EmailRecipient(10))
	})

	t.Run("ExpiredOOOIsIgnored", func(t *testing.T) {
		// Arrange
		h := newHarness(t, noon)
		h.addUser(orgA, 20, "backup@example.com")
		p := entity.DefaultPreference(orgA, 10)
		p.OOOUntil = ptr(noon.Add(-time.Minute))
		p.BackupUserID = ptr(int64(20))
		require.NoError(t, h.store.UpsertPreference(ctx, *p))

		// Act
		d, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryAssignment)

		// Assert
		require.NoError(t, err)
		assert.False(t, d.IsOOO)
		assert.Nil(t, d.BackupUserID)
	})

	t.Run("QuietHoursSuppressInformationalEmailOnly", func(t *testing.T) {
		// Arrange
		h := newHarness(t, night)
		p := entity.DefaultPreference(orgA, 10)
		p.Categories[entity.CategoryComment] = entity.ChannelPreference{Email: true, InApp: true}
		p.QuietHours = mustQuietHours(t, "22:00", "06:00")
		require.NoError(t, h.store.UpsertPreference(ctx, *p))

		// Act
		info, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryComment)
		require.NoError(t, err)
		urgent, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryAssignment)
		require.NoError(t, err)

		// Assert
		assert.True(t, info.IsQuietHours)
		assert.False(t, info.Email)
		assert.True(t, info.QuietHoursSuppressed)
		assert.True(t, info.InApp)
		assert.True(t, urgent.IsQuietHours)
		assert.True(t, urgent.Email)
		assert.False(t, urgent.QuietHoursSuppressed)
	})

	t.Run("QuietHoursWraparound", func(t *testing.T) {
		for _, tc := range []struct {
			at    time.Time
			quiet bool
		}{
			{at: time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC), quiet: true},
			{at: time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), quiet: true},
			{at: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), quiet: false},
		} {
			// Arrange
			h := newHarness(t, tc.at)
			p := entity.DefaultPreference(orgA, 10)
			p.QuietHours = mustQuietHours(t, "22:00", "06:00")
			require.NoError(t, h.store.UpsertPreference(ctx, *p))

			// Act
			d, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryComment)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tc.quiet, d.IsQuietHours, tc.at.Format(time.Kitchen))
		}
	})

	t.Run("OrgWindowAndTimezoneApplyWhenUserHasNone", func(t *testing.T) {
		// Arrange: 23:30 UTC is 08:30 in Tokyo, outside 22:00-06:00.
		h := newHarness(t, night)
		st := entity.DefaultOrgSettings(orgA)
		st.QuietHours = mustQuietHours(t, "22:00", "06:00")
		st.Timezone = "Asia/Tokyo"
		require.NoError(t, h.store.UpsertOrgSettings(ctx, *st))

		// Act
		d, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryComment)

		// Assert
		require.NoError(t, err)
		assert.False(t, d.IsQuietHours)
	})

	t.Run("UnparseableTimezoneDisablesQuietHours", func(t *testing.T) {
		// Arrange
		h := newHarness(t, night)
		p := entity.DefaultPreference(orgA, 10)
		p.Categories[entity.CategoryComment] = entity.ChannelPreference{Email: true, InApp: true}
		p.QuietHours = mustQuietHours(t, "22:00", "06:00")
		p.Timezone = "Mars/Olympus_Mons"
		require.NoError(t, h.store.UpsertPreference(ctx, *p))

		// Act
		d, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryComment)

		// Assert
		require.NoError(t, err)
		assert.False(t, d.IsQuietHours)
		assert.True(t, d.Email)
	})

	t.Run("StoreError", func(t *testing.T) {
		// Arrange
		h := newHarness(t, noon)
		h.store.errGetPreference = errors.New("db down")

		// Act
		_, err := h.uc.GetEffective(ctx, 10, orgA, entity.CategoryComment)

		// Assert
		assert.Error(t, err)
	})
}
