package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPreference(t *testing.T) {
	p := DefaultPreference(1, 2)

	assert.Equal(t, ChannelPreference{Email: true, InApp: true}, p.Channels(CategoryAssignment))
	assert.Equal(t, ChannelPreference{Email: false, InApp: true}, p.Channels(CategoryComment))
	assert.Len(t, p.Categories, len(PreferenceCategories()))
	assert.False(t, p.IsOOO(time.Now()))
}

func TestCategoryFromString(t *testing.T) {
	c, ok := CategoryFromString(" status_update ")
	assert.True(t, ok)
	assert.Equal(t, CategoryStatusUpdate, c)
	assert.True(t, c.IsDigestEligible())
	assert.False(t, c.IsUrgent())

	_, ok = CategoryFromString("BILLING")
	assert.False(t, ok)

	assert.False(t, CategoryDigest.IsPreference())
}

func TestEntityRef(t *testing.T) {
	ref, err := NewEntityRef("case", 42)
	require.NoError(t, err)
	assert.Equal(t, "Case #42", ref.FallbackReference())
	assert.Equal(t, "https://app.example.com/cases/42", ref.DeepLink("https://app.example.com/"))

	ref, err = NewEntityRef("", 0)
	require.NoError(t, err)
	assert.Nil(t, ref)

	_, err = NewEntityRef("TICKET", 1)
	assert.ErrorIs(t, err, ErrUnknownEntityKind)

	assert.Equal(t, "remediation-plans", EntityKindRemediationPlan.PathSegment())
}

func TestChannelKey(t *testing.T) {
	assert.Equal(t, "org:7:user:9", ChannelKey(7, 9))
	assert.NotEqual(t, ChannelKey(1, 9), ChannelKey(2, 9))
}
