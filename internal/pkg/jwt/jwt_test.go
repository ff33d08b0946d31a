package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

type fixedID string

func (f fixedID) Generate() string { return string(f) }

func newTestJWT(t *testing.T, clk *stepClock) *Symmetric {
	t.Helper()

	j, err := NewHS512(Config{
		Secret:    []byte(secret),
		Issuer:    "identity",
		Audiences: []string{"courier"},
		TTL:       15 * time.Minute,
		Clock:     clk,
		UUID:      fixedID("jti-1"),
	})
	require.NoError(t, err)
	return j
}

func TestNewHS512_ShortSecret(t *testing.T) {
	_, err := NewHS512(Config{Secret: []byte("short"), Clock: &stepClock{}})
	assert.ErrorIs(t, err, ErrSigningKeyTooShort)
}

func TestSymmetric_Verify(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("RoundTrip", func(t *testing.T) {
		// Arrange
		clk := &stepClock{now: start}
		j := newTestJWT(t, clk)
		tok, err := j.Generate(Subject{UserID: 9, OrganizationID: 1, Email: "a@b.c", Role: "owner"})
		require.NoError(t, err)

		// Act
		clm, err := j.Verify(tok)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(9), clm.UserID)
		assert.Equal(t, int64(1), clm.OrganizationID)
		assert.Equal(t, "owner", clm.Role)
		assert.Equal(t, "jti-1", clm.ID)
	})

	t.Run("Expired", func(t *testing.T) {
		clk := &stepClock{now: start}
		j := newTestJWT(t, clk)
		tok, err := j.Generate(Subject{UserID: 9, OrganizationID: 1})
		require.NoError(t, err)

		clk.now = start.Add(time.Hour)
		_, err = j.Verify(tok)

		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("MissingOrganization", func(t *testing.T) {
		j := newTestJWT(t, &stepClock{now: start})
		tok, err := j.Generate(Subject{UserID: 9})
		require.NoError(t, err)

		_, err = j.Verify(tok)

		assert.ErrorIs(t, err, ErrMissingTenant)
	})

	t.Run("WrongAudience", func(t *testing.T) {
		clk := &stepClock{now: start}
		other, err := NewHS512(Config{
			Secret: []byte(secret), Issuer: "identity", Audiences: []string{"billing"},
			TTL: time.Minute, Clock: clk, UUID: fixedID("x"),
		})
		require.NoError(t, err)
		tok, err := other.Generate(Subject{UserID: 9, OrganizationID: 1})
		require.NoError(t, err)

		_, err = newTestJWT(t, clk).Verify(tok)

		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := newTestJWT(t, &stepClock{now: start}).Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAuthContext(t *testing.T) {
	assert.Nil(t, GetAuth(context.Background()))

	ctx := SetAuth(context.Background(), Claims{UserID: 3, OrganizationID: 4})
	clm := GetAuth(ctx)
	require.NotNil(t, clm)
	assert.Equal(t, int64(4), clm.OrganizationID)
}
