package goroutine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	t.Run("CollectsErrors", func(t *testing.T) {
		// Arrange
		g := NewManager(4)
		boom := errors.New("consumer failed")

		// Act
		g.Go(context.Background(), func(context.Context) error { return boom })
		g.Go(context.Background(), func(context.Context) error { return nil })
		g.Go(context.Background(), func(context.Context) error { return context.Canceled })
		err := g.Wait()

		// Assert
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, context.Canceled)
	})

	t.Run("RecoversPanic", func(t *testing.T) {
		g := NewManager(1)

		g.Go(context.Background(), func(context.Context) error { panic("bad payload") })
		err := g.Wait()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad payload")
	})

	t.Run("DropsWhenFull", func(t *testing.T) {
		g := NewManager(1)
		release := make(chan struct{})
		ran := make(chan struct{}, 2)

		g.Go(context.Background(), func(context.Context) error {
			ran <- struct{}{}
			<-release
			return nil
		})
		<-ran
		g.Go(context.Background(), func(context.Context) error {
			ran <- struct{}{}
			return nil
		})
		close(release)

		require.NoError(t, g.Wait())
		assert.Empty(t, ran)
	})

	t.Run("ClosedAfterWait", func(t *testing.T) {
		g := NewManager(1)
		require.NoError(t, g.Wait())

		called := false
		g.Go(context.Background(), func(context.Context) error { called = true; return nil })

		assert.False(t, called)
	})

	t.Run("SkipsCanceledContext", func(t *testing.T) {
		g := NewManager(1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		g.Go(ctx, func(context.Context) error { called = true; return nil })

		require.NoError(t, g.Wait())
		assert.False(t, called)
	})
}
