package inbound

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/courier/internal/pkg/idempotency"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/stretchr/testify/assert"
)

// memGuard is an in-process idempotency tracker.
type memGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (g *memGuard) Exec(ctx context.Context, key string, fn func(context.Context) error, _ ...idempotency.Option) error {
	g.mu.Lock()
	if g.keys[key] {
		g.mu.Unlock()
		return idempotency.ErrAlreadyCompleted
	}
	g.keys[key] = true
	g.mu.Unlock()
	return fn(ctx)
}

func TestDigestScheduler_Tick(t *testing.T) {
	t.Run("OncePerHour", func(t *testing.T) {
		// Arrange
		uc := newFakeUC()
		guard := &memGuard{keys: map[string]bool{}}
		clk := &fixedClock{now: time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC)}
		ds := &DigestScheduler{uc: uc, guard: guard, clock: clk, uuid: &seqUUID{}, ins: instrument.NewNoop()}

		// Act
		ds.Tick(context.Background())
		ds.Tick(context.Background())

		// Assert
		assert.Equal(t, 1, uc.digestTicks)
		assert.True(t, guard.keys["notification:digest:2026031009"])
	})

	t.Run("NextHourRuns", func(t *testing.T) {
		// Arrange
		uc := newFakeUC()
		guard := &memGuard{keys: map[string]bool{}}
		clk := &fixedClock{now: time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC)}
		ds := &DigestScheduler{uc: uc, guard: guard, clock: clk, uuid: &seqUUID{}, ins: instrument.NewNoop()}

		// Act
		ds.Tick(context.Background())
		clk.now = clk.now.Add(time.Hour)
		ds.Tick(context.Background())

		// Assert
		assert.Equal(t, 2, uc.digestTicks)
	})
}
