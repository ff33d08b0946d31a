// Package goroutine runs the service's long-lived background tasks, such as
// broker consumers, send workers and the digest scheduler, under one cap.
package goroutine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/shandysiswandi/courier/internal/pkg/stacktrace"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxGoroutine is multiplied by NumCPU when NewManager gets a non-positive limit.
const DefaultMaxGoroutine int = 100

// Manager starts tasks and gathers their errors until Wait is called.
type Manager struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.Mutex
	closed bool
	errs   []error
}

// NewManager creates a Manager that runs at most limit tasks at once.
func NewManager(limit int) *Manager {
	if limit < 1 {
		limit = runtime.NumCPU() * DefaultMaxGoroutine
	}
	return &Manager{sem: semaphore.NewWeighted(int64(limit))}
}

// Go starts f in a new goroutine. When the manager is full or already
// waiting, f is dropped and a warning logged.
func (g *Manager) Go(ctx context.Context, f func(ctx context.Context) error) {
	if g == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		slog.WarnContext(ctx, "goroutine manager is closed, skipping new goroutine")
		return
	}
	if !g.sem.TryAcquire(1) {
		slog.WarnContext(ctx, "maximum goroutine limit reached, failed to start new goroutine")
		return
	}

	g.wg.Add(1)
	go g.run(ctx, f)
}

func (g *Manager) run(ctx context.Context, f func(ctx context.Context) error) {
	defer g.wg.Done()
	defer g.sem.Release(1)
	defer func() {
		if rvr := recover(); rvr != nil {
			stacktrace.Log(ctx, "panic occurred in goroutine", rvr)
			g.record(fmt.Errorf("goroutine: panic: %v", rvr))
		}
	}()

	if err := ctx.Err(); err != nil {
		slog.WarnContext(ctx, "goroutine canceled before start", "because", err)
		return
	}

	// Tasks stopped by shutdown are not failures.
	if err := f(ctx); err != nil && !errors.Is(err, context.Canceled) {
		g.record(err)
	}
}

func (g *Manager) record(err error) {
	g.mu.Lock()
	g.errs = append(g.errs, err)
	g.mu.Unlock()
}

// Wait stops accepting tasks, blocks until running ones return and reports
// their joined errors.
func (g *Manager) Wait() error {
	if g == nil {
		return nil
	}

	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(g.errs...)
}
