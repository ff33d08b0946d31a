package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shandysiswandi/courier/internal/pkg/clock"
	"github.com/shandysiswandi/courier/internal/pkg/config"
	"github.com/shandysiswandi/courier/internal/pkg/goroutine"
	"github.com/shandysiswandi/courier/internal/pkg/idempotency"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/uid"
)

const defaultDigestSchedule = "@hourly"

// cronLogger routes robfig/cron diagnostics to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// DigestScheduler fires the digest tick. Overlapping ticks in one process are
// skipped, and the per-hour idempotency key keeps replicas from repeating an hour.
type DigestScheduler struct {
	uc    ucWorker
	guard idempotency.Guard
	clock clock.Clocker
	uuid  uid.StringID
	ins   instrument.Instrumentation
}

func RegisterDigestScheduler(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	guard idempotency.Guard,
	clk clock.Clocker,
	uuid uid.StringID,
	uc ucWorker,
	ins instrument.Instrumentation,
) error {
	if !cfg.GetBool("modules.notification.digest_enabled") {
		return nil
	}

	schedule := cfg.GetString("modules.notification.digest_schedule")
	if schedule == "" {
		schedule = defaultDigestSchedule
	}

	ds := &DigestScheduler{uc: uc, guard: guard, clock: clk, uuid: uuid, ins: ins}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)
	if _, err := c.AddFunc(schedule, func() { ds.Tick(ctx) }); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", schedule, err)
	}

	routine.Go(ctx, func(pCtx context.Context) error {
		slog.InfoContext(pCtx, "Running digest scheduler", "schedule", schedule)
		c.Start()
		<-pCtx.Done()
		<-c.Stop().Done()
		return nil
	})

	return nil
}

// Tick runs one digest pass unless another replica already took this hour.
func (d *DigestScheduler) Tick(ctx context.Context) {
	ctx = instrument.SetCorrelationID(ctx, d.uuid.Generate())

	ctx, span := d.ins.Tracer("notification.inbound.cron").Start(ctx, "DigestTick")
	defer span.End()

	key := "notification:digest:" + d.clock.Now().UTC().Format("2006010215")
	err := d.guard.Exec(ctx, key, d.uc.RunDigestTick,
		idempotency.WithLockDuration(time.Hour),
		idempotency.WithStateTTL(2*time.Hour),
		idempotency.WithRetryOnError(),
	)

	switch {
	case err == nil:
		slog.InfoContext(ctx, "digest tick finished", "key", key)
	case errors.Is(err, idempotency.ErrAlreadyCompleted),
		errors.Is(err, idempotency.ErrAlreadyInProgress),
		errors.Is(err, idempotency.ErrAlreadyFailed):
		slog.InfoContext(ctx, "digest tick skipped", "key", key, "reason", err.Error())
	default:
		slog.ErrorContext(ctx, "failed to run digest tick", "key", key, "error", err)
	}
}
