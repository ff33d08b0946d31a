package inbound

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/courier/internal/pkg/config"
	"github.com/shandysiswandi/courier/internal/pkg/goroutine"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/uid"
	"github.com/shandysiswandi/courier/internal/pkg/workqueue"
)

const (
	defaultWorkerCount  = 4
	defaultPollInterval = time.Second
	defaultReapInterval = 30 * time.Second
)

// SendWorker drains the email work queue.
type SendWorker struct {
	uc    ucWorker
	queue workqueue.Queue
	uuid  uid.StringID
	ins   instrument.Instrumentation
	poll  time.Duration
}

func RegisterSendWorkers(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	queue workqueue.Queue,
	uuid uid.StringID,
	uc ucWorker,
	ins instrument.Instrumentation,
) {
	count := cfg.GetInt("modules.notification.worker_count")
	if count <= 0 {
		count = defaultWorkerCount
	}
	poll := cfg.GetMillisecond("modules.notification.worker_poll_ms")
	if poll <= 0 {
		poll = defaultPollInterval
	}
	reap := cfg.GetSecond("modules.notification.worker_reap_seconds")
	if reap <= 0 {
		reap = defaultReapInterval
	}

	w := &SendWorker{uc: uc, queue: queue, uuid: uuid, ins: ins, poll: poll}

	for i := range count {
		routine.Go(ctx, func(pCtx context.Context) error {
			slog.InfoContext(pCtx, "Running send worker", "worker", i)
			w.run(pCtx)
			return nil
		})
	}

	routine.Go(ctx, func(pCtx context.Context) error {
		w.reapLoop(pCtx, reap)
		return nil
	})
}

func (w *SendWorker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.queue.Dequeue(ctx)
		if errors.Is(err, workqueue.ErrEmpty) {
			w.sleep(ctx, w.poll)
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "failed to dequeue send job", "error", err)
			w.sleep(ctx, w.poll)
			continue
		}

		w.handle(ctx, *job)
	}
}

// handle leaves a failed job in flight; Reap hands it back after the visibility timeout.
func (w *SendWorker) handle(ctx context.Context, job workqueue.Job) {
	ctx = instrument.SetCorrelationID(ctx, w.uuid.Generate())

	ctx, span := w.ins.Tracer("notification.inbound.worker").Start(ctx, "SendJob")
	defer span.End()

	if err := w.uc.ProcessSendJob(ctx, job); err != nil {
		slog.ErrorContext(ctx, "failed to process send job", "job_id", job.ID, "attempt", job.Attempt, "error", err)
	}
}

func (w *SendWorker) reapLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.queue.Reap(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "failed to reap send jobs", "error", err)
				continue
			}
			if n > 0 {
				slog.WarnContext(ctx, "returned expired send jobs to queue", "count", n)
			}
		}
	}
}

func (w *SendWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
