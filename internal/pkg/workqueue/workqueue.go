package workqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// Priority orders ready jobs.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityDigest Priority = "digest"
)

// ErrEmpty is returned by Dequeue when no job is due.
var ErrEmpty = errors.New("workqueue: no job due")

// ErrUnknownPriority is returned for a priority outside the known set.
var ErrUnknownPriority = errors.New("workqueue: unknown priority")

// Job is a unit of work. Payload is opaque to the queue.
type Job struct {
	ID       string          `json:"id"`
	Priority Priority        `json:"priority"`
	Attempt  int             `json:"attempt"`
	Payload  json.RawMessage `json:"payload"`
}

// Queue is the contract used by producers and workers.
type Queue interface {
	Enqueue(ctx context.Context, job Job, delay time.Duration) error
	Dequeue(ctx context.Context) (*Job, error)
	Ack(ctx context.Context, job Job) error
	Retry(ctx context.Context, job Job, delay time.Duration) error
	Reap(ctx context.Context) (int, error)
	Backoff(attempt int) time.Duration
}

// Config tunes the queue.
type Config struct {
	// Prefix namespaces every key, default "workqueue".
	Prefix string
	// Visibility is how long a dequeued job stays invisible before Reap returns it.
	Visibility time.Duration
	// BaseBackoff is the first retry delay; each following attempt doubles it.
	BaseBackoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
	// JitterPercent spreads retry delays by +/- this percentage.
	JitterPercent uint64
}

// Redis implements Queue.
type Redis struct {
	client redis.Cmdable
	cfg    Config
	now    func() time.Time

	keyJobs     string
	keyInflight string
	keyUrgent   string
	keyDigest   string
}

// NewRedis builds a queue on client.
func NewRedis(client redis.Cmdable, cfg Config) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "workqueue"
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = 5 * time.Minute
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 30 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Hour
	}

	return &Redis{
		client:      client,
		cfg:         cfg,
		now:         time.Now,
		keyJobs:     cfg.Prefix + ":jobs",
		keyInflight: cfg.Prefix + ":inflight",
		keyUrgent:   cfg.Prefix + ":ready:" + string(PriorityUrgent),
		keyDigest:   cfg.Prefix + ":ready:" + string(PriorityDigest),
	}
}

func (q *Redis) readyKey(p Priority) (string, error) {
	switch p {
	case PriorityUrgent:
		return q.keyUrgent, nil
	case PriorityDigest:
		return q.keyDigest, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPriority, p)
	}
}

func (q *Redis) score(delay time.Duration) float64 {
	return float64(q.now().Add(delay).UnixMilli())
}

// Enqueue stores job and makes it due after delay.
func (q *Redis) Enqueue(ctx context.Context, job Job, delay time.Duration) error {
	key, err := q.readyKey(job.Priority)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}

	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.keyJobs, job.ID, raw)
		p.ZAdd(ctx, key, redis.Z{Score: q.score(delay), Member: job.ID})
		return nil
	})
	return err
}

// Dequeue takes the earliest due job, urgent first. It returns ErrEmpty when none is due.
func (q *Redis) Dequeue(ctx context.Context) (*Job, error) {
	res, err := dequeueScript.Run(ctx, q.client,
		[]string{q.keyUrgent, q.keyDigest, q.keyInflight, q.keyJobs},
		q.now().UnixMilli(), q.now().Add(q.cfg.Visibility).UnixMilli(),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 || res[1] == "" {
		// The job body vanished; the id has already been dropped from ready.
		return nil, ErrEmpty
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("workqueue: decode job %s: %w", res[0], err)
	}
	return &job, nil
}

// Ack removes a finished job.
func (q *Redis) Ack(ctx context.Context, job Job) error {
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.keyInflight, job.ID)
		p.HDel(ctx, q.keyJobs, job.ID)
		return nil
	})
	return err
}

// Retry stores the updated job and makes it due again after delay.
func (q *Redis) Retry(ctx context.Context, job Job, delay time.Duration) error {
	key, err := q.readyKey(job.Priority)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return retryScript.Run(ctx, q.client,
		[]string{q.keyInflight, key, q.keyJobs},
		job.ID, raw, q.score(delay),
	).Err()
}

// Reap returns jobs whose visibility deadline passed to their ready set.
func (q *Redis) Reap(ctx context.Context) (int, error) {
	n, err := reapScript.Run(ctx, q.client,
		[]string{q.keyInflight, q.keyJobs, q.keyUrgent, q.keyDigest},
		q.now().UnixMilli(),
	).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Backoff is the delay before retry number attempt (1-based): exponential,
// capped at MaxBackoff and jittered.
func (q *Redis) Backoff(attempt int) time.Duration {
	b := retry.NewExponential(q.cfg.BaseBackoff)
	b = retry.WithCappedDuration(q.cfg.MaxBackoff, b)
	if q.cfg.JitterPercent > 0 {
		b = retry.WithJitterPercent(q.cfg.JitterPercent, b)
	}

	delay := q.cfg.BaseBackoff
	for range max(attempt, 1) {
		next, stop := b.Next()
		if stop {
			break
		}
		delay = next
	}
	return delay
}
