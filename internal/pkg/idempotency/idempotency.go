// Package idempotency claims a key in Redis so an operation runs once per key
// across replicas, e.g. one digest pass per UTC hour.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyInProgress = errors.New("operation already in progress")
	ErrAlreadyCompleted  = errors.New("operation already completed")
	ErrAlreadyFailed     = errors.New("operation already failed")
	ErrInvalidState      = errors.New("invalid state")
)

// State is the value stored under a claimed key.
type State string

const (
	StateNone       State = ""
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

func (s State) err() error {
	switch s {
	case StateInProgress:
		return ErrAlreadyInProgress
	case StateCompleted:
		return ErrAlreadyCompleted
	case StateFailed:
		return ErrAlreadyFailed
	}
	return fmt.Errorf("%w: %q", ErrInvalidState, string(s))
}

type Guard interface {
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error
}

type Option func(*execOptions)

type execOptions struct {
	lease      time.Duration
	doneTTL    time.Duration
	failedTTL  time.Duration
	releaseErr bool
}

// WithLockDuration bounds how long an in-progress claim blocks other callers
// if the holder dies without recording an outcome.
func WithLockDuration(d time.Duration) Option {
	return func(o *execOptions) { o.lease = d }
}

// WithStateTTL sets how long the completed and failed outcomes are kept.
func WithStateTTL(d time.Duration) Option {
	return func(o *execOptions) { o.doneTTL, o.failedTTL = d, d }
}

// WithRetryOnError releases the key when fn fails so the next caller retries.
func WithRetryOnError() Option {
	return func(o *execOptions) { o.releaseErr = true }
}

// StateTracker implements Guard on a Redis SET NX GET, which needs Redis 7.
type StateTracker struct {
	client redis.Cmdable
	prefix string
}

// New builds a tracker. Keys are stored under prefix, or "idempotency:" when empty.
func New(client redis.Cmdable, prefix string) *StateTracker {
	if prefix == "" {
		prefix = "idempotency:"
	}
	return &StateTracker{client: client, prefix: prefix}
}

// Acquire claims key for lease. StateNone means the caller now holds it,
// otherwise the state recorded by an earlier caller is returned.
func (s *StateTracker) Acquire(ctx context.Context, key string, lease time.Duration) (State, error) {
	prev, err := s.client.SetArgs(ctx, s.prefix+key, string(StateInProgress), redis.SetArgs{
		Mode: "NX",
		TTL:  lease,
		Get:  true,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return StateNone, nil
	}
	if err != nil {
		return StateNone, err
	}
	return State(prev), nil
}

func (s *StateTracker) record(ctx context.Context, key string, state State, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, string(state), ttl).Err()
}

func (s *StateTracker) release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Exec runs fn only when this call claims key. Callers that lose the claim get
// one of the ErrAlready* errors. fn errors are returned unchanged.
func (s *StateTracker) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error {
	o := execOptions{lease: time.Minute, doneTTL: time.Minute, failedTTL: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	state, err := s.Acquire(ctx, key, o.lease)
	if err != nil {
		return err
	}
	if state != StateNone {
		return state.err()
	}

	if err := fn(ctx); err != nil {
		outcome := s.record(ctx, key, StateFailed, o.failedTTL)
		if o.releaseErr {
			outcome = s.release(ctx, key)
		}
		return errors.Join(err, outcome)
	}

	return s.record(ctx, key, StateCompleted, o.doneTTL)
}
