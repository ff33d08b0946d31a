package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

// ErrNATSURLRequired is returned when the NATS server URL is missing.
var ErrNATSURLRequired = errors.New("messaging: nats url is required")

// NATSConfig configures the NATS implementation.
type NATSConfig struct {
	URL     string
	Options []nats.Option
}

// NATS is a messaging implementation backed by core NATS.
type NATS struct {
	conn *nats.Conn

	mu     sync.Mutex
	subs   map[*nats.Subscription]struct{}
	closed bool
}

// NewNATS connects to the server at cfg.URL.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		return nil, ErrNATSURLRequired
	}

	conn, err := nats.Connect(cfg.URL, cfg.Options...)
	if err != nil {
		return nil, fmt.Errorf("messaging: nats connect: %w", err)
	}

	return &NATS{conn: conn, subs: map[*nats.Subscription]struct{}{}}, nil
}

// Close drains the connection, letting in-flight callbacks finish.
func (n *NATS) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.subs = nil
	n.mu.Unlock()

	err := n.conn.Drain()
	n.conn.Close()
	return err
}

// Publish sends env to subject and flushes it to the server.
func (n *NATS) Publish(ctx context.Context, subject string, env Envelope) error {
	if subject == "" {
		return ErrDestinationRequired
	}

	msg := &nats.Msg{Subject: subject, Data: env.Body, Header: nats.Header{}}
	for key, value := range env.Headers {
		msg.Header.Set(key, value)
	}

	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("messaging: nats publish %s: %w", subject, err)
	}

	var err error
	if _, ok := ctx.Deadline(); ok {
		err = n.conn.FlushWithContext(ctx)
	} else {
		err = n.conn.Flush()
	}
	if err != nil {
		return fmt.Errorf("messaging: nats flush: %w", err)
	}
	return nil
}

// Consume subscribes to subject until ctx ends. Subscribers sharing a queue
// group split the stream; with no queue group each one sees every message.
func (n *NATS) Consume(ctx context.Context, subject string, handler Handler, opts ...ConsumeOption) error {
	if subject == "" {
		return ErrDestinationRequired
	}
	if handler == nil {
		return ErrHandlerRequired
	}

	co := newConsumeOptions(opts...)
	inbox := make(chan *nats.Msg, co.workers())

	sub, err := n.conn.QueueSubscribe(subject, co.queueGroup, func(m *nats.Msg) {
		select {
		case inbox <- m:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("messaging: nats subscribe %s: %w", subject, err)
	}
	if err := n.track(sub); err != nil {
		return errors.Join(err, sub.Unsubscribe())
	}
	if err := n.conn.Flush(); err != nil {
		return errors.Join(fmt.Errorf("messaging: nats flush: %w", err), n.untrack(sub))
	}

	var wg sync.WaitGroup
	for range co.workers() {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case m := <-inbox:
					if err := deliver(ctx, "nats", &natsMessage{msg: m}, handler, co.autoAck); err != nil {
						slog.WarnContext(ctx, "failed to settle nats message", "subject", subject, "error", err)
					}
				}
			}
		})
	}

	<-ctx.Done()
	wg.Wait()

	return errors.Join(ctx.Err(), n.untrack(sub))
}

func (n *NATS) track(sub *nats.Subscription) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	n.subs[sub] = struct{}{}
	return nil
}

func (n *NATS) untrack(sub *nats.Subscription) error {
	n.mu.Lock()
	_, owned := n.subs[sub]
	delete(n.subs, sub)
	n.mu.Unlock()

	if !owned {
		return nil
	}
	return sub.Drain()
}
