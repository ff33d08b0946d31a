package messaging

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrClosed is returned by operations on a client that has been closed.
	ErrClosed = errors.New("messaging: client closed")
	// ErrDestinationRequired is returned when the topic or subject is empty.
	ErrDestinationRequired = errors.New("messaging: destination is required")
	// ErrHandlerRequired is returned when Consume is called with a nil handler.
	ErrHandlerRequired = errors.New("messaging: handler is required")
)

// Messaging is a broker client that both publishes and consumes.
type Messaging interface {
	io.Closer

	Publisher
	Consumer
}

// Publisher sends envelopes to a topic (Kafka) or subject (NATS).
type Publisher interface {
	Publish(ctx context.Context, destination string, env Envelope) error
}

// Consumer blocks delivering messages from source to handler until ctx ends
// or the broker connection fails.
type Consumer interface {
	Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error
}

// Handler processes one received message.
type Handler func(ctx context.Context, msg Message) error

// Envelope is an outgoing message. Messages sharing a Key land on the same
// Kafka partition and keep their relative order.
type Envelope struct {
	Body    []byte
	Key     []byte
	Headers map[string]string
}

// Message is a received message.
//
// With auto-ack enabled the consumer settles the message from the handler's
// result; a handler may still settle early by calling Ack or Nack itself.
type Message interface {
	// Source is the topic or subject the message arrived on.
	Source() string
	Body() []byte
	// Header returns the first value stored under key, or "".
	Header(key string) string

	Ack(ctx context.Context) error
	Nack(ctx context.Context) error
}

type settleable interface {
	Message
	settled() bool
}

// deliver runs handler and, when autoAck is set, settles msg from its result.
// Only a failure to settle is returned; handler errors are logged by callers
// of the handler itself.
func deliver(ctx context.Context, kind string, msg settleable, handler Handler, autoAck bool) error {
	herr := callHandlerWithRecover(ctx, kind, func() error {
		return handler(ctx, msg)
	})

	if !autoAck || msg.settled() {
		return nil
	}
	if herr != nil {
		return msg.Nack(ctx)
	}
	return msg.Ack(ctx)
}
