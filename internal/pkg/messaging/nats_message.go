package messaging

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"
)

type natsMessage struct {
	msg  *nats.Msg
	done atomic.Bool
}

func (m *natsMessage) Source() string { return m.msg.Subject }
func (m *natsMessage) Body() []byte   { return m.msg.Data }

func (m *natsMessage) Header(key string) string {
	if m.msg.Header == nil {
		return ""
	}
	return m.msg.Header.Get(key)
}

// Ack replies to JetStream deliveries; plain core NATS messages need nothing.
func (m *natsMessage) Ack(context.Context) error {
	if m.done.Swap(true) {
		return nil
	}
	return ignoreNoReply(m.msg.Ack())
}

func (m *natsMessage) Nack(context.Context) error {
	if m.done.Swap(true) {
		return nil
	}
	return ignoreNoReply(m.msg.Nak())
}

func (m *natsMessage) settled() bool { return m.done.Load() }

func ignoreNoReply(err error) error {
	if errors.Is(err, nats.ErrMsgNoReply) || errors.Is(err, nats.ErrMsgNotBound) {
		return nil
	}
	return err
}
