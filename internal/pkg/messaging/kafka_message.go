package messaging

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/atomic"
)

type kafkaMessage struct {
	reader *kafka.Reader
	msg    kafka.Message
	done   atomic.Bool
}

func (m *kafkaMessage) Source() string { return m.msg.Topic }
func (m *kafkaMessage) Body() []byte   { return m.msg.Value }

func (m *kafkaMessage) Header(key string) string {
	for _, h := range m.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Ack commits the offset for this message's partition.
func (m *kafkaMessage) Ack(ctx context.Context) error {
	if m.done.Swap(true) {
		return nil
	}
	return m.reader.CommitMessages(ctx, m.msg)
}

// Nack leaves the offset uncommitted; the group sees the message again after
// a rebalance or restart.
func (m *kafkaMessage) Nack(context.Context) error {
	m.done.Store(true)
	return nil
}

func (m *kafkaMessage) settled() bool { return m.done.Load() }
