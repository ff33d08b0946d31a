package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrKafkaBrokersRequired is returned when no Kafka brokers are configured.
	ErrKafkaBrokersRequired = errors.New("messaging: kafka brokers are required")
	// ErrKafkaGroupRequired is returned when Consume is called without WithGroup.
	ErrKafkaGroupRequired = errors.New("messaging: kafka consumer group is required")
)

const defaultKafkaDialTimeout = 10 * time.Second

// KafkaConfig configures the Kafka implementation.
type KafkaConfig struct {
	Brokers     []string
	ClientID    string
	DialTimeout time.Duration
	// MaxBytes caps a single fetch; zero means 10MB.
	MaxBytes int
}

// Kafka is a messaging implementation backed by kafka-go.
type Kafka struct {
	brokers   []string
	dialer    *kafka.Dialer
	transport *kafka.Transport
	maxBytes  int

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers map[*kafka.Reader]struct{}
	closed  bool
}

// NewKafka constructs a Kafka client. Connections are opened lazily.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultKafkaDialTimeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10e6
	}

	return &Kafka{
		brokers:   slices.Clone(cfg.Brokers),
		dialer:    &kafka.Dialer{ClientID: cfg.ClientID, Timeout: timeout, DualStack: true},
		transport: &kafka.Transport{ClientID: cfg.ClientID, DialTimeout: timeout},
		maxBytes:  maxBytes,
		writers:   map[string]*kafka.Writer{},
		readers:   map[*kafka.Reader]struct{}{},
	}, nil
}

// Close shuts down every reader and writer. Running Consume calls return.
func (k *Kafka) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	writers, readers := k.writers, k.readers
	k.writers, k.readers = nil, nil
	k.mu.Unlock()

	var err error
	for r := range readers {
		err = errors.Join(err, r.Close())
	}
	for _, w := range writers {
		err = errors.Join(err, w.Close())
	}
	return err
}

// Publish writes env to topic and waits for all in-sync replicas.
func (k *Kafka) Publish(ctx context.Context, topic string, env Envelope) error {
	if topic == "" {
		return ErrDestinationRequired
	}

	w, err := k.writer(topic)
	if err != nil {
		return err
	}

	msg := kafka.Message{Key: env.Key, Value: env.Body}
	for key, value := range env.Headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}

	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("messaging: kafka publish %s: %w", topic, err)
	}
	return nil
}

// Consume joins the configured group on topic and feeds messages to handler
// from a single fetch loop. A failed offset commit stops the consumer.
func (k *Kafka) Consume(ctx context.Context, topic string, handler Handler, opts ...ConsumeOption) error {
	co := newConsumeOptions(opts...)
	switch {
	case topic == "":
		return ErrDestinationRequired
	case handler == nil:
		return ErrHandlerRequired
	case co.group == "":
		return ErrKafkaGroupRequired
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		GroupID:  co.group,
		Topic:    topic,
		Dialer:   k.dialer,
		MaxBytes: k.maxBytes,
	})
	if err := k.track(reader); err != nil {
		return errors.Join(err, reader.Close())
	}
	defer k.untrack(reader)

	g, gctx := errgroup.WithContext(ctx)
	fetched := make(chan kafka.Message)

	g.Go(func() error {
		defer close(fetched)
		for {
			m, err := reader.FetchMessage(gctx)
			if err != nil {
				return err
			}
			select {
			case fetched <- m:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	for range co.workers() {
		g.Go(func() error {
			for m := range fetched {
				msg := &kafkaMessage{reader: reader, msg: m}
				if err := deliver(gctx, "kafka", msg, handler, co.autoAck); err != nil {
					return fmt.Errorf("messaging: kafka commit %s: %w", topic, err)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, io.EOF):
		return ErrClosed
	case err != nil:
		return fmt.Errorf("messaging: kafka consume %s: %w", topic, err)
	}
	return nil
}

func (k *Kafka) writer(topic string) (*kafka.Writer, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, ErrClosed
	}
	if w, ok := k.writers[topic]; ok {
		return w, nil
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(k.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Transport:    k.transport,
	}
	k.writers[topic] = w
	return w, nil
}

func (k *Kafka) track(r *kafka.Reader) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return ErrClosed
	}
	k.readers[r] = struct{}{}
	return nil
}

func (k *Kafka) untrack(r *kafka.Reader) {
	k.mu.Lock()
	_, owned := k.readers[r]
	delete(k.readers, r)
	k.mu.Unlock()

	// Close has already closed any reader it took out of the set.
	if owned {
		//nolint:errcheck,gosec // shutting down
		r.Close()
	}
}
